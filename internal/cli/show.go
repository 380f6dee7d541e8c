package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tidefall/loop/internal/trace"
)

// NewShowCommand lists recorded sessions or prints one session's trace.
func NewShowCommand(opts *RootOptions) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "show [session-id]",
		Short: "Inspect recorded traces",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := trace.Open(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 0 {
				return showSessions(cmd, opts, store)
			}
			return showRecords(cmd, opts, store, args[0])
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "trace.db", "trace database path")
	return cmd
}

func showSessions(cmd *cobra.Command, opts *RootOptions, store *trace.Store) error {
	sessions, err := store.Sessions(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if opts.Format == "json" {
		type jsonSession struct {
			ID        string `json:"id"`
			Name      string `json:"name"`
			CreatedAt string `json:"created_at"`
		}
		list := make([]jsonSession, 0, len(sessions))
		for _, s := range sessions {
			list = append(list, jsonSession{
				ID:        s.ID,
				Name:      s.Name,
				CreatedAt: s.CreatedAt.Format(time.RFC3339Nano),
			})
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}

	if len(sessions) == 0 {
		fmt.Fprintln(out, "no recorded sessions")
		return nil
	}
	for _, s := range sessions {
		fmt.Fprintf(out, "%s  %s  %s\n", s.ID, s.CreatedAt.Format(time.RFC3339), s.Name)
	}
	return nil
}

func showRecords(cmd *cobra.Command, opts *RootOptions, store *trace.Store, sessionID string) error {
	records, err := store.Records(cmd.Context(), sessionID)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if opts.Format == "json" {
		type jsonRecord struct {
			Seq   int64           `json:"seq"`
			AtNS  int64           `json:"at_ns"`
			Event json.RawMessage `json:"event"`
			State json.RawMessage `json:"state"`
		}
		list := make([]jsonRecord, 0, len(records))
		for _, r := range records {
			list = append(list, jsonRecord{
				Seq:   r.Seq,
				AtNS:  r.AtNS,
				Event: json.RawMessage(r.Event),
				State: json.RawMessage(r.State),
			})
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}

	if len(records) == 0 {
		fmt.Fprintf(out, "no records for session %s\n", sessionID)
		return nil
	}
	for _, r := range records {
		fmt.Fprintf(out, "  %8s  seq=%d  event=%s  state=%s\n",
			time.Duration(r.AtNS), r.Seq, r.Event, r.State)
	}
	return nil
}
