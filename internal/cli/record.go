package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tidefall/loop/internal/canon"
	"github.com/tidefall/loop/internal/demo"
	"github.com/tidefall/loop/internal/trace"
)

// NewRecordCommand runs a scenario and persists its commit trace to a
// SQLite trace database for later inspection with show.
func NewRecordCommand(opts *RootOptions) *cobra.Command {
	var (
		delay  time.Duration
		dbPath string
	)

	cmd := &cobra.Command{
		Use:   "record <scenario.yaml>",
		Short: "Run a scenario and record its trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := runScenario(args[0], delay, opts)
			if err != nil {
				return err
			}

			store, err := trace.Open(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			sessionID, err := store.BeginSession(ctx, result.Scenario)
			if err != nil {
				return err
			}

			for _, r := range result.Records {
				event, err := canon.Marshal(widen(r.Event))
				if err != nil {
					return fmt.Errorf("encode event seq %d: %w", r.Seq, err)
				}
				state, err := canon.Marshal(widen(r.State))
				if err != nil {
					return fmt.Errorf("encode state seq %d: %w", r.Seq, err)
				}
				err = store.Append(ctx, sessionID, trace.Record{
					Seq:   r.Seq,
					AtNS:  r.AtNS,
					Event: string(event),
					State: string(state),
				})
				if err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "recorded session %s (%d commits)\n",
				sessionID, len(result.Records))
			if !result.Pass() {
				return fmt.Errorf("scenario %s failed", result.Scenario)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&delay, "delay", demo.DefaultLoadDelay, "virtual load delay")
	cmd.Flags().StringVar(&dbPath, "db", "trace.db", "trace database path")
	return cmd
}

// widen converts a codec map to the plain shapes canon accepts.
func widen(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
