package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tidefall/loop/internal/demo"
	"github.com/tidefall/loop/looptest"
)

// NewRunCommand executes a scenario file against the demo loader machine
// and reports the trace and expectation results.
func NewRunCommand(opts *RootOptions) *cobra.Command {
	var delay time.Duration

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run a scenario under virtual time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := runScenario(args[0], delay, opts)
			if err != nil {
				return err
			}
			if err := writeResult(cmd, opts, result); err != nil {
				return err
			}
			if !result.Pass() {
				return fmt.Errorf("scenario %s failed", result.Scenario)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&delay, "delay", demo.DefaultLoadDelay, "virtual load delay")
	return cmd
}

func runScenario(path string, delay time.Duration, opts *RootOptions) (*looptest.Result, error) {
	logger := opts.Logger()

	scenario, err := looptest.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Debug("loaded scenario", "name", scenario.Name, "steps", len(scenario.Steps))

	runner := &looptest.Runner[demo.State, demo.Event]{
		New:   func() *looptest.Harness[demo.State, demo.Event] { return demo.NewHarness(delay) },
		Codec: demo.Codec(),
	}
	return runner.Run(scenario)
}

func writeResult(cmd *cobra.Command, opts *RootOptions, result *looptest.Result) error {
	out := cmd.OutOrStdout()

	if opts.Format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Fprintf(out, "scenario: %s\n", result.Scenario)
	for _, r := range result.Records {
		fmt.Fprintf(out, "  %8s  seq=%d  event=%v  state=%v\n",
			time.Duration(r.AtNS), r.Seq, r.Event, r.State)
	}
	if result.Pass() {
		fmt.Fprintln(out, "PASS")
	} else {
		for _, f := range result.Failures {
			fmt.Fprintf(out, "FAIL: %s\n", f)
		}
	}
	return nil
}
