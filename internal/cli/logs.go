package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/skiff"
	"github.com/mmr-tortoise/skiff/container"
	"github.com/mmr-tortoise/skiff/engine"
)

// newLogsCommand streams a managed service's container logs to
// stdout. With --follow the stream stays open until interrupted.
func newLogsCommand() *cobra.Command {
	var (
		follow bool
		tail   string
	)

	cmd := &cobra.Command{
		Use:   "logs <service>",
		Short: "Print a service container's logs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := engine.New()
			if err != nil {
				return err
			}
			defer eng.Close()

			labels := skiff.ManagedFilter()
			labels[skiff.LabelService] = args[0]

			found, err := container.List(cmd.Context(), eng, container.ListOptions{All: true, Labels: labels})
			if err != nil {
				return err
			}
			if len(found) == 0 {
				return fmt.Errorf("no skiff-managed container for service %q", args[0])
			}

			h := container.Attach(eng, found[0].ID, stateFromSummary(found[0].State))
			out := cmd.OutOrStdout()
			return h.StreamLogs(cmd.Context(), container.LogOptions{Follow: follow, Tail: tail}, func(line string) bool {
				fmt.Fprintln(out, line)
				return false
			})
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep streaming new log lines")
	cmd.Flags().StringVar(&tail, "tail", "", "number of lines from the end of the log to show")
	return cmd
}
