package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/skiff"
	"github.com/mmr-tortoise/skiff/container"
	"github.com/mmr-tortoise/skiff/engine"
)

// newDownCommand removes skiff-managed containers, discovered through
// their ownership labels. With a service name only that service's
// containers are removed; --all removes everything skiff created.
func newDownCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "down [service]",
		Short: "Tear down skiff-managed service containers",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return fmt.Errorf("specify a service name or --all")
			}

			eng, err := engine.New()
			if err != nil {
				return err
			}
			defer eng.Close()

			labels := skiff.ManagedFilter()
			if len(args) == 1 {
				labels[skiff.LabelService] = args[0]
			}

			found, err := container.List(cmd.Context(), eng, container.ListOptions{All: true, Labels: labels})
			if err != nil {
				return err
			}
			if len(found) == 0 {
				log.Info("nothing to tear down")
				return nil
			}

			for _, c := range found {
				h := container.Attach(eng, c.ID, stateFromSummary(c.State))
				if err := h.Remove(cmd.Context(), container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
					return err
				}
				log.Info("removed", "service", c.Labels[skiff.LabelService], "container", shortID(c.ID))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "remove every skiff-managed container")
	return cmd
}

// stateFromSummary maps the engine's list-state string onto the
// Handle lifecycle state.
func stateFromSummary(state string) container.State {
	switch strings.ToLower(state) {
	case "running", "restarting", "paused":
		return container.StateStarted
	case "created":
		return container.StateCreated
	default: // exited, dead
		return container.StateStopped
	}
}

// shortID truncates a container ID the way the engine CLI does.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
