package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	containertypes "github.com/docker/docker/api/types/container"
	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/skiff"
	"github.com/mmr-tortoise/skiff/container"
	"github.com/mmr-tortoise/skiff/engine"
)

// newListCommand prints every skiff-managed container, running or
// not, with the service name and host port recovered from labels.
func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List skiff-managed service containers",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := engine.New()
			if err != nil {
				return err
			}
			defer eng.Close()

			found, err := container.List(cmd.Context(), eng, container.ListOptions{
				All:    true,
				Labels: skiff.ManagedFilter(),
			})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SERVICE\tCONTAINER\tSTATE\tHOST PORT")
			for _, c := range found {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					c.Labels[skiff.LabelService],
					containerDisplayName(c),
					c.State,
					c.Labels[skiff.LabelHostPort],
				)
			}
			return w.Flush()
		},
	}
}

// containerDisplayName prefers the container name over the ID. The
// engine reports names with a leading slash that means nothing to
// users.
func containerDisplayName(c containertypes.Summary) string {
	if len(c.Names) > 0 {
		return strings.TrimPrefix(c.Names[0], "/")
	}
	return shortID(c.ID)
}
