package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/skiff"
	"github.com/mmr-tortoise/skiff/preset"
)

// newUpCommand provisions one service from the preset file and prints
// its connection URL. The container keeps running after the command
// exits; `skiff down` tears it down.
func newUpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "up <service>",
		Short: "Provision a service container and print its connection URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			presets, err := preset.Load(presetFile)
			if err != nil {
				return err
			}
			p, ok := presets[name]
			if !ok {
				return fmt.Errorf("service %q not defined in %s", name, presetFile)
			}

			runner, err := skiff.NewRunner()
			if err != nil {
				return err
			}
			defer runner.Close()

			svc, err := runner.Up(cmd.Context(), p.Spec(name))
			if err != nil {
				return err
			}

			url, err := svc.URL(nil)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}
}
