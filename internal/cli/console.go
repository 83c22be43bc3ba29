package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/beamapp/beamvisor/internal/prep"
	"github.com/beamapp/beamvisor/internal/supervisor"
	"github.com/beamapp/beamvisor/internal/tui"
)

func newConsoleCmd(ctx *context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Open the interactive runtime console",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !supportsInteractiveOutput() {
				return fmt.Errorf("console requires an interactive terminal")
			}

			m, err := ctx.loadManifest()
			if err != nil {
				return err
			}
			if err := prep.Apply(m.Prepare); err != nil {
				return err
			}

			sup := supervisor.New(
				supervisor.WithReadTimeout(m.Runtime.ReadTimeout.Duration),
				supervisor.WithReadBufferSize(m.Runtime.ReadBufferSize),
				supervisor.WithExtraEnv(m.Runtime.EnvList()),
			)
			// Quitting the console tears the runtime down with it; a CLI
			// exit would otherwise orphan the child.
			defer sup.Stop()

			ui := tui.New(sup, tui.Launch{
				Name:       m.Runtime.Name,
				Executable: m.Runtime.Executable,
				Home:       m.Runtime.Home,
				Boot:       m.Runtime.Boot,
			}, tui.WithDrainInterval(m.Runtime.ReadTimeout.Duration))

			return ui.Run(cmd.Context())
		},
	}
	return cmd
}

func supportsInteractiveOutput() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}
