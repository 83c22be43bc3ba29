package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/beamapp/beamvisor/internal/supervisor"
)

func newCheckCmd(ctx *context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the manifest and print the launch plan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := ctx.loadManifest()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Runtime %s\n", m.Runtime.Name)
			fmt.Fprintf(out, "  executable: %s\n", m.Runtime.Executable)
			fmt.Fprintf(out, "  argv: %s\n", strings.Join(supervisor.Argv(m.Runtime.Boot), " "))

			env := append(m.Runtime.EnvList(), supervisor.LaunchEnv(m.Runtime.Home)...)
			fmt.Fprintf(out, "  env: %s\n", strings.Join(env, " "))
			fmt.Fprintf(out, "  readTimeout: %s\n", m.Runtime.ReadTimeout.Duration)
			fmt.Fprintf(out, "  readBufferSize: %d\n", m.Runtime.ReadBufferSize)

			if m.Prepare != nil {
				fmt.Fprintln(out, "Prepare")
				for _, dir := range m.Prepare.Dirs {
					fmt.Fprintf(out, "  dir: %s\n", dir)
				}
				for _, link := range m.Prepare.Links {
					fmt.Fprintf(out, "  link: %s -> %s\n", link.Name, link.Target)
				}
			}
			return nil
		},
	}
	return cmd
}
