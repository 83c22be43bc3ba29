package cli

import (
	stdcontext "context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/beamapp/beamvisor/internal/config"
)

// NewRootCmd constructs the top-level beamvisor command.
func NewRootCmd() *cobra.Command {
	var manifestPath string

	root := &cobra.Command{
		Use:   "beamvisor",
		Short: "Supervise an embedded Erlang/OTP runtime",
	}

	root.PersistentFlags().
		StringVarP(&manifestPath, "file", "f", "runtime.yaml", "Path to runtime manifest")

	ctx := &context{manifestPath: &manifestPath}
	root.AddCommand(newRunCmd(ctx))
	root.AddCommand(newConsoleCmd(ctx))
	root.AddCommand(newCheckCmd(ctx))

	root.SilenceUsage = true
	root.SilenceErrors = true

	return root
}

// Execute runs the CLI entrypoint.
func Execute() {
	ctx, stop := signal.NotifyContext(stdcontext.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	root.SetContext(ctx)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type context struct {
	manifestPath *string
}

func (c *context) loadManifest() (*config.Manifest, error) {
	return config.Load(*c.manifestPath)
}
