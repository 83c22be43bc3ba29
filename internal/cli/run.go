package cli

import (
	"bufio"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/beamapp/beamvisor/internal/config"
	"github.com/beamapp/beamvisor/internal/metrics"
	"github.com/beamapp/beamvisor/internal/prep"
	"github.com/beamapp/beamvisor/internal/supervisor"
)

const livenessInterval = time.Second

func newRunCmd(ctx *context) *cobra.Command {
	var jsonLogs bool
	var skipPrepare bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Launch the runtime and relay its input and output",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := ctx.loadManifest()
			if err != nil {
				return err
			}
			if !skipPrepare {
				if err := prep.Apply(m.Prepare); err != nil {
					return err
				}
			}
			return runSupervised(cmd, m, jsonLogs)
		},
	}

	cmd.Flags().BoolVar(&jsonLogs, "json", false, "Emit output as JSON log records")
	cmd.Flags().BoolVar(&skipPrepare, "skip-prepare", false, "Skip the manifest's prepare steps")
	return cmd
}

func runSupervised(cmd *cobra.Command, m *config.Manifest, jsonLogs bool) error {
	name := m.Runtime.Name
	emit := newEmitter(cmd.OutOrStdout(), name, jsonLogs)

	sup := supervisor.New(
		supervisor.WithReadTimeout(m.Runtime.ReadTimeout.Duration),
		supervisor.WithReadBufferSize(m.Runtime.ReadBufferSize),
		supervisor.WithExtraEnv(m.Runtime.EnvList()),
		supervisor.WithLogger(emit),
	)

	if _, err := sup.Start(m.Runtime.Executable, m.Runtime.Home, m.Runtime.Boot); err != nil {
		return err
	}
	metrics.IncrementLaunches(name)
	metrics.SetRuntimeUp(name, true)
	defer metrics.SetRuntimeUp(name, false)

	go forwardStdin(cmd.InOrStdin(), sup, name)

	liveness := time.NewTicker(livenessInterval)
	defer liveness.Stop()
	runCtx := cmd.Context()

	for {
		select {
		case <-runCtx.Done():
			drainRemaining(sup, emit, name)
			sup.Stop()
			return nil
		case <-liveness.C:
			if !sup.IsAlive() {
				drainRemaining(sup, emit, name)
				sup.Stop()
				return fmt.Errorf("runtime %s exited unexpectedly", name)
			}
		default:
		}

		// ReadAvailable blocks for at most the configured timeout, which
		// paces this loop when the runtime is quiet.
		chunk, err := sup.ReadAvailable()
		if err != nil {
			emit.Logf("read output: %v", err)
			continue
		}
		if len(chunk) > 0 {
			metrics.AddOutputBytes(name, len(chunk))
			emit.Output(chunk)
		}
	}
}

// drainRemaining moves whatever output is still buffered before shutdown,
// bounded so a firehose cannot stall the exit path.
func drainRemaining(sup *supervisor.Supervisor, emit *emitter, name string) {
	for i := 0; i < 32; i++ {
		chunk, err := sup.ReadAvailable()
		if err != nil || len(chunk) == 0 {
			return
		}
		metrics.AddOutputBytes(name, len(chunk))
		emit.Output(chunk)
	}
}

func forwardStdin(in io.Reader, sup *supervisor.Supervisor, name string) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		if err := sup.WriteLine(line); err != nil {
			return
		}
		metrics.AddInputBytes(name, len(line)+1)
	}
}
