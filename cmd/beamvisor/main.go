package main

import (
	"github.com/beamapp/beamvisor/internal/cli"
	"github.com/beamapp/beamvisor/internal/metrics"
)

func main() {
	metrics.EmitBuildInfo()
	cli.Execute()
}
