package metrics

import (
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry = prometheus.NewRegistry()

	runtimeUp = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "beamvisor",
		Name:      "runtime_up",
		Help:      "Whether the supervised runtime is running (1=running, 0=stopped).",
	}, []string{"runtime"})

	runtimeLaunches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "beamvisor",
		Name:      "runtime_launches_total",
		Help:      "Total number of runtime launches.",
	}, []string{"runtime"})

	outputReadBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "beamvisor",
		Name:      "output_read_bytes_total",
		Help:      "Bytes drained from the runtime's merged output stream.",
	}, []string{"runtime"})

	inputWrittenBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "beamvisor",
		Name:      "input_written_bytes_total",
		Help:      "Bytes written to the runtime's input stream.",
	}, []string{"runtime"})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "beamvisor",
		Name:      "build_info",
		Help:      "Build metadata for the running beamvisor binary.",
	}, []string{"go_version", "vcs", "vcs_revision", "vcs_time", "vcs_modified"})

	buildInfoOnce sync.Once
)

func init() {
	registry.MustRegister(runtimeUp, runtimeLaunches, outputReadBytes, inputWrittenBytes, buildInfo)
}

// Registry returns the Prometheus registry containing all beamvisor metrics.
func Registry() *prometheus.Registry {
	return registry
}

// SetRuntimeUp records whether the named runtime is currently running.
func SetRuntimeUp(name string, up bool) {
	if name == "" {
		return
	}
	value := 0.0
	if up {
		value = 1.0
	}
	runtimeUp.WithLabelValues(name).Set(value)
}

// IncrementLaunches counts a successful runtime launch.
func IncrementLaunches(name string) {
	if name == "" {
		return
	}
	runtimeLaunches.WithLabelValues(name).Inc()
}

// AddOutputBytes counts bytes drained from the runtime's output stream.
func AddOutputBytes(name string, n int) {
	if name == "" || n <= 0 {
		return
	}
	outputReadBytes.WithLabelValues(name).Add(float64(n))
}

// AddInputBytes counts bytes written to the runtime's input stream.
func AddInputBytes(name string, n int) {
	if name == "" || n <= 0 {
		return
	}
	inputWrittenBytes.WithLabelValues(name).Add(float64(n))
}

// EmitBuildInfo publishes build metadata about the running binary.
func EmitBuildInfo() {
	buildInfoOnce.Do(func() {
		labels := prometheus.Labels{
			"go_version":   runtime.Version(),
			"vcs":          "",
			"vcs_revision": "",
			"vcs_time":     "",
			"vcs_modified": "",
		}
		if info, ok := debug.ReadBuildInfo(); ok {
			if info.GoVersion != "" {
				labels["go_version"] = info.GoVersion
			}
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs":
					labels["vcs"] = setting.Value
				case "vcs.revision":
					labels["vcs_revision"] = setting.Value
				case "vcs.time":
					labels["vcs_time"] = setting.Value
				case "vcs.modified":
					labels["vcs_modified"] = setting.Value
				}
			}
		}
		buildInfo.With(labels).Set(1)
	})
}

// ResetRuntime clears all series for the named runtime.
func ResetRuntime(name string) {
	if name == "" {
		return
	}
	runtimeUp.DeleteLabelValues(name)
	runtimeLaunches.DeleteLabelValues(name)
	outputReadBytes.DeleteLabelValues(name)
	inputWrittenBytes.DeleteLabelValues(name)
}
