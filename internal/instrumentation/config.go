package instrumentation

import "fmt"

// Exporter selects how telemetry leaves the process.
type Exporter string

const (
	// ExporterNone disables the signal entirely.
	ExporterNone Exporter = "none"
	// ExporterPrometheus exposes metrics for scraping (metrics only).
	ExporterPrometheus Exporter = "prometheus"
	// ExporterStdout prints telemetry to stdout; development only.
	ExporterStdout Exporter = "stdout"
)

// Config controls the telemetry providers.
type Config struct {
	// Enabled turns instrumentation on. A disabled provider hands out
	// no-op recorders.
	Enabled bool

	// ServiceName and ServiceVersion identify the process in exported
	// telemetry.
	ServiceName    string
	ServiceVersion string

	// MetricsExporter selects the metrics pipeline: prometheus or stdout.
	MetricsExporter Exporter

	// TracingExporter selects the traces pipeline: none or stdout.
	TracingExporter Exporter

	// TraceSamplingRate is the parent-based ratio sampler argument,
	// between 0 and 1.
	TraceSamplingRate float64

	// MetricsAddr, when non-empty and the prometheus exporter is active,
	// is the listen address for the scrape endpoint (e.g. ":9090").
	MetricsAddr string
}

// DefaultConfig returns the configuration used when telemetry is requested
// without further tuning: prometheus metrics, no tracing.
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		ServiceName:       "jmapctl",
		MetricsExporter:   ExporterPrometheus,
		TracingExporter:   ExporterNone,
		TraceSamplingRate: 1.0,
	}
}

// validate normalizes and checks a configuration.
func (c *Config) validate() error {
	if c.ServiceName == "" {
		c.ServiceName = "jmapctl"
	}
	if c.MetricsExporter == "" {
		c.MetricsExporter = ExporterPrometheus
	}
	if c.TracingExporter == "" {
		c.TracingExporter = ExporterNone
	}
	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		return fmt.Errorf("trace sampling rate %v out of range [0, 1]", c.TraceSamplingRate)
	}
	switch c.MetricsExporter {
	case ExporterPrometheus, ExporterStdout, ExporterNone:
	default:
		return fmt.Errorf("unsupported metrics exporter: %s", c.MetricsExporter)
	}
	switch c.TracingExporter {
	case ExporterStdout, ExporterNone:
	default:
		return fmt.Errorf("unsupported tracing exporter: %s", c.TracingExporter)
	}
	return nil
}
