package telemetry

// Config holds OpenTelemetry tracing configuration.
type Config struct {
	// Enabled indicates whether tracing is enabled.
	Enabled bool
	// ServiceName is reported to the trace backend as the resource's
	// service.name.
	ServiceName string
	// ServiceVersion is reported as service.version.
	ServiceVersion string
	// Endpoint is the OTLP/gRPC collector endpoint (e.g. "localhost:4317").
	Endpoint string
	// Insecure disables TLS on the OTLP connection.
	Insecure bool
	// SampleRate is the trace sampling rate, 0.0 to 1.0.
	SampleRate float64
}

// DefaultConfig returns a disabled configuration with sane defaults for
// when tracing is turned on.
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		ServiceName:    "corerpc",
		ServiceVersion: "dev",
		Endpoint:       "localhost:4317",
		Insecure:       true,
		SampleRate:     1.0,
	}
}
