package discovery

// Logger defines the logging interface used by responders.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Recorder observes discovery activity for metrics.
type Recorder interface {
	DiscoveryReply(kind string, err error)
}

type noopRecorder struct{}

func (noopRecorder) DiscoveryReply(string, error) {}
