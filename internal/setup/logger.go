package setup

import "log/slog"

var packageLogger = slog.Default()

// SetLogger configures the logger used by the host verification checks.
func SetLogger(logger *slog.Logger) {
	if logger == nil {
		packageLogger = slog.Default()
		return
	}
	packageLogger = logger
}

func getLogger() *slog.Logger {
	if packageLogger != nil {
		return packageLogger
	}
	return slog.Default()
}
