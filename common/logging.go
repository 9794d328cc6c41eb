package common

import (
	"log/slog"
	"os"
)

type LoggingOpts struct {
	// Service name, added as 'service' tag to all log lines.
	Service string

	// Debug enables debug-level logging.
	Debug bool

	// JSON switches output to JSON format.
	JSON bool

	// Version of the service, added as 'version' tag.
	Version string
}

// SetupLogger creates the process-wide slog logger and installs it as
// the default.
func SetupLogger(opts *LoggingOpts) (log *slog.Logger) {
	logLevel := slog.LevelInfo
	if opts.Debug {
		logLevel = slog.LevelDebug
	}

	if opts.JSON {
		log = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	} else {
		log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	}

	if opts.Service != "" {
		log = log.With("service", opts.Service)
	}
	if opts.Version != "" {
		log = log.With("version", opts.Version)
	}

	slog.SetDefault(log)
	return log
}
