package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// ConfigureLogging sets up the global logrus logger. Call it once at application startup.
func ConfigureLogging(config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	level, _ := ParseLogLevel(config.Level)
	if strings.ToLower(config.Format) == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{ForceColors: true, FullTimestamp: true})
	}
	log.SetOutput(os.Stdout)
	log.SetLevel(level)
	if config.Metrics {
		log.AddHook(NewPrometheusHook())
	}
	return nil
}

// ConfigureCommandLineLogging sets up logrus for interactive CLI output: bare messages, with warnings and errors
// prefixed by their level.
func ConfigureCommandLineLogging() {
	log.SetFormatter(new(CommandLineFormatter))
	log.SetOutput(os.Stdout)
}

type CommandLineFormatter struct{}

func (f *CommandLineFormatter) Format(entry *log.Entry) ([]byte, error) {
	if entry.Level <= log.WarnLevel {
		return []byte(fmt.Sprintf("%s: %s\n", entry.Level, entry.Message)), nil
	}
	return []byte(entry.Message + "\n"), nil
}

// NewNullLogger returns a logger that discards everything, for tests and for callers that must not write output.
func NewNullLogger() *log.Logger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(log.PanicLevel)
	return logger
}
