package logging

import (
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
)

var validLogFormats = map[string]bool{
	"text": true,
	"json": true,
}

// Config defines logging configuration for console output on stdout.
type Config struct {
	// Log level, e.g. info, error etc
	Level string
	// Logging format, either text or json
	Format string
	// Whether to count log lines by level in prometheus
	Metrics bool
}

func (c Config) Validate() error {
	if _, err := ParseLogLevel(c.Level); err != nil {
		return err
	}
	return validateLogFormat(c.Format)
}

func validateLogFormat(f string) error {
	if _, ok := validLogFormats[strings.ToLower(f)]; !ok {
		return errors.Errorf("unknown log format: %s.  Valid formats are %s", f, maps.Keys(validLogFormats))
	}
	return nil
}

// ParseLogLevel converts a level name to its logrus level. An empty string means info.
func ParseLogLevel(level string) (log.Level, error) {
	if level == "" {
		return log.InfoLevel, nil
	}
	l, err := log.ParseLevel(level)
	if err != nil {
		return log.InfoLevel, errors.Errorf("unknown level: %s", level)
	}
	return l, nil
}
