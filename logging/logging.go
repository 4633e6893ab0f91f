package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Config selects the level and format of the process-wide logger.
type Config struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Configure sets up the standard logrus logger. It is called once at startup.
func Configure(cfg Config) error {
	return configure(log.StandardLogger(), cfg, os.Stdout)
}

func configure(l *log.Logger, cfg Config, out io.Writer) error {
	level := cfg.Level
	if level == "" {
		level = "info"
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		l.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		l.SetFormatter(&log.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q, valid formats are text and json", cfg.Format)
	}

	l.SetLevel(lvl)
	l.SetOutput(out)
	return nil
}

// OrDefault returns entry, or an entry on the standard logger if entry is nil.
func OrDefault(entry *log.Entry) *log.Entry {
	if entry != nil {
		return entry
	}
	return log.NewEntry(log.StandardLogger())
}
