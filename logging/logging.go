// Package logging sets up logrus and the per-request logging middleware.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// SetupLogging builds the process logger. format is "json" (default) or
// "text"; level is any logrus level name.
func SetupLogging(level, format string) (*logrus.Logger, error) {
	return newLogger(os.Stdout, level, format)
}

func newLogger(out io.Writer, level, format string) (*logrus.Logger, error) {
	lvl := logrus.InfoLevel
	if level != "" {
		parsed, err := logrus.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		lvl = parsed
	}

	var formatter logrus.Formatter = &logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyLevel: "loglevel",
		},
	}
	if format == "text" {
		formatter = &logrus.TextFormatter{FullTimestamp: true}
	}

	return &logrus.Logger{
		Formatter: formatter,
		Out:       out,
		Hooks:     make(logrus.LevelHooks),
		Level:     lvl,
	}, nil
}
