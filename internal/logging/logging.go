// Package logging builds the logrus logger shared by the servers and services.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New returns a logger writing to stderr with the given level and format ("json" or
// "text"). An unknown level falls back to info.
func New(level, format string) *logrus.Logger {
	return NewWithOutput(level, format, os.Stderr)
}

// NewWithOutput is New with an explicit destination.
func NewWithOutput(level, format string, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)

	if strings.EqualFold(format, "text") {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	return logger
}

// Output resolves the logging.output setting. stdout is unusable for the stdio MCP
// transport, so callers on that transport should pass stderr.
func Output(name string) io.Writer {
	if strings.EqualFold(name, "stdout") {
		return os.Stdout
	}
	return os.Stderr
}
