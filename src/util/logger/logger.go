// Package logger builds the logrus logger and carries request loggers in a context
package logger

import (
	"context"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type ctxKey struct{}

// NewLogger creates a logrus logger writing to stdout and, if filename is set, to filename as well
func NewLogger(filename string, debug bool) (*logrus.Logger, error) {
	log := logrus.New()
	log.Out = os.Stdout
	log.Formatter = &logrus.TextFormatter{
		FullTimestamp:    true,
		QuoteEmptyFields: true,
	}
	log.Level = logrus.InfoLevel
	if debug {
		log.Level = logrus.DebugLevel
	}

	if filename != "" {
		f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, errors.Wrapf(err, "open log file %s", filename)
		}
		log.Out = io.MultiWriter(os.Stdout, f)
	}

	return log, nil
}

// WithContext stores a logger in a context
func WithContext(ctx context.Context, log logrus.FieldLogger) context.Context {
	return context.WithValue(ctx, ctxKey{}, log)
}

// FromContext returns the logger stored in ctx, or the standard logger if there is none
func FromContext(ctx context.Context) logrus.FieldLogger {
	if log, ok := ctx.Value(ctxKey{}).(logrus.FieldLogger); ok {
		return log
	}
	return logrus.StandardLogger()
}
