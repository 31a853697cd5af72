// Package logger holds the process-wide structured logger used by the
// redirection shims.
package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// L is the global logger instance. It discards all output until Init is
// called.
var L = newDiscard()

// Options configures the logger initialization.
type Options struct {
	Enabled bool      // If false, all logging is discarded
	Level   string    // logrus level name. Default: info
	Output  io.Writer // Default: os.Stderr
	JSON    bool      // JSON formatter instead of text
}

func newDiscard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return l
}

// Init configures logging. Call from main() before any log calls.
func Init(opts Options) error {
	if !opts.Enabled {
		L = newDiscard()
		return nil
	}

	level := logrus.InfoLevel
	if opts.Level != "" {
		lv, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return err
		}
		level = lv
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(level)
	if opts.JSON {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	}
	L = l
	return nil
}

// WithFn returns an entry tagged with the redirected function name.
func WithFn(fn string) *logrus.Entry { return L.WithField("fn", fn) }

// Debug logs a debug message.
func Debug(args ...any) { L.Debug(args...) }

// Debugf logs a formatted debug message.
func Debugf(format string, args ...any) { L.Debugf(format, args...) }

// Info logs an info message.
func Info(args ...any) { L.Info(args...) }

// Warnf logs a formatted warning.
func Warnf(format string, args ...any) { L.Warnf(format, args...) }

// Errorf logs a formatted error.
func Errorf(format string, args ...any) { L.Errorf(format, args...) }
