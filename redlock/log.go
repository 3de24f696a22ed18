package redlock

import "github.com/git-hulk/go-redlock/internal"

// Logger is anything with a Printf, *log.Logger included.
type Logger interface {
	Printf(format string, v ...interface{})
}

// SetLogger replaces the package logger, nil silences it.
func SetLogger(logger Logger) {
	if logger == nil {
		internal.SetLogger(nil)
		return
	}
	internal.SetLogger(logger)
}
