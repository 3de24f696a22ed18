package internal

import (
	"fmt"
	"log"
	"os"
)

type Logging interface {
	Printf(format string, v ...interface{})
}

type logger struct {
	log *log.Logger
}

func (l *logger) Printf(format string, v ...interface{}) {
	_ = l.log.Output(2, fmt.Sprintf(format, v...))
}

// nopLogger drops everything, handy to silence the lock manager in tests.
type nopLogger struct{}

func (nopLogger) Printf(string, ...interface{}) {}

var l Logging = &logger{
	log: log.New(os.Stdout, "go-redlock: ", log.LstdFlags|log.Lshortfile),
}

func SetLogger(logger Logging) {
	if logger == nil {
		logger = nopLogger{}
	}
	l = logger
}

func GetLogger() Logging {
	return l
}
