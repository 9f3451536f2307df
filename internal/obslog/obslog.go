// Package obslog wraps logrus for the structured progress and error
// logging shared by cmd/is and cmd/pdd: rank 0 logs normal progress,
// every rank logs failures, and a fatal error is always reported with
// its full pkg/errors cause chain before the process exits non-zero.
package obslog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger carries the fields every log line in this module shares:
// which algorithm is running, which PE is logging, and how many there
// are in total.
type Logger struct {
	entry *logrus.Entry
	rank  int
}

// New builds a Logger for one PE. algo is "is" or "pdd".
func New(algo string, rank, size int) *Logger {
	base := logrus.New()
	base.SetOutput(os.Stderr)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &Logger{
		entry: base.WithFields(logrus.Fields{"algo": algo, "pe": rank, "threads": size}),
		rank:  rank,
	}
}

// Phase logs the start of a named phase at Info, with n as the
// problem size the phase is operating over. Only rank 0 logs phases,
// to keep non-root stdout/stderr quiet.
func (l *Logger) Phase(phase string, n int64) {
	if l.rank != 0 {
		return
	}
	l.entry.WithFields(logrus.Fields{"phase": phase, "n": n}).Info("phase start")
}

// Fatal logs err (with its full wrapped cause chain) at Error on every
// rank that calls it, then returns err unwrapped so the caller can
// propagate it up to a non-zero exit.
func (l *Logger) Fatal(phase string, err error) error {
	l.entry.WithFields(logrus.Fields{"phase": phase, "cause": causeChain(err)}).Error("fatal error")
	return err
}

// causeChain renders pkg/errors' wrap chain as a flat string, most
// recently wrapped first, so a single log line shows every layer.
func causeChain(err error) string {
	var chain string
	for err != nil {
		if chain != "" {
			chain += ": "
		}
		chain += err.Error()
		cause, ok := err.(interface{ Cause() error })
		if !ok {
			break
		}
		next := cause.Cause()
		if next == nil || next == err {
			break
		}
		err = next
	}
	return chain
}
