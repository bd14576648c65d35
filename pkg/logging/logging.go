// Package logging provides the injectable logging sink used throughout
// this module (spec §9's "global verbose/notify state ... replace with
// an injected sink"). No process-wide singleton exists: callers pass a
// *Logger into bde.Open, and every layer below it logs through that
// handle instead of a package-level logger.
//
// Grounded on rstms-iso-kit's pkg/logging, which wraps go-logr/logr the
// same way.
package logging

import "github.com/go-logr/logr"

const (
	levelInfo  = 0
	levelDebug = 1
	levelTrace = 2
)

// Logger narrows logr.Logger down to the handful of methods the unlock
// pipeline actually calls, so callers outside this module never need to
// import logr directly.
type Logger struct {
	log logr.Logger
}

// New wraps an existing logr.Logger. A zero-value logr.Logger (no sink
// set) is treated the same as Discard.
func New(log logr.Logger) *Logger {
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	return &Logger{log: log}
}

// Discard returns a Logger that drops everything, the default used
// when bde.Open is called without an explicit logger.
func Discard() *Logger {
	return &Logger{log: logr.Discard()}
}

// Debug logs replica-recovery and unlock-candidate-selection detail,
// the kind of trace a verbose unlock run needs.
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.V(levelDebug).Info(msg, keysAndValues...)
}

// Info logs coarse lifecycle events: open, unlock success, close.
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Info(msg, keysAndValues...)
}

// Trace logs per-sector and per-replica detail, noisier than Debug.
func (l *Logger) Trace(msg string, keysAndValues ...interface{}) {
	l.log.V(levelTrace).Info(msg, keysAndValues...)
}

// Error logs a failure, such as a failed Unlock in pkg/bde. Replicas of
// the metadata triplet that fail to validate are not logged: the
// replica reader takes no logger.
func (l *Logger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(err, msg, keysAndValues...)
}
