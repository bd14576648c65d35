package logging

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/go-logr/logr"
)

var (
	infoColor  = color.New(color.FgGreen).SprintFunc()
	debugColor = color.New(color.FgCyan).SprintFunc()
	traceColor = color.New(color.FgYellow).SprintFunc()
	errorColor = color.New(color.FgRed).SprintFunc()
)

// simpleSink implements logr.LogSink for the human-readable, colorized
// output `bde -v` prints: no structured log aggregation, just a
// labeled line per call.
type simpleSink struct {
	writer       io.Writer
	minVerbosity int
	name         string
	mu           *sync.Mutex
}

// NewSimpleLogger builds a *Logger that writes colorized, leveled lines
// to writer (os.Stdout if nil). minVerbosity follows the levelInfo /
// levelDebug / levelTrace constants above.
func NewSimpleLogger(writer io.Writer, minVerbosity int) *Logger {
	if writer == nil {
		writer = os.Stdout
	}
	sink := &simpleSink{writer: writer, minVerbosity: minVerbosity, mu: &sync.Mutex{}}
	return New(logr.New(sink))
}

func (s *simpleSink) Init(logr.RuntimeInfo) {}

func (s *simpleSink) Enabled(level int) bool { return level <= s.minVerbosity }

func (s *simpleSink) Info(level int, msg string, keysAndValues ...interface{}) {
	if !s.Enabled(level) {
		return
	}
	s.emit(false, level, msg, keysAndValues...)
}

func (s *simpleSink) Error(err error, msg string, keysAndValues ...interface{}) {
	s.emit(true, 0, msg, append(keysAndValues, "error", err)...)
}

func (s *simpleSink) WithValues(keysAndValues ...interface{}) logr.LogSink { return s }

func (s *simpleSink) WithName(name string) logr.LogSink {
	newName := name
	if s.name != "" {
		newName = fmt.Sprintf("%s.%s", s.name, name)
	}
	return &simpleSink{writer: s.writer, minVerbosity: s.minVerbosity, name: newName, mu: s.mu}
}

func (s *simpleSink) V(int) logr.LogSink { return s }

func (s *simpleSink) emit(isError bool, level int, msg string, keysAndValues ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var label string
	switch {
	case isError:
		label = errorColor("[ERROR]")
	case level <= levelInfo:
		label = infoColor("[INFO]")
	case level == levelDebug:
		label = debugColor("[DEBUG]")
	default:
		label = traceColor("[TRACE]")
	}

	fullMsg := msg
	if s.name != "" {
		fullMsg = fmt.Sprintf("[%s] %s", s.name, msg)
	}
	fmt.Fprintf(s.writer, "%s %s\n", label, fullMsg)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fmt.Fprintf(s.writer, "  %v: %v\n", keysAndValues[i], keysAndValues[i+1])
	}
}
