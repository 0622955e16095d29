package types

import (
	"fmt"
	"log"
	"os"
	"strings"
)

type Logger interface {
	Printf(format string, v ...interface{})
}

// this is a safeguard, breaking on compile time in case
// `log.Logger` does not adhere to our `Logger` interface.
// see https://golang.org/doc/faq#guarantee_satisfies_interface
var _ Logger = &log.Logger{}

// DefaultLogger returns a `Logger` implementation
func DefaultLogger() *log.Logger {
	return log.New(os.Stdout, "", log.LstdFlags)
}

func NewLogger(custom Logger) Logger {
	if custom != nil {
		return custom
	}

	return DefaultLogger()
}

// Level is a log severity.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	default:
		return "ERROR"
	}
}

// ParseLevel maps a level name to a Level, defaulting to InfoLevel.
func ParseLevel(name string) Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG", "TRACE":
		return DebugLevel
	case "WARN", "WARNING":
		return WarnLevel
	case "ERROR":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// LevelLogger is a Logger that understands severities.
type LevelLogger interface {
	Logger
	Logf(level Level, format string, v ...interface{})
	Enabled(level Level) bool
}

type levelLogger struct {
	out   Logger
	level Level
}

// NewLevelLogger writes entries at or above level to out, prefixed with the
// level name.
func NewLevelLogger(out Logger, level Level) LevelLogger {
	return &levelLogger{out: NewLogger(out), level: level}
}

func (l *levelLogger) Printf(format string, v ...interface{}) {
	l.Logf(InfoLevel, format, v...)
}

func (l *levelLogger) Logf(level Level, format string, v ...interface{}) {
	if !l.Enabled(level) {
		return
	}
	l.out.Printf("[%s] %s", level, fmt.Sprintf(format, v...))
}

func (l *levelLogger) Enabled(level Level) bool {
	return level >= l.level
}

func logf(logger Logger, level Level, format string, v ...interface{}) {
	if logger == nil {
		return
	}
	if ll, ok := logger.(LevelLogger); ok {
		ll.Logf(level, format, v...)
		return
	}
	logger.Printf("["+level.String()+"] "+format, v...)
}

func Debugf(logger Logger, format string, v ...interface{}) { logf(logger, DebugLevel, format, v...) }
func Infof(logger Logger, format string, v ...interface{})  { logf(logger, InfoLevel, format, v...) }
func Warnf(logger Logger, format string, v ...interface{})  { logf(logger, WarnLevel, format, v...) }
func Errorf(logger Logger, format string, v ...interface{}) { logf(logger, ErrorLevel, format, v...) }
