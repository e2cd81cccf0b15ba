// Package logging provides the leveled logger used across dhdmgen. Messages
// go to stderr, or to a rotating log file when one is configured.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/natefinch/lumberjack"
)

// Mode is the minimum severity a logger writes.
type Mode uint

const (
	DebugMode Mode = iota
	InfoMode
	WarningMode
	ErrorMode
	SilentMode
)

// ParseMode converts a level name ("debug", "info", "warning", "error",
// "silent") to a Mode. The empty string is InfoMode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugMode, nil
	case "", "info":
		return InfoMode, nil
	case "warning", "warn":
		return WarningMode, nil
	case "error":
		return ErrorMode, nil
	case "silent", "none":
		return SilentMode, nil
	default:
		return InfoMode, fmt.Errorf("unknown log level %q", s)
	}
}

// Logger provides a way for the application to log messages at different
// severities.
type Logger interface {
	// Debugf formats its arguments analogous to fmt.Printf and records the
	// text as a log message at Debug level.
	Debugf(format string, args ...any)

	// Infof is like Debugf, but at Info level.
	Infof(format string, args ...any)

	// Warningf is like Debugf, but at Warning level.
	Warningf(format string, args ...any)

	// Errorf is like Debugf, but at Error level.
	Errorf(format string, args ...any)

	// Shutdown makes sure logs are closed.
	Shutdown()
}

// Config selects the log destination and severity.
type Config struct {
	Logfile string `toml:"logfile"`
	MaxSize int    `toml:"max_log_size"` // megabytes
	MaxAge  int    `toml:"max_log_age"`  // days
	Level   string `toml:"level"`
}

type stdLogger struct {
	*log.Logger
	mode Mode
	file *lumberjack.Logger
}

// New creates a logger writing to a rotating file when c.Logfile is set and
// to stderr otherwise.
func New(c Config) (Logger, error) {
	mode, err := ParseMode(c.Level)
	if err != nil {
		return nil, err
	}
	if c.Logfile == "" {
		return NewWriter(os.Stderr, mode), nil
	}

	l := &lumberjack.Logger{
		Filename: c.Logfile,
		MaxSize:  c.MaxSize,
		MaxAge:   c.MaxAge,
	}
	return &stdLogger{
		Logger: log.New(l, "", log.LstdFlags),
		mode:   mode,
		file:   l,
	}, nil
}

// NewWriter creates a logger writing to w.
func NewWriter(w io.Writer, mode Mode) Logger {
	return &stdLogger{Logger: log.New(w, "", log.LstdFlags), mode: mode}
}

func (l *stdLogger) Debugf(format string, args ...any) {
	if l.mode <= DebugMode {
		l.Printf(" DEBUG "+format, args...)
	}
}

func (l *stdLogger) Infof(format string, args ...any) {
	if l.mode <= InfoMode {
		l.Printf(" INFO "+format, args...)
	}
}

func (l *stdLogger) Warningf(format string, args ...any) {
	if l.mode <= WarningMode {
		l.Printf(" WARNING "+format, args...)
	}
}

func (l *stdLogger) Errorf(format string, args ...any) {
	if l.mode <= ErrorMode {
		l.Printf(" ERROR "+format, args...)
	}
}

func (l *stdLogger) Shutdown() {
	if l.file != nil {
		l.file.Close()
	}
}

type discard struct{}

func (discard) Debugf(string, ...any)   {}
func (discard) Infof(string, ...any)    {}
func (discard) Warningf(string, ...any) {}
func (discard) Errorf(string, ...any)   {}
func (discard) Shutdown()               {}

// Discard drops every message.
var Discard Logger = discard{}

// OrDiscard returns l, or Discard when l is nil.
func OrDiscard(l Logger) Logger {
	if l == nil {
		return Discard
	}
	return l
}

// TimeLog appends the time elapsed since its creation to every message.
// Example:
//
//	tlog := logging.NewTimeLog(logger)
//	...
//	tlog.Infof("subdivided %d faces", n) // "... subdivided 96 faces: 1.2ms"
type TimeLog struct {
	logger Logger
	start  time.Time
}

// NewTimeLog starts a TimeLog on l.
func NewTimeLog(l Logger) TimeLog {
	return TimeLog{OrDiscard(l), time.Now()}
}

func (t TimeLog) Debugf(format string, args ...any) {
	t.logger.Debugf(format+": %s", append(args, time.Since(t.start))...)
}

func (t TimeLog) Infof(format string, args ...any) {
	t.logger.Infof(format+": %s", append(args, time.Since(t.start))...)
}

func (t TimeLog) Warningf(format string, args ...any) {
	t.logger.Warningf(format+": %s", append(args, time.Since(t.start))...)
}

func (t TimeLog) Errorf(format string, args ...any) {
	t.logger.Errorf(format+": %s", append(args, time.Since(t.start))...)
}

func (t TimeLog) Shutdown() {
	t.logger.Shutdown()
}
