package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
)

// Level is the severity of a log entry.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (lv Level) String() string {
	switch lv {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	default:
		return "ERROR"
	}
}

// ParseLevel converts a configuration string (debug, info, warn, error) to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelError, fmt.Errorf("unknown log level %q", s)
	}
}

// sink is the shared, append-only destination of every component logger
// derived from the same root.
type sink struct {
	mu        sync.Mutex
	file      *os.File
	logger    *log.Logger
	closeOnce sync.Once

	// colored tags the level for a terminal; only set in fallback mode
	colored bool
}

// Logger writes component-tagged entries to the run's error log.
//
// Entries below the configured minimum level are dropped. All loggers
// obtained through Component share one file and one run id.
type Logger struct {
	runID     string
	component string
	minLevel  Level
	logPath   string
	out       *sink
}

// NewLogger opens (or creates) the log file at path in append mode.
//
// If the file cannot be opened it returns a fallback logger that writes to
// stderr along with the error, so callers can warn and keep going.
func NewLogger(path, component string, minLevel Level) (*Logger, error) {
	runID := uuid.New().String()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return newFallbackLogger(runID, component, minLevel, err), err
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		err = fmt.Errorf("failed to open log file: %w", err)
		return newFallbackLogger(runID, component, minLevel, err), err
	}

	return &Logger{
		runID:     runID,
		component: component,
		minLevel:  minLevel,
		logPath:   path,
		out: &sink{
			file:   file,
			logger: log.New(file, "", 0),
		},
	}, nil
}

func newFallbackLogger(runID, component string, minLevel Level, err error) *Logger {
	logger := log.New(os.Stderr, "", 0)
	logger.Printf("WARNING: Failed to initialize file logging: %v", err)
	logger.Printf("Falling back to stderr logging")

	return &Logger{
		runID:     runID,
		component: component,
		minLevel:  minLevel,
		out:       &sink{logger: logger, colored: true},
	}
}

// New returns a logger writing to w. Mostly useful in tests.
func New(w io.Writer, component string, minLevel Level) *Logger {
	return &Logger{
		runID:     uuid.New().String(),
		component: component,
		minLevel:  minLevel,
		out:       &sink{logger: log.New(w, "", 0)},
	}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return New(io.Discard, "discard", LevelError+1)
}

// Component derives a logger tagged with name that shares the same file.
func (l *Logger) Component(name string) *Logger {
	c := *l
	c.component = name
	return &c
}

func (l *Logger) write(level Level, format string, v ...interface{}) {
	if level < l.minLevel {
		return
	}
	message := fmt.Sprintf(format, v...)
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	tag := level.String()
	if l.out.colored {
		tag = colorize(level, tag)
	}
	entry := fmt.Sprintf("[%s] [%s] [%s] [%s] %s", timestamp, l.shortRunID(), l.component, tag, message)

	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	l.out.logger.Println(entry)
}

// colorize is a no-op when stderr is not a terminal.
func colorize(level Level, tag string) string {
	switch level {
	case LevelDebug:
		return color.MagentaString(tag)
	case LevelInfo:
		return color.BlueString(tag)
	case LevelWarn:
		return color.YellowString(tag)
	default:
		return color.RedString(tag)
	}
}

func (l *Logger) shortRunID() string {
	if len(l.runID) > 8 {
		return l.runID[:8]
	}
	return l.runID
}

// Debugf logs a debug-level message
func (l *Logger) Debugf(format string, v ...interface{}) { l.write(LevelDebug, format, v...) }

// Infof logs an info-level message
func (l *Logger) Infof(format string, v ...interface{}) { l.write(LevelInfo, format, v...) }

// Warnf logs a warning-level message
func (l *Logger) Warnf(format string, v ...interface{}) { l.write(LevelWarn, format, v...) }

// Errorf logs an error-level message
func (l *Logger) Errorf(format string, v ...interface{}) { l.write(LevelError, format, v...) }

// RunID returns the id shared by every entry of this run.
func (l *Logger) RunID() string {
	return l.runID
}

// LogPath returns the path to the log file, empty in fallback mode.
func (l *Logger) LogPath() string {
	return l.logPath
}

// Close closes the log file. Safe to call multiple times and from any
// derived component logger.
func (l *Logger) Close() error {
	var err error
	l.out.closeOnce.Do(func() {
		if l.out.file != nil {
			err = l.out.file.Close()
		}
	})
	return err
}
