// Package log builds the structured loggers used by invalidationgame.
//
// Loggers are values: the CLI builds one with New and hands component
// entries to the simulation layer explicitly.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/natefinch/lumberjack"
	"github.com/sirupsen/logrus"
)

// Config holds logging settings.
type Config struct {
	Level string // debug, info, warn, error, critical
	File  string // empty = console only
	Mode  string // "w" truncates File on start, "a" appends
	JSON  bool

	MaxSizeMB  int // rotate File after this many megabytes (0 = lumberjack default)
	MaxBackups int

	Console io.Writer // defaults to os.Stderr
}

// nopCloser is returned when no file is opened.
type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New creates a logger from cfg. The returned closer releases the log file.
// When File is set, records go to both the console and the rotating file;
// the file always receives JSON.
func New(cfg Config) (*logrus.Logger, io.Closer, error) {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	console := cfg.Console
	if console == nil {
		console = os.Stderr
	}

	l := logrus.New()
	l.SetLevel(lvl)
	l.SetOutput(console)
	if cfg.JSON {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05"})
	}

	if cfg.File == "" {
		return l, nopCloser{}, nil
	}

	switch cfg.Mode {
	case "", "a":
	case "w":
		if err := os.Truncate(cfg.File, 0); err != nil && !os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("truncating log file: %w", err)
		}
	default:
		return nil, nil, fmt.Errorf("log mode must be 'w' or 'a', got %q", cfg.Mode)
	}

	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
	}
	l.AddHook(&fileHook{writer: file, formatter: &logrus.JSONFormatter{}})
	return l, file, nil
}

// ParseLevel converts a level name to a logrus level. "critical" is an
// alias for fatal-level filtering but never exits.
func ParseLevel(level string) (logrus.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return logrus.InfoLevel, nil
	case "debug":
		return logrus.DebugLevel, nil
	case "trace":
		return logrus.TraceLevel, nil
	case "warn", "warning":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	case "critical":
		return logrus.FatalLevel, nil
	}
	return logrus.InfoLevel, fmt.Errorf("invalid log level: %s", level)
}

// Component returns an entry tagged with a component field.
func Component(l *logrus.Logger, name string) *logrus.Entry {
	return l.WithField("component", name)
}

// Discard returns a logger that drops everything.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// fileHook mirrors every entry into a second writer with its own formatter.
type fileHook struct {
	writer    io.Writer
	formatter logrus.Formatter
}

func (h *fileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *fileHook) Fire(e *logrus.Entry) error {
	b, err := h.formatter.Format(e)
	if err != nil {
		return err
	}
	_, err = h.writer.Write(b)
	return err
}
