package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger writes structured logs to stdout and a rotated file.
type Logger struct {
	*logrus.Logger
	file io.Closer
}

// Options tunes file rotation. Zero values fall back to defaults.
type Options struct {
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
}

// New creates a logger writing to dir/safety-service.log at the given level.
func New(dir, level string, opts ...Options) (*Logger, error) {
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create logs folder failed: %v", err)
	}

	o := Options{MaxSizeMB: 50, MaxAgeDays: 14, MaxBackups: 7}
	if len(opts) > 0 {
		if opts[0].MaxSizeMB > 0 {
			o.MaxSizeMB = opts[0].MaxSizeMB
		}
		if opts[0].MaxAgeDays > 0 {
			o.MaxAgeDays = opts[0].MaxAgeDays
		}
		if opts[0].MaxBackups > 0 {
			o.MaxBackups = opts[0].MaxBackups
		}
	}

	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "safety-service.log"),
		MaxSize:    o.MaxSizeMB,
		MaxAge:     o.MaxAgeDays,
		MaxBackups: o.MaxBackups,
		Compress:   true,
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}

	l := logrus.New()
	l.SetLevel(lvl)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	// Output to both file and console
	l.SetOutput(io.MultiWriter(os.Stdout, rotator))

	return &Logger{Logger: l, file: rotator}, nil
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &Logger{Logger: l}
}

// Request returns an entry tagged with the request id.
func (l *Logger) Request(requestID string) *logrus.Entry {
	return l.WithField("request_id", requestID)
}

func (l *Logger) Close() {
	if l.file == nil {
		return
	}
	_ = l.file.Close()
}
