package applog

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
)

const (
	maxFileSize = 5 << 20 // 5 MB
	maxValueLen = 200
	truncSuffix = "…"
)

var (
	mu     sync.Mutex
	file   *os.File
	logger *log.Logger
)

// Init opens the log file for appending. Call once at startup.
// If the file exceeds 5 MB, it is rotated (renamed to .log.1) before opening.
// Safe to skip: log calls are no-ops until then.
func Init(dir string) error {
	path := filepath.Join(dir, "sensiblelive.log")

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	// Rotate if too large.
	if info, err := os.Stat(path); err == nil && info.Size() > maxFileSize {
		os.Rename(path, path+".1")
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	mu.Lock()
	file = f
	logger = log.NewWithOptions(f, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "2006-01-02T15:04:05.000Z07:00",
		Formatter:       log.LogfmtFormatter,
		Level:           log.DebugLevel,
	})
	mu.Unlock()
	return nil
}

// Close flushes and closes the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		file.Close()
		file = nil
		logger = nil
	}
}

// Info logs a structured event line.
//
//	applog.Info("events.connected", "url", u)
//	applog.Info("nav.complete", "url", "/songs", "seq", 4)
func Info(event string, kv ...any) {
	write(log.InfoLevel, event, nil, kv)
}

// Error logs an event with an error.
//
//	applog.Error("events.decode", err, "frame", string(data))
func Error(event string, err error, kv ...any) {
	write(log.ErrorLevel, event, err, kv)
}

func write(level log.Level, event string, err error, kv []any) {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		return
	}

	fields := make([]any, 0, len(kv)+2)
	if err != nil {
		fields = append(fields, "err", truncate(err.Error()))
	}
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, kv[i], truncate(kv[i+1]))
	}
	logger.Log(level, event, fields...)
}

func truncate(v any) any {
	s, ok := v.(string)
	if !ok || len(s) <= maxValueLen {
		return v
	}
	return s[:maxValueLen] + truncSuffix
}
