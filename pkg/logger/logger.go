package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"zipview/pkg/paths"
)

var Log *slog.Logger

var (
	logFile   *os.File
	logFileMu sync.Mutex
)

func init() {
	// Safe default so packages can log before Init runs (tests, tooling).
	Log = slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func parseLevel(levelStr string) slog.Level {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init initializes the global logger. Output goes to stdout and, when the
// data directory is writable, to a per-day log file.
func Init(levelStr string) {
	level := parseLevel(levelStr)

	dataDir := paths.GetDataDir()
	logFileName := fmt.Sprintf("zipview-%s.log", time.Now().Format("2006-01-02"))
	logFilePath := filepath.Join(dataDir, logFileName)

	var out io.Writer = os.Stdout
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create log directory: %v\n", err)
	} else {
		logFileMu.Lock()
		if logFile != nil {
			logFile.Close()
		}
		f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v\n", logFilePath, err)
			logFile = nil
		} else {
			logFile = f
			out = io.MultiWriter(os.Stdout, f)
		}
		logFileMu.Unlock()
	}

	Log = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(Log)
}

// SetLevel reinitializes the logger with a new level at runtime.
func SetLevel(levelStr string) {
	Init(levelStr)
}

// Close closes the log file if one is open.
func Close() {
	logFileMu.Lock()
	defer logFileMu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

// Helper functions for easy access
func Debug(msg string, args ...any) {
	Log.Debug(msg, args...)
}

func Info(msg string, args ...any) {
	Log.Info(msg, args...)
}

func Warn(msg string, args ...any) {
	Log.Warn(msg, args...)
}

func Error(msg string, args ...any) {
	Log.Error(msg, args...)
}

func Fatal(msg string, args ...any) {
	Log.Error(msg, args...)
	os.Exit(1)
}
