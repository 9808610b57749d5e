package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	slogmulti "github.com/samber/slog-multi"
)

// Log is the process-wide logger. It discards everything until Init runs.
var Log = slog.New(slog.DiscardHandler)

var (
	level   = new(slog.LevelVar)
	logFile *os.File
)

// Init sends debug-level JSON records to the run log at logFilePath and
// records at or above consoleLevel to stderr.
func Init(logFilePath string, consoleLevel slog.Level) error {
	return InitWithConsole(logFilePath, consoleLevel, os.Stderr)
}

func InitWithConsole(logFilePath string, consoleLevel slog.Level, console io.Writer) error {
	if err := os.MkdirAll(filepath.Dir(logFilePath), 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(logFilePath, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	Close()
	logFile = file
	level.Set(consoleLevel)

	Log = slog.New(slogmulti.Fanout(
		slog.NewJSONHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(console, &slog.HandlerOptions{Level: level}),
	))
	Log.Info("logger initialized", "path", logFilePath)
	return nil
}

// ParseLevel maps debug/info/warn/error to a slog level, defaulting to warn.
func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelWarn
	}
	return l
}

func Close() {
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}
