package logging

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

type Config struct {
	Level string
	// File, when set, receives every record.
	File string
	// Stdout mirrors records to Console when File is set.
	Stdout bool
	// Console is the terminal-facing writer. Nil means os.Stdout; CLI
	// subcommands pass os.Stderr so their own output stays clean.
	Console io.Writer
}

var (
	mu      sync.Mutex
	logFile *os.File
)

// Init installs the default slog logger and returns a function that closes
// the log file, if any. Without File, records go to Console.
func Init(cfg Config) (func() error, error) {
	level, enabled, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	console := cfg.Console
	if console == nil {
		console = os.Stdout
	}
	noop := func() error { return nil }

	if !enabled {
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
		return noop, nil
	}
	opts := &slog.HandlerOptions{Level: level}

	path := strings.TrimSpace(cfg.File)
	if path == "" {
		slog.SetDefault(slog.New(slog.NewTextHandler(console, opts)))
		return noop, nil
	}

	f, err := openLogFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var w io.Writer = f
	if cfg.Stdout {
		w = io.MultiWriter(console, f)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, opts)))
	swapLogFile(f)

	return func() error {
		mu.Lock()
		defer mu.Unlock()
		if logFile != f {
			return nil
		}
		logFile = nil
		return f.Close()
	}, nil
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
}

// swapLogFile records f as the active log file and closes the previous one.
func swapLogFile(f *os.File) {
	mu.Lock()
	prev := logFile
	logFile = f
	mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
}

func parseLevel(s string) (lvl slog.Level, enabled bool, _ error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, true, nil
	case "debug":
		return slog.LevelDebug, true, nil
	case "warn", "warning":
		return slog.LevelWarn, true, nil
	case "error":
		return slog.LevelError, true, nil
	case "off", "none", "disabled":
		return slog.LevelError, false, nil
	default:
		return slog.LevelInfo, true, errors.New("bad LOG_LEVEL (use debug/info/warn/error/off)")
	}
}
