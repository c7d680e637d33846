package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Category selects which log stream a message belongs to.
type Category string

const (
	Application   Category = "application"
	DiscordEvents Category = "discord_events"
	Database      Category = "database"
	Errors        Category = "error"
)

// Options configures SetupLogger. Zero values log text at info level to
// stderr only.
type Options struct {
	// Dir receives one rotated file per category. Empty disables file output.
	Dir string
	// Level is one of debug, info, warn, error.
	Level string
	// Format is text or json.
	Format string
	// MaxSizeMB, MaxBackups and MaxAgeDays are passed to lumberjack.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Stderr overrides the console writer; nil means os.Stderr.
	Stderr io.Writer
}

// Logger owns the category loggers and their rotated files.
type Logger struct {
	mu      sync.Mutex
	loggers map[Category]*slog.Logger
	files   []*lumberjack.Logger
}

// GlobalLogger is set by SetupLogger. Before setup the category helpers fall
// back to slog.Default().
var (
	GlobalLogger *Logger
	globalMu     sync.RWMutex
)

// SetupLogger builds the category loggers, installs the application logger
// as slog's default and replaces GlobalLogger.
func SetupLogger(opts Options) error {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return err
	}
	console := opts.Stderr
	if console == nil {
		console = os.Stderr
	}
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
	}

	l := &Logger{loggers: make(map[Category]*slog.Logger)}
	for _, cat := range []Category{Application, DiscordEvents, Database, Errors} {
		w := console
		if opts.Dir != "" {
			f := &lumberjack.Logger{
				Filename:   filepath.Join(opts.Dir, string(cat)+".log"),
				MaxSize:    orDefault(opts.MaxSizeMB, 50),
				MaxBackups: orDefault(opts.MaxBackups, 5),
				MaxAge:     orDefault(opts.MaxAgeDays, 28),
			}
			l.files = append(l.files, f)
			w = io.MultiWriter(console, f)
		}
		hopts := &slog.HandlerOptions{Level: level}
		var h slog.Handler
		if strings.EqualFold(opts.Format, "json") {
			h = slog.NewJSONHandler(w, hopts)
		} else {
			h = slog.NewTextHandler(w, hopts)
		}
		l.loggers[cat] = slog.New(h).With("category", string(cat))
	}

	globalMu.Lock()
	prev := GlobalLogger
	GlobalLogger = l
	globalMu.Unlock()
	slog.SetDefault(l.loggers[Application])

	if prev != nil {
		_ = prev.Close()
	}
	return nil
}

// ParseLevel maps a level name to a slog.Level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// For returns the logger of a category.
func (l *Logger) For(cat Category) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if lg, ok := l.loggers[cat]; ok {
		return lg
	}
	return slog.Default()
}

// Sync is kept for call sites that flush before exit. lumberjack writes
// through, so there is nothing buffered.
func (l *Logger) Sync() {}

// Close closes the rotated files.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for _, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.files = nil
	return firstErr
}

func category(cat Category) *slog.Logger {
	globalMu.RLock()
	l := GlobalLogger
	globalMu.RUnlock()
	return l.For(cat)
}

func ApplicationLogger() *slog.Logger { return category(Application) }
func DiscordLogger() *slog.Logger     { return category(DiscordEvents) }
func DatabaseLogger() *slog.Logger    { return category(Database) }
func ErrorLoggerRaw() *slog.Logger    { return category(Errors) }
