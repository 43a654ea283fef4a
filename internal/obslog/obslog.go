// Package obslog owns the process-wide zap logger.
package obslog

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var global atomic.Pointer[zap.Logger]

func init() { global.Store(zap.NewNop()) }

// L returns the process-wide logger; a no-op logger until InitFromEnv or Set runs.
func L() *zap.Logger { return global.Load() }

// Set replaces the process-wide logger. nil restores the no-op logger.
func Set(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	global.Store(l)
}

// Or returns l when non-nil, the global logger otherwise.
func Or(l *zap.Logger) *zap.Logger {
	if l != nil {
		return l
	}
	return L()
}

// Sync flushes buffered entries. Errors from syncing stdout are meaningless and dropped.
func Sync() { _ = L().Sync() }

// Options select sinks and encoding.
type Options struct {
	Level   zapcore.Level
	Format  string // "pretty" (default), "json", or "console"
	Console bool
	File    string // empty disables the file sink
	Caller  bool
	Service string
}

// OptionsFromEnv reads LOG_LEVEL, LOG_FORMAT, LOG_TO_CONSOLE, LOG_TO_FILE, LOG_FILE,
// LOG_CALLER, and LOG_SERVICE.
func OptionsFromEnv(getenv func(string) string) Options {
	flag := func(k string, def bool) bool {
		if b, err := strconv.ParseBool(strings.TrimSpace(getenv(k))); err == nil {
			return b
		}
		return def
	}
	o := Options{
		Level:   parseLevel(getenv("LOG_LEVEL")),
		Format:  strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT"))),
		Console: flag("LOG_TO_CONSOLE", true),
		Caller:  flag("LOG_CALLER", false),
		Service: strings.TrimSpace(getenv("LOG_SERVICE")),
	}
	if flag("LOG_TO_FILE", false) {
		o.File = strings.TrimSpace(getenv("LOG_FILE"))
		if o.File == "" {
			o.File = filepath.Join("logs", "session.log")
		}
	}
	return o
}

// New builds a logger writing to every enabled sink. With no sink enabled it
// falls back to stdout so nothing is silently lost.
func New(o Options) (*zap.Logger, error) {
	enc := encoder(o.Format)
	var cores []zapcore.Core
	if o.Console {
		cores = append(cores, zapcore.NewCore(enc, zapcore.Lock(os.Stdout), o.Level))
	}
	if o.File != "" {
		if dir := filepath.Dir(o.File); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create log dir: %w", err)
			}
		}
		f, err := os.OpenFile(o.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(enc.Clone(), zapcore.AddSync(f), o.Level))
	}
	if len(cores) == 0 {
		cores = append(cores, zapcore.NewCore(enc, zapcore.Lock(os.Stdout), o.Level))
	}

	opts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if o.Caller || o.Format == "" || o.Format == "pretty" {
		opts = append(opts, zap.AddCaller())
	}
	logger := zap.New(zapcore.NewTee(cores...), opts...)
	if o.Service != "" {
		logger = logger.With(zap.String("service", o.Service))
	}
	return logger, nil
}

// InitFromEnv installs a logger configured from the process environment.
func InitFromEnv() error {
	l, err := New(OptionsFromEnv(os.Getenv))
	if err != nil {
		return err
	}
	Set(l)
	return nil
}

func encoder(format string) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	switch format {
	case "json":
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
		return zapcore.NewJSONEncoder(cfg)
	case "console":
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewConsoleEncoder(cfg)
	default:
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.ConsoleSeparator = " | "
		return zapcore.NewConsoleEncoder(cfg)
	}
}

func parseLevel(s string) zapcore.Level {
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(s))
	if err != nil || s == "" {
		return zapcore.InfoLevel
	}
	return lvl
}
