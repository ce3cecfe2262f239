package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

type Backend string

const (
	BackendStd Backend = "std" // slog text handler, dev
	BackendZap Backend = "zap" // slog-zap JSON, stage/prod
)

type Config struct {
	Service    string
	Version    string
	InstanceID string

	Level   slog.Level
	Env     Env
	Backend Backend // default: std for dev, zap otherwise
	Debug   bool

	// zap sampling, per SampleTick window
	SampleInitial    int
	SampleThereafter int
	SampleTick       time.Duration

	AddSource bool

	// Output defaults to os.Stdout.
	Output io.Writer
}

func (c Config) out() io.Writer {
	if c.Output != nil {
		return c.Output
	}
	return os.Stdout
}

func (c Config) level() slog.Level {
	if c.Debug && c.Level == 0 {
		return slog.LevelDebug
	}
	return c.Level
}

// debug|info|warn|error, empty = info
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
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
