package app

import (
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig configures NewLogger.
type LogConfig struct {
	Level       string // debug, info, warn, error
	Development bool   // console encoding instead of JSON
	Quiet       bool   // no stderr output; only File receives entries

	// File, when set, receives a JSON copy of every entry through a
	// size-rotated lumberjack writer.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// RegisterLogFlags binds LogConfig fields to fs with LOG_* environment defaults.
func RegisterLogFlags(fs *flag.FlagSet) *LogConfig {
	cfg := &LogConfig{}
	fs.StringVar(&cfg.Level, "log-level", Env("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	fs.BoolVar(&cfg.Development, "log-dev", EnvBool("LOG_DEV", false), "Human-readable console logs")
	fs.BoolVar(&cfg.Quiet, "log-quiet", EnvBool("LOG_QUIET", false), "Do not log to stderr")
	fs.StringVar(&cfg.File, "log-file", Env("LOG_FILE", ""), "Also write JSON logs to this rotating file")
	fs.IntVar(&cfg.MaxSizeMB, "log-max-size", EnvInt("LOG_MAX_SIZE_MB", 100), "Rotate the log file after this many MB")
	fs.IntVar(&cfg.MaxBackups, "log-max-backups", EnvInt("LOG_MAX_BACKUPS", 5), "Rotated log files to keep")
	fs.IntVar(&cfg.MaxAgeDays, "log-max-age", EnvInt("LOG_MAX_AGE_DAYS", 14), "Days to keep rotated log files")
	fs.BoolVar(&cfg.Compress, "log-compress", EnvBool("LOG_COMPRESS", true), "Gzip rotated log files")
	return cfg
}

// stderrSyncer writes to stderr but does not fsync it: fsync on a pipe or
// terminal fails with EINVAL, which would make every Sync report an error.
type stderrSyncer struct{ io.Writer }

func (stderrSyncer) Sync() error { return nil }

// NewLogger builds a zap logger named name writing to stderr (unless
// cfg.Quiet) and, when cfg.File is set, to a rotating file. The returned
// close func flushes the logger and releases the file.
func NewLogger(name string, cfg LogConfig) (*zap.Logger, func() error, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}

	var cores []zapcore.Core
	if !cfg.Quiet {
		var consoleEncoder zapcore.Encoder
		if cfg.Development {
			consoleEncoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		} else {
			consoleEncoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		}
		cores = append(cores, zapcore.NewCore(consoleEncoder, zapcore.Lock(stderrSyncer{os.Stderr}), level))
	}

	var rotator *lumberjack.Logger
	if cfg.File != "" {
		rotator = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(rotator),
			level,
		))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller()).Named(name)
	closeFn := func() error {
		err := logger.Sync()
		if rotator != nil {
			if cerr := rotator.Close(); err == nil {
				err = cerr
			}
		}
		return err
	}
	return logger, closeFn, nil
}
