// Package logging builds the process logger: detailed records to a rotating
// file, summary records to the console.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/daviddao/deskflow/internal/config"
)

// Options controls logger construction.
type Options struct {
	Config  config.LoggingConfig
	Verbose bool      // console at DEBUG
	Console io.Writer // defaults to stderr
}

// New returns a logger that tees a console core and, when a log file is
// configured, a DEBUG-level file core. The returned func flushes and closes
// the file sink; call it once at shutdown.
func New(opts Options) (*zap.Logger, func(), error) {
	consoleLevel, err := parseLevel(opts.Config.Level)
	if err != nil {
		return nil, nil, err
	}
	if opts.Verbose {
		consoleLevel = zapcore.DebugLevel
	}

	out := opts.Console
	if out == nil {
		out = os.Stderr
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeCaller = zapcore.ShortCallerEncoder

	consoleCfg := encCfg
	consoleCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(zapcore.AddSync(out)), consoleLevel),
	}

	closeFn := func() {}
	if opts.Config.File != "" {
		if dir := filepath.Dir(opts.Config.File); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("create log directory: %w", err)
			}
		}
		rotator := &lumberjack.Logger{
			Filename:   opts.Config.File,
			MaxSize:    orDefault(opts.Config.MaxSizeMB, 5),
			MaxBackups: orDefault(opts.Config.MaxBackups, 3),
		}
		var fileEnc zapcore.Encoder
		if opts.Config.Format == "console" {
			fileEnc = zapcore.NewConsoleEncoder(encCfg)
		} else {
			fileEnc = zapcore.NewJSONEncoder(encCfg)
		}
		cores = append(cores, zapcore.NewCore(fileEnc, zapcore.AddSync(rotator), zapcore.DebugLevel))
		closeFn = func() { _ = rotator.Close() }
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	return logger, func() {
		_ = logger.Sync()
		closeFn()
	}, nil
}

func parseLevel(s string) (zapcore.Level, error) {
	if strings.TrimSpace(s) == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return lvl, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return lvl, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
