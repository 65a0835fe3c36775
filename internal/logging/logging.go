// Package logging builds the diagnostic logger enabled by --debug.
// User-facing output never goes through it.
package logging

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the debug logger.
type Options struct {
	Enabled    bool
	File       string    // Rotated log file path.
	MaxSizeMB  int       // Rotate after this many megabytes.
	MaxBackups int       // Rotated files to keep.
	Writer     io.Writer // Overrides File when set.
}

// New returns a JSON logger writing to opts.File with rotation, or a no-op
// logger when debug logging is disabled. The returned close func flushes
// and releases the log file.
func New(opts Options) (*zap.Logger, func() error) {
	if !opts.Enabled {
		return zap.NewNop(), func() error { return nil }
	}

	var sink zapcore.WriteSyncer
	closeFn := func() error { return nil }
	if opts.Writer != nil {
		sink = zapcore.AddSync(opts.Writer)
	} else {
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			Compress:   true,
		}
		sink = zapcore.AddSync(lj)
		closeFn = lj.Close
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), sink, zap.DebugLevel)
	logger := zap.New(core, zap.AddCaller())

	return logger, func() error {
		_ = logger.Sync()
		return closeFn()
	}
}
