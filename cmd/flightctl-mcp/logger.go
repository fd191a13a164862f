package main

import (
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/flightctl/flightctl-mcp/pkg/config"
)

// setupLogger builds the process logger: always stderr, since stdout
// belongs to the stdio transport, plus a rotating file unless disabled
// with "-".
func setupLogger(debug bool, cfg config.Logging) *zap.Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	if debug {
		encoderCfg = zap.NewDevelopmentEncoderConfig()
	}
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format(time.RFC3339))
	}

	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zapcore.ParseLevel(cfg.Level); err == nil {
			level = parsed
		}
	}
	if debug {
		level = zapcore.DebugLevel
	}

	var consoleEncoder zapcore.Encoder
	if debug {
		consoleEncoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		consoleEncoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), level),
	}

	if path := logFilePath(cfg); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err == nil {
			rotator := &lumberjack.Logger{
				Filename:   path,
				MaxSize:    cfg.MaxSizeMB,
				MaxBackups: cfg.MaxBackups,
			}
			cores = append(cores, zapcore.NewCore(
				zapcore.NewJSONEncoder(encoderCfg),
				zapcore.AddSync(rotator), level))
		}
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}

// logFilePath resolves the log destination: "-" disables file logging,
// empty falls back to the default under the user's data directory.
func logFilePath(cfg config.Logging) string {
	switch cfg.File {
	case "-":
		return ""
	case "":
		return config.DefaultLogPath()
	default:
		return cfg.File
	}
}
