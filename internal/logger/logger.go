package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps zap with the agent's encoder and sink setup
type Logger struct {
	*zap.Logger
}

// New builds a logger for the given level ("debug", "info", "warn", "error")
// and format ("console" or "json")
func New(level, format string) (*Logger, error) {
	return NewWithFile(level, format, "", 0)
}

// NewWithFile builds a logger that additionally writes to a size-rotated file
// when filePath is non-empty
func NewWithFile(level, format, filePath string, maxSizeMB int) (*Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch format {
	case "json":
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	case "console", "":
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), lvl),
	}

	if filePath != "" {
		if maxSizeMB <= 0 {
			maxSizeMB = 50
		}
		fileSink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   filePath,
			MaxSize:    maxSizeMB,
			MaxBackups: 3,
			Compress:   true,
		})
		fileEncoderCfg := zap.NewProductionEncoderConfig()
		fileEncoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileEncoderCfg), fileSink, lvl))
	}

	return &Logger{zap.New(zapcore.NewTee(cores...), zap.AddCaller())}, nil
}
