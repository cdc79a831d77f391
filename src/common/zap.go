package common

import (
	"github.com/mattn/go-colorable"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ConfigureZap builds the console logger and, when cfg.File is set, tees a json
// core into a rotating log file.
func ConfigureZap(level zapcore.Level, cfg LogConfig) *zap.Logger {
	pe := zap.NewProductionEncoderConfig()
	pe.EncodeTime = zapcore.RFC3339TimeEncoder
	consoleEncoder := zapcore.NewConsoleEncoder(pe)

	core := zapcore.NewCore(consoleEncoder, zapcore.AddSync(colorable.NewColorableStdout()), level)
	if cfg.File == "" {
		return zap.New(core)
	}

	fileWriter := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.maxSize(), // megabytes
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge, // days
		Compress:   cfg.Compress,
	})
	return zap.New(zapcore.NewTee(
		core,
		zapcore.NewCore(zapcore.NewJSONEncoder(pe), fileWriter, level),
	))
}
