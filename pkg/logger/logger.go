package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Log struct {
	Level zapcore.Level `yaml:"level" envconfig:"LOG_LEVEL"`
}

// NewLogger builds the process logger. Level defaults to info (the zero
// Level); name scopes every entry with the component name.
func NewLogger(cfg Log, name string) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.Lock(os.Stdout),
		zap.NewAtomicLevelAt(cfg.Level),
	)
	return zap.New(core, zap.AddCaller()).Named(name)
}
