package config

import (
	"time"

	"go.uber.org/zap/zapcore"
)

type Option func(*Config)

func WithLogLevel(level zapcore.Level) Option {
	return func(c *Config) {
		c.Log.Level = level
	}
}

func WithSweepInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.Sweep.Interval = interval
	}
}
