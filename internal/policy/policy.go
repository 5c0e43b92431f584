package policy

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Astemirdum/circulation-service/internal/errs"
)

// FineRateKey is the config table key holding the per-day fine rate.
const FineRateKey = "fine_rate"

// DefaultFineRate applies when the key is absent or unparseable.
var DefaultFineRate = decimal.RequireFromString("0.50")

// Getter reads one named configuration value.
type Getter interface {
	GetConfigValue(ctx context.Context, key string) (string, error)
}

type Config struct {
	store Getter
	log   *zap.Logger
}

func NewConfig(store Getter, log *zap.Logger) *Config {
	return &Config{store: store, log: log.Named("policy")}
}

// FineRate reads the per-day fine rate at call time, never cached. Lookup
// or parse failures fall back to DefaultFineRate so a broken config row
// cannot block returns.
func (c *Config) FineRate(ctx context.Context) decimal.Decimal {
	raw, err := c.store.GetConfigValue(ctx, FineRateKey)
	if err != nil {
		if !errors.Is(err, errs.ErrNotFound) {
			c.log.Warn("fine rate lookup failed", zap.Error(err))
		}
		return DefaultFineRate
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		c.log.Warn("malformed fine rate", zap.String("value", raw), zap.Error(err))
		return DefaultFineRate
	}
	return rate
}
