package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Astemirdum/circulation-service/internal/audit"
	"github.com/Astemirdum/circulation-service/internal/policy"
)

//go:generate go run github.com/golang/mock/mockgen -source=deps.go -destination=mocks/mock.go -package=mocks

// AuditSink records circulation events. Sink failures are logged and
// swallowed; they never fail or roll back the operation that emitted them.
type AuditSink interface {
	Record(ctx context.Context, event audit.Event) error
}

// PolicyProvider exposes named policy values, read fresh on every call.
type PolicyProvider interface {
	FineRate(ctx context.Context) decimal.Decimal
}

var _ PolicyProvider = (*policy.Config)(nil)

type Option func(*options)

type options struct {
	now func() time.Time
}

// WithNow overrides the clock, for tests that pin the calendar date.
func WithNow(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func newOptions(opts ...Option) options {
	o := options{now: time.Now}
	for _, op := range opts {
		op(&o)
	}
	return o
}

func recordAudit(ctx context.Context, log *zap.Logger, sink AuditSink, event audit.Event) {
	if err := sink.Record(ctx, event); err != nil {
		log.Warn("audit record failed", zap.String("action", string(event.Action)), zap.Error(err))
	}
}
