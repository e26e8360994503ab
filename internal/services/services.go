package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/novaangola/apiserver/internal/events"
	"github.com/novaangola/apiserver/internal/logger"
	"github.com/novaangola/apiserver/internal/metrics"
)

var (
	// ErrAccountExists is returned when the NIF or phone is already registered.
	ErrAccountExists = errors.New("account already exists")
	// ErrPasswordTooLong is returned for passwords bcrypt cannot hash.
	ErrPasswordTooLong = errors.New("password too long")
	// ErrInvalidCredentials is returned for an unknown phone or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrRiskAreaNotFound is returned when confirming an unknown risk area.
	ErrRiskAreaNotFound = errors.New("risk area not found")
	// ErrAlreadyConfirmed is returned when the user already confirmed the area.
	ErrAlreadyConfirmed = errors.New("risk area already confirmed by user")
	// ErrIdentityRequired is returned when a confirmation has no user.
	ErrIdentityRequired = errors.New("identity required")
	// ErrUnsupportedFile is returned for evidence outside the image allow-list.
	ErrUnsupportedFile = errors.New("unsupported file type")
	// ErrFileTooLarge is returned for evidence above MaxEvidenceSize.
	ErrFileTooLarge = errors.New("file too large")
	// ErrEvidenceNotFound is returned when a stored file does not exist.
	ErrEvidenceNotFound = errors.New("evidence not found")
)

// EventPublisher emits domain events after writes commit.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) (string, error)
}

// CountCache caches confirmation counts per risk area.
type CountCache interface {
	Get(ctx context.Context, riskAreaID string) (int64, bool, error)
	Set(ctx context.Context, riskAreaID string, count int64) error
	Invalidate(ctx context.Context, riskAreaID string) error
}

type options struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	events  EventPublisher
	counts  CountCache
	now     func() time.Time
}

// Option configures the optional collaborators of a service.
type Option func(o *options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func WithEvents(publisher EventPublisher) Option {
	return func(o *options) {
		o.events = publisher
	}
}

// WithCountCache enables read-through caching of confirmation counts.
func WithCountCache(cache CountCache) Option {
	return func(o *options) {
		o.counts = cache
	}
}

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func newOptions(opts []Option) options {
	o := options{
		logger: logger.Discard(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

func (o options) timestamp() time.Time {
	return o.now().UTC().Truncate(time.Microsecond)
}

// publish emits the event and logs failures. The write it describes has
// already committed.
func (o options) publish(ctx context.Context, event events.Event) {
	if o.events == nil {
		return
	}
	if _, err := o.events.Publish(ctx, event); err != nil {
		o.logger.WarnContext(ctx, "failed to publish event",
			"type", event.Type,
			"risk_area_id", event.RiskAreaID,
			"error", err,
		)
	}
}
