package loyalty

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/eduardojeem/Mipos-sub025/internal/store"
)

// Service exposes the safe operations. It is stateless apart from its
// store handle and safe for concurrent use; the application may run any
// number of Service instances against the same database.
type Service struct {
	store  *store.Store
	guard  *Guard
	ids    IDGenerator
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithIDGenerator sets the identifier generator.
// Defaults to UUIDv7Generator. Tests substitute a fixed sequence.
func WithIDGenerator(ids IDGenerator) Option {
	return func(s *Service) { s.ids = ids }
}

// WithClock sets the time source. Defaults to time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service over the given store.
func NewService(st *store.Store, opts ...Option) *Service {
	s := &Service{
		store:  st,
		ids:    UUIDv7Generator{},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.guard = NewGuard(st, s.logger, s.now)
	return s
}

// Guard returns the service's idempotency guard.
func (s *Service) Guard() *Guard {
	return s.guard
}

// payloadString extracts a string field from a result payload.
func payloadString(m map[string]any, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", fmt.Errorf("result payload missing field %q", key)
	}
	str, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("result payload field %q has type %T, want string", key, v)
	}
	return str, nil
}

// payloadInt64 extracts an integer field from a result payload.
// Fresh payloads carry int64; replays decode to int64 as well.
func payloadInt64(m map[string]any, key string) (int64, error) {
	v, ok := m[key]
	if !ok {
		return 0, fmt.Errorf("result payload missing field %q", key)
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("result payload field %q has type %T, want int64", key, v)
	}
}
