// Package cache stores hybrid search results keyed by normalized query and
// search parameters.
//
// The cache is advisory. A store that is down, slow or returns garbage
// degrades every lookup to a miss and every write to a no-op; callers never
// see an error from this package.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/knoguchi/insight/internal/metrics"
	"github.com/knoguchi/insight/internal/vectorstore"
)

// DefaultTTL is how long a search result stays cached (7 days).
const DefaultTTL = 7 * 24 * time.Hour

// ErrMiss is returned by a Store when the key does not exist or has expired.
var ErrMiss = errors.New("cache miss")

// Store is a byte-oriented key/value store with expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Ping(ctx context.Context) error
}

// Status describes how a lookup was resolved.
type Status int

const (
	// StatusMiss means the key was not present.
	StatusMiss Status = iota
	// StatusHit means a cached value was decoded.
	StatusHit
	// StatusError means the store failed or held an undecodable value;
	// the caller should treat it as a miss.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusHit:
		return "hit"
	case StatusError:
		return "error"
	default:
		return "miss"
	}
}

// Lookup is the outcome of ResultCache.Get.
type Lookup struct {
	Documents []vectorstore.Document
	Status    Status
	Err       error
}

// Hit reports whether Documents holds a cached value.
func (l Lookup) Hit() bool {
	return l.Status == StatusHit
}

// ResultCache serializes search results into a Store.
type ResultCache struct {
	store   Store
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a ResultCache.
type Option func(*ResultCache)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *ResultCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithLogger sets the logger used for swallowed store errors.
func WithLogger(logger *slog.Logger) Option {
	return func(c *ResultCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records lookup and write outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *ResultCache) {
		c.metrics = m
	}
}

// New creates a ResultCache over store.
func New(store Store, opts ...Option) *ResultCache {
	c := &ResultCache{
		store:  store,
		ttl:    DefaultTTL,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached documents for key. It never fails: store errors are
// logged and reported as StatusError.
func (c *ResultCache) Get(ctx context.Context, key string) Lookup {
	lookup := c.get(ctx, key)
	if lookup.Status == StatusError {
		c.logger.Warn("search cache read failed", "key", key, "error", lookup.Err)
	}
	c.metrics.CacheLookup(lookup.Status.String())
	return lookup
}

func (c *ResultCache) get(ctx context.Context, key string) Lookup {
	raw, err := c.store.Get(ctx, key)
	if errors.Is(err, ErrMiss) {
		return Lookup{Status: StatusMiss}
	}
	if err != nil {
		return Lookup{Status: StatusError, Err: err}
	}

	var docs []vectorstore.Document
	if err := json.Unmarshal(raw, &docs); err != nil {
		return Lookup{Status: StatusError, Err: err}
	}
	return Lookup{Documents: docs, Status: StatusHit}
}

// Set stores docs under key with the configured TTL. It reports whether the
// write succeeded; failures are logged and otherwise ignored.
func (c *ResultCache) Set(ctx context.Context, key string, docs []vectorstore.Document) bool {
	if docs == nil {
		docs = []vectorstore.Document{}
	}
	raw, err := json.Marshal(docs)
	if err == nil {
		err = c.store.Set(ctx, key, raw, c.ttl)
	}
	if err != nil {
		c.logger.Warn("search cache write failed", "key", key, "error", err)
		c.metrics.CacheWrite("error")
		return false
	}
	c.metrics.CacheWrite("ok")
	return true
}

// Ping checks the underlying store.
func (c *ResultCache) Ping(ctx context.Context) error {
	return c.store.Ping(ctx)
}
