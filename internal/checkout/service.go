// Package checkout turns a shopper's cart into a placed order.
//
// It owns the cart lifecycle (create, reuse, region correction, mutations),
// payment collection setup with provider emulation, and order finalization
// with recovery from the backend's payment-collection race. Every mutation
// invalidates the session's cache tags before returning.
package checkout

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"storefront-checkout/internal/backend"
	"storefront-checkout/internal/cache"
	"storefront-checkout/internal/model"
	"storefront-checkout/internal/session"
)

// DefaultTechnicalProvider is the backend provider that carries emulated
// payment methods unless configured otherwise.
const DefaultTechnicalProvider = "pp_system_default"

// PaymentAdapter declares a payment method the backend has no native
// provider for. Collections for Logical are created under Technical and the
// shopper's real choice is recorded in cart metadata.
type PaymentAdapter struct {
	Logical   string `json:"logical" yaml:"logical"`
	Technical string `json:"technical" yaml:"technical"`
}

// DefaultAdapters is the adapter set used when none is configured.
func DefaultAdapters() []PaymentAdapter {
	return []PaymentAdapter{{Logical: "bank-transfer", Technical: DefaultTechnicalProvider}}
}

// RegionResolver maps a locale to its region.
type RegionResolver interface {
	Resolve(ctx context.Context, locale string) (*model.Region, error)
}

// Config holds checkout settings.
type Config struct {
	// Adapters lists emulated payment methods. Nil means DefaultAdapters.
	Adapters []PaymentAdapter

	// FallbackProvider is the technical provider used by the last
	// collection tier for methods without an adapter.
	FallbackProvider string
}

// Service implements the checkout operations.
type Service struct {
	backend  backend.Backend
	regions  RegionResolver
	cache    *cache.Coordinator
	adapters map[string]string // logical -> technical
	fallback string
	locks    *cartLocks
	logger   *slog.Logger
}

// NewService creates a checkout service.
func NewService(b backend.Backend, regions RegionResolver, c *cache.Coordinator, cfg Config, logger *slog.Logger) *Service {
	adapters := cfg.Adapters
	if adapters == nil {
		adapters = DefaultAdapters()
	}
	byLogical := make(map[string]string, len(adapters))
	for _, a := range adapters {
		if a.Logical == "" || a.Technical == "" {
			continue
		}
		byLogical[a.Logical] = a.Technical
	}

	fallback := cfg.FallbackProvider
	if fallback == "" {
		fallback = DefaultTechnicalProvider
	}

	return &Service{
		backend:  b,
		regions:  regions,
		cache:    c,
		adapters: byLogical,
		fallback: fallback,
		locks:    newCartLocks(),
		logger:   logger,
	}
}

// IsEmulated reports whether provider is carried by an adapter.
func (s *Service) IsEmulated(provider string) bool {
	_, ok := s.adapters[provider]
	return ok
}

// technicalProvider returns the backend provider that carries logical.
func (s *Service) technicalProvider(logical string) string {
	if technical, ok := s.adapters[logical]; ok {
		return technical
	}
	return s.fallback
}

// authed returns ctx carrying the session's backend token.
func authed(ctx context.Context, sess session.Session) context.Context {
	return backend.WithAuthToken(ctx, sess.AuthToken())
}

// tags builds the session's cache tags for namespaces.
func tags(sess session.Session, namespaces ...cache.Namespace) []string {
	out := make([]string, 0, len(namespaces))
	for _, ns := range namespaces {
		out = append(out, cache.Tag(ns, sess.CacheID()))
	}
	return out
}

// invalidate drops the session's cached reads for namespaces.
func (s *Service) invalidate(sess session.Session, namespaces ...cache.Namespace) {
	s.cache.Invalidate(tags(sess, namespaces...)...)
}

func cacheKey(kind string, sess session.Session, id string) string {
	return strings.Join([]string{kind, sess.CacheID(), id}, ":")
}

// cartLocks serializes mutations on the same cart within this process.
// Writes from other processes are still ordered only by the backend.
type cartLocks struct {
	mu    sync.Mutex
	locks map[string]*cartLock
}

type cartLock struct {
	mu   sync.Mutex
	refs int
}

func newCartLocks() *cartLocks {
	return &cartLocks{locks: make(map[string]*cartLock)}
}

// lock acquires the mutex for cartID and returns its release function.
func (l *cartLocks) lock(cartID string) func() {
	l.mu.Lock()
	cl, ok := l.locks[cartID]
	if !ok {
		cl = &cartLock{}
		l.locks[cartID] = cl
	}
	cl.refs++
	l.mu.Unlock()

	cl.mu.Lock()
	return func() {
		cl.mu.Unlock()
		l.mu.Lock()
		cl.refs--
		if cl.refs == 0 {
			delete(l.locks, cartID)
		}
		l.mu.Unlock()
	}
}
