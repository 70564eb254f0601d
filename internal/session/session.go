// Package session carries per-shopper checkout state between requests:
// the active cart ID, the backend auth token, and the cache namespace ID.
//
// Browsers carry it in cookies. Non-browser clients (the checkoutctl CLI,
// integration tests) send an RFC 8941 dictionary in the Storefront-Session
// request header and receive updates in the same response header.
package session

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dunglas/httpsfv"
	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"
)

const (
	// CartCookie is readable by client scripts; the storefront UI shows a
	// cart badge from it.
	CartCookie  = "_medusa_cart_id"
	AuthCookie  = "_medusa_jwt"
	CacheCookie = "_medusa_cache_id"

	// Header is the structured-field alternative to cookies.
	// Example: Storefront-Session: cart="cart_01H...", cache="6f1c..."
	Header = "Storefront-Session"

	keyCart  = "cart"
	keyCache = "cache"
	keyToken = "token"
)

// Session is the state a checkout operation reads and writes.
type Session interface {
	CartID() string
	SetCartID(id string)
	ClearCartID()
	AuthToken() string
	CacheID() string
}

// State is an in-memory Session. MCP tools and tests use it directly; the
// HTTP implementations embed it and persist changes to the response.
type State struct {
	Cart  string `json:"cart_id,omitempty"`
	Token string `json:"-"`
	Cache string `json:"cache_id,omitempty"`
}

// NewState returns a State with a fresh cache ID when cacheID is empty.
func NewState(cartID, cacheID string) *State {
	if cacheID == "" {
		cacheID = uuid.NewString()
	}
	return &State{Cart: cartID, Cache: cacheID}
}

func (s *State) CartID() string      { return s.Cart }
func (s *State) SetCartID(id string) { s.Cart = id }
func (s *State) ClearCartID()        { s.Cart = "" }
func (s *State) AuthToken() string   { return s.Token }
func (s *State) CacheID() string     { return s.Cache }

// CookieOptions controls the cookies written for browser sessions.
type CookieOptions struct {
	// Domain is the cookie domain. Empty derives the registrable domain of the
	// request host so the cookies are shared across storefront subdomains.
	Domain string
	Secure bool
	MaxAge time.Duration
}

// FromRequest builds the Session for r. The Storefront-Session header wins
// over cookies when present and well-formed.
func FromRequest(w http.ResponseWriter, r *http.Request, opts CookieOptions) Session {
	if raw := r.Header.Get(Header); raw != "" {
		if state, err := ParseHeader(raw); err == nil {
			hs := &headerSession{State: *state, w: w}
			if hs.Cache == "" {
				hs.Cache = uuid.NewString()
				hs.write()
			}
			return hs
		}
	}

	cs := &cookieSession{w: w, opts: opts, domain: cookieDomain(opts.Domain, r.Host)}
	if c, err := r.Cookie(CartCookie); err == nil {
		cs.Cart = c.Value
	}
	if c, err := r.Cookie(AuthCookie); err == nil {
		cs.Token = c.Value
	}
	if c, err := r.Cookie(CacheCookie); err == nil && c.Value != "" {
		cs.Cache = c.Value
	} else {
		cs.Cache = uuid.NewString()
		cs.set(CacheCookie, cs.Cache, true)
	}
	return cs
}

// ParseHeader decodes a Storefront-Session dictionary.
// Unknown members are ignored; known members must be strings.
func ParseHeader(raw string) (*State, error) {
	dict, err := httpsfv.UnmarshalDictionary([]string{raw})
	if err != nil {
		return nil, err
	}

	state := &State{}
	for key, dst := range map[string]*string{
		keyCart:  &state.Cart,
		keyCache: &state.Cache,
		keyToken: &state.Token,
	} {
		member, ok := dict.Get(key)
		if !ok {
			continue
		}
		item, ok := member.(httpsfv.Item)
		if !ok {
			continue
		}
		if s, ok := item.Value.(string); ok {
			*dst = s
		}
	}
	return state, nil
}

// FormatHeader encodes s as a Storefront-Session dictionary. Empty fields
// are omitted.
func FormatHeader(s *State) (string, error) {
	dict := httpsfv.NewDictionary()
	if s.Cart != "" {
		dict.Add(keyCart, httpsfv.NewItem(s.Cart))
	}
	if s.Cache != "" {
		dict.Add(keyCache, httpsfv.NewItem(s.Cache))
	}
	if s.Token != "" {
		dict.Add(keyToken, httpsfv.NewItem(s.Token))
	}
	return httpsfv.Marshal(dict)
}

// headerSession echoes every change back in the response header.
type headerSession struct {
	State
	w http.ResponseWriter
}

func (s *headerSession) SetCartID(id string) {
	s.State.SetCartID(id)
	s.write()
}

func (s *headerSession) ClearCartID() {
	s.State.ClearCartID()
	s.write()
}

func (s *headerSession) write() {
	// The token is never echoed back.
	echo := State{Cart: s.Cart, Cache: s.Cache}
	if v, err := FormatHeader(&echo); err == nil {
		s.w.Header().Set(Header, v)
	}
}

// cookieSession persists changes as Set-Cookie headers.
type cookieSession struct {
	State
	w      http.ResponseWriter
	opts   CookieOptions
	domain string
}

func (s *cookieSession) SetCartID(id string) {
	s.State.SetCartID(id)
	s.set(CartCookie, id, false)
}

func (s *cookieSession) ClearCartID() {
	s.State.ClearCartID()
	http.SetCookie(s.w, &http.Cookie{
		Name:   CartCookie,
		Value:  "",
		Path:   "/",
		Domain: s.domain,
		MaxAge: -1,
	})
}

func (s *cookieSession) set(name, value string, httpOnly bool) {
	maxAge := s.opts.MaxAge
	if maxAge == 0 {
		maxAge = 7 * 24 * time.Hour
	}
	http.SetCookie(s.w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   s.domain,
		MaxAge:   int(maxAge.Seconds()),
		Secure:   s.opts.Secure,
		HttpOnly: httpOnly,
		SameSite: http.SameSiteStrictMode,
	})
}

// cookieDomain returns configured, or the registrable domain of host.
// Hosts without a public suffix (localhost, IPs) get host-only cookies.
func cookieDomain(configured, host string) string {
	if configured != "" {
		return configured
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(host)
	if host == "" || net.ParseIP(host) != nil || !strings.Contains(host, ".") {
		return ""
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return ""
	}
	return domain
}

type ctxKey struct{}

// WithSession returns a context carrying s.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the Session stored by WithSession, or nil.
func FromContext(ctx context.Context) Session {
	s, _ := ctx.Value(ctxKey{}).(Session)
	return s
}
