package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestFromRequestCookies(t *testing.T) {
	req := httptest.NewRequest("GET", "https://shop.example.com/store/tw/cart", nil)
	req.AddCookie(&http.Cookie{Name: CartCookie, Value: "cart_1"})
	req.AddCookie(&http.Cookie{Name: AuthCookie, Value: "jwt"})
	req.AddCookie(&http.Cookie{Name: CacheCookie, Value: "cache-1"})
	w := httptest.NewRecorder()

	s := FromRequest(w, req, CookieOptions{})

	if s.CartID() != "cart_1" {
		t.Errorf("CartID = %q, want cart_1", s.CartID())
	}
	if s.AuthToken() != "jwt" {
		t.Errorf("AuthToken = %q, want jwt", s.AuthToken())
	}
	if s.CacheID() != "cache-1" {
		t.Errorf("CacheID = %q, want cache-1", s.CacheID())
	}
	if len(w.Result().Cookies()) != 0 {
		t.Errorf("unexpected Set-Cookie: %v", w.Result().Cookies())
	}
}

func TestFromRequestGeneratesCacheID(t *testing.T) {
	req := httptest.NewRequest("GET", "https://shop.example.com/", nil)
	w := httptest.NewRecorder()

	s := FromRequest(w, req, CookieOptions{Secure: true})

	if s.CacheID() == "" {
		t.Fatal("CacheID should be generated")
	}
	c := findCookie(w.Result(), CacheCookie)
	if c == nil {
		t.Fatal("cache cookie not set")
	}
	if c.Value != s.CacheID() {
		t.Errorf("cookie value = %q, want %q", c.Value, s.CacheID())
	}
	if !c.HttpOnly {
		t.Error("cache cookie should be HttpOnly")
	}
	if !c.Secure {
		t.Error("cache cookie should be Secure")
	}
	if c.Domain != "example.com" {
		t.Errorf("Domain = %q, want example.com", c.Domain)
	}
}

func TestCookieSessionSetAndClearCart(t *testing.T) {
	req := httptest.NewRequest("GET", "http://localhost:8080/", nil)
	req.AddCookie(&http.Cookie{Name: CacheCookie, Value: "cache-1"})
	w := httptest.NewRecorder()

	s := FromRequest(w, req, CookieOptions{})
	s.SetCartID("cart_9")

	if s.CartID() != "cart_9" {
		t.Errorf("CartID = %q, want cart_9", s.CartID())
	}
	c := findCookie(w.Result(), CartCookie)
	if c == nil || c.Value != "cart_9" {
		t.Fatalf("cart cookie = %+v", c)
	}
	if c.HttpOnly {
		t.Error("cart cookie must stay readable by client scripts")
	}
	if c.Domain != "" {
		t.Errorf("localhost cookie Domain = %q, want host-only", c.Domain)
	}

	w = httptest.NewRecorder()
	s = FromRequest(w, req, CookieOptions{})
	s.ClearCartID()
	c = findCookie(w.Result(), CartCookie)
	if c == nil || c.MaxAge >= 0 {
		t.Errorf("cleared cart cookie = %+v, want MaxAge < 0", c)
	}
	if s.CartID() != "" {
		t.Errorf("CartID after clear = %q", s.CartID())
	}
}

func TestFromRequestHeader(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(Header, `cart="cart_1", cache="c1", token="jwt"`)
	req.AddCookie(&http.Cookie{Name: CartCookie, Value: "cookie_cart"})
	w := httptest.NewRecorder()

	s := FromRequest(w, req, CookieOptions{})

	if s.CartID() != "cart_1" {
		t.Errorf("CartID = %q, want cart_1 (header wins)", s.CartID())
	}
	if s.AuthToken() != "jwt" || s.CacheID() != "c1" {
		t.Errorf("session = %+v", s)
	}

	s.SetCartID("cart_2")
	got, err := ParseHeader(w.Header().Get(Header))
	if err != nil {
		t.Fatalf("ParseHeader(response): %v", err)
	}
	if got.Cart != "cart_2" || got.Cache != "c1" {
		t.Errorf("echoed = %+v", got)
	}
	if got.Token != "" {
		t.Error("token must not be echoed")
	}
}

func TestFromRequestMalformedHeaderFallsBackToCookies(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(Header, `cart=`)
	req.AddCookie(&http.Cookie{Name: CartCookie, Value: "cookie_cart"})
	w := httptest.NewRecorder()

	s := FromRequest(w, req, CookieOptions{})
	if s.CartID() != "cookie_cart" {
		t.Errorf("CartID = %q, want cookie_cart", s.CartID())
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	in := &State{Cart: "cart_1", Cache: "c1"}
	raw, err := FormatHeader(in)
	if err != nil {
		t.Fatalf("FormatHeader: %v", err)
	}
	if raw != `cart="cart_1", cache="c1"` {
		t.Errorf("FormatHeader = %s", raw)
	}
}

func TestCookieDomain(t *testing.T) {
	tests := []struct {
		configured string
		host       string
		want       string
	}{
		{"", "shop.example.com", "example.com"},
		{"", "www.shop.example.co.uk:443", "example.co.uk"},
		{"", "localhost:8000", ""},
		{"", "127.0.0.1:8000", ""},
		{".custom.test", "shop.example.com", ".custom.test"},
	}
	for _, tc := range tests {
		t.Run(tc.host, func(t *testing.T) {
			if got := cookieDomain(tc.configured, tc.host); got != tc.want {
				t.Errorf("cookieDomain(%q, %q) = %q, want %q", tc.configured, tc.host, got, tc.want)
			}
		})
	}
}

func TestNewState(t *testing.T) {
	s := NewState("cart_1", "")
	if s.CacheID() == "" {
		t.Error("NewState should generate a cache ID")
	}
	if NewState("", "fixed").CacheID() != "fixed" {
		t.Error("NewState should keep a provided cache ID")
	}
}
