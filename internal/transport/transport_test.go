package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	for _, kind := range []string{"", KindStandard} {
		rt, err := New(kind, time.Second)
		if err != nil {
			t.Fatalf("New(%q) error: %v", kind, err)
		}
		if rt != nil {
			t.Errorf("New(%q) = %T, want nil", kind, rt)
		}
	}

	rt, err := New(KindChrome, time.Second)
	if err != nil {
		t.Fatalf("New(chrome) error: %v", err)
	}
	if _, ok := rt.(*chromeTransport); !ok {
		t.Errorf("New(chrome) = %T, want *chromeTransport", rt)
	}

	if _, err := New("firefox", time.Second); err == nil {
		t.Error("New(firefox) expected error")
	}
}

func TestChromeTransportPlainHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.Method))
	}))
	defer srv.Close()

	client := &http.Client{Transport: NewChromeTransport(time.Second), Timeout: 5 * time.Second}
	resp, err := client.Post(srv.URL, "text/plain", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Post() error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if resp.ProtoMajor != 1 {
		t.Errorf("ProtoMajor = %d, want 1", resp.ProtoMajor)
	}
}
