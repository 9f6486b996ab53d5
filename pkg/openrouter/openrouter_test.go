package openrouter

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHeaderClientAddsAttribution(t *testing.T) {
	t.Parallel()

	var gotReferer, gotTitle string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReferer = r.Header.Get("HTTP-Referer")
		gotTitle = r.Header.Get("X-Title")
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(server.Close)

	cfg := &OpenRouterConfig{SiteURL: " https://policypilot.local ", SiteName: "PolicyPilot"}
	client := newHeaderClient(time.Second, cfg.headers())

	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()

	if gotReferer != "https://policypilot.local" {
		t.Fatalf("unexpected referer: %q", gotReferer)
	}
	if gotTitle != "PolicyPilot" {
		t.Fatalf("unexpected title: %q", gotTitle)
	}
}

func TestHeadersEmptyWhenUnset(t *testing.T) {
	t.Parallel()

	cfg := &OpenRouterConfig{}
	if h := cfg.headers(); len(h) != 0 {
		t.Fatalf("expected no headers, got %v", h)
	}
}
