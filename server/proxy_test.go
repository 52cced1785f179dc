package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sambeau/sorrel/config"
)

func TestProxyMatches(t *testing.T) {
	p := NewProxy(config.ProxyConfig{Enabled: true, BasePath: "/api", Upstream: "http://localhost:9"}, testLogger())

	tests := []struct {
		path string
		want bool
	}{
		{"/api", true},
		{"/api/users", true},
		{"/apiary", false},
		{"/index.html", false},
	}
	for _, tt := range tests {
		if got := p.Matches(tt.path); got != tt.want {
			t.Errorf("Matches(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}

	disabled := NewProxy(config.ProxyConfig{Enabled: false, BasePath: "/api"}, testLogger())
	if disabled.Matches("/api/users") {
		t.Error("disabled proxy matched")
	}
}

func TestProxyForwardRelaysResponse(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/users" {
			t.Errorf("upstream saw path %q", r.URL.Path)
		}
		if r.Header.Get("X-Custom") != "yes" {
			t.Error("custom header not forwarded")
		}
		w.Header().Set("X-Upstream", "ok")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(201)
		w.Write([]byte(`{"users":[]}`))
	}))
	defer upstream.Close()

	p := NewProxy(config.ProxyConfig{Enabled: true, BasePath: "/api", Upstream: upstream.URL}, testLogger())

	req := &Request{
		Method:    "GET",
		RawTarget: "/api/users",
		Path:      "/api/users",
		headers: map[string]string{
			"x-custom":   "yes",
			"connection": "keep-alive",
		},
	}
	var conn recordConn
	if got := p.Forward(&conn, req, responseHeaderConfig{}); got != 201 {
		t.Errorf("Forward returned %d, want 201", got)
	}

	status, headers, body := splitResponse(t, conn.String())
	if !strings.HasPrefix(status, "HTTP/1.1 201") {
		t.Errorf("status = %q", status)
	}
	if headers["x-upstream"] != "ok" {
		t.Errorf("upstream header lost: %v", headers)
	}
	if headers["connection"] != "close" {
		t.Errorf("upstream connection header should be replaced, got %q", headers["connection"])
	}
	if body != `{"users":[]}` {
		t.Errorf("body = %q", body)
	}
}

func TestProxyForwardUpstreamDown(t *testing.T) {
	// Closed server: connection refused
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := upstream.URL
	upstream.Close()

	p := NewProxy(config.ProxyConfig{Enabled: true, BasePath: "/api", Upstream: url}, testLogger())
	req := &Request{Method: "GET", RawTarget: "/api/x", Path: "/api/x", headers: map[string]string{}}

	var conn recordConn
	if got := p.Forward(&conn, req, responseHeaderConfig{}); got != 502 {
		t.Errorf("Forward returned %d, want 502", got)
	}

	status, _, body := splitResponse(t, conn.String())
	if !strings.HasPrefix(status, "HTTP/1.1 502") {
		t.Errorf("status = %q, want 502", status)
	}
	if !bytes.Contains([]byte(body), []byte("Bad Gateway")) {
		t.Error("502 page missing message")
	}
}
