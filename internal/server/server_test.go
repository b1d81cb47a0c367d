package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/deckterm/deckterm/internal/protocol"
	"github.com/deckterm/deckterm/internal/ptyhost"
)

func TestSecurityHeaders(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	securityHeaders(inner).ServeHTTP(rec, req)

	want := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"X-XSS-Protection":        "1; mode=block",
		"Content-Security-Policy": "default-src 'self'",
	}

	for header, expected := range want {
		if got := rec.Header().Get(header); got != expected {
			t.Errorf("header %s = %q, want %q", header, got, expected)
		}
	}
}

func TestAuthorize(t *testing.T) {
	s := NewServer(ptyhost.NewHost(ptyhost.Options{}), nil, Options{AuthToken: "secret"})

	tests := []struct {
		name   string
		target string
		header string
		want   bool
	}{
		{"no credentials", "/ws", "", false},
		{"query token", "/ws?token=secret", "", true},
		{"wrong query token", "/ws?token=nope", "", false},
		{"bearer", "/ws", "Bearer secret", true},
		{"wrong bearer", "/ws", "Bearer nope", false},
		{"basic scheme", "/ws", "Basic secret", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if got := s.authorize(req); got != tt.want {
				t.Errorf("authorize = %v, want %v", got, tt.want)
			}
		})
	}

	open := NewServer(ptyhost.NewHost(ptyhost.Options{}), nil, Options{})
	if !open.authorize(httptest.NewRequest(http.MethodGet, "/ws", nil)) {
		t.Error("server without token rejected request")
	}
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		host    string
		want    bool
	}{
		{name: "no origin", origin: "", want: true},
		{name: "same host", origin: "http://deck.local:3555", host: "deck.local:3555", want: true},
		{name: "localhost", origin: "http://localhost:5173", host: "deck.local:3555", want: true},
		{name: "loopback v4", origin: "http://127.0.0.1:8080", host: "deck.local:3555", want: true},
		{name: "loopback v6", origin: "http://[::1]:8080", host: "deck.local:3555", want: true},
		{name: "foreign", origin: "http://evil.example", host: "deck.local:3555", want: false},
		{name: "allow list exact", allowed: []string{"https://app.example"}, origin: "https://app.example", want: true},
		{name: "allow list host", allowed: []string{"https://app.example"}, origin: "http://app.example", want: true},
		{name: "allow list miss", allowed: []string{"https://app.example"}, origin: "http://localhost:1", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(ptyhost.NewHost(ptyhost.Options{}), nil, Options{AllowedOrigins: tt.allowed})
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			req.Host = tt.host
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := s.checkOrigin(req); got != tt.want {
				t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

func TestSessionsEndpoint(t *testing.T) {
	host := ptyhost.NewHost(ptyhost.Options{})
	defer host.Close()
	host.Create("sidebar-term-listed")

	s := NewServer(host, nil, Options{AuthToken: "tok"})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/sessions")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status without token = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/sessions?token=tok")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("security headers missing: X-Frame-Options = %q", got)
	}

	var sessions []protocol.SessionInfo
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 || sessions[0].ID != "sidebar-term-listed" || !sessions[0].Mock {
		t.Errorf("sessions = %+v", sessions)
	}
}

func TestHealthEndpoint(t *testing.T) {
	host := ptyhost.NewHost(ptyhost.Options{})
	defer host.Close()
	srv := httptest.NewServer(NewServer(host, nil, Options{AuthToken: "tok"}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200 without token", resp.StatusCode)
	}
	var body map[string]int
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if _, ok := body["sessions"]; !ok {
		t.Errorf("body = %v", body)
	}
}
