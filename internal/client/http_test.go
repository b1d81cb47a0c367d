package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/deckterm/deckterm/internal/protocol"
)

func TestBaseURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "ws://127.0.0.1:3555/ws", want: "http://127.0.0.1:3555"},
		{in: "wss://deck.local/ws?token=x", want: "https://deck.local"},
		{in: "http://localhost:3555", want: "http://localhost:3555"},
		{in: "ftp://host/ws", wantErr: true},
		{in: "ws:///ws", wantErr: true},
	}
	for _, tt := range tests {
		got, err := BaseURL(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("BaseURL(%q) = %q, want error", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("BaseURL(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("BaseURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSessions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sessions" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode([]protocol.SessionInfo{
			{ID: "sidebar-term-1", PID: 42, Rows: 15, Cols: 80, Subscribers: 1},
		})
	}))
	defer srv.Close()

	sessions, err := NewHTTPClient(srv.URL, "tok").Sessions(context.Background())
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "sidebar-term-1" || sessions[0].PID != 42 {
		t.Errorf("sessions = %+v", sessions)
	}

	_, err = NewHTTPClient(srv.URL, "").Sessions(context.Background())
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("err = %v, want 401", err)
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			w.Write([]byte("ok"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	if err := NewHTTPClient(srv.URL, "").Health(context.Background()); err != nil {
		t.Errorf("Health: %v", err)
	}
}
