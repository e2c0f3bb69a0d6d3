package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func requestWithOrigin(origin string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/ws", http.NoBody)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	return req
}

func TestOriginPolicy(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{name: "exact match", allowed: []string{"http://localhost:3000"}, origin: "http://localhost:3000", want: true},
		{name: "case insensitive", allowed: []string{"http://LocalHost:3000"}, origin: "HTTP://localhost:3000", want: true},
		{name: "path ignored", allowed: []string{"http://localhost:3000/chat"}, origin: "http://localhost:3000", want: true},
		{name: "different port", allowed: []string{"http://localhost:3000"}, origin: "http://localhost:3001", want: false},
		{name: "missing origin", allowed: []string{"*"}, origin: "", want: false},
		{name: "malformed origin", allowed: []string{"*"}, origin: "not-a-url", want: false},
		{name: "wildcard", allowed: []string{"*"}, origin: "https://anywhere.example", want: true},
		{name: "invalid configured origin", allowed: []string{"localhost"}, origin: "http://localhost", want: false},
		{name: "nothing configured", allowed: nil, origin: "http://localhost:3000", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := newOriginPolicy(tt.allowed, zerolog.Nop())

			if got := policy.check(requestWithOrigin(tt.origin)); got != tt.want {
				t.Errorf("check(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

func TestOriginPolicyReasons(t *testing.T) {
	policy := newOriginPolicy([]string{"http://localhost:3000"}, zerolog.Nop())

	if err := policy.evaluate(""); !errors.Is(err, errOriginMissing) {
		t.Errorf("expected errOriginMissing, got %v", err)
	}
	if err := policy.evaluate("::"); !errors.Is(err, errOriginMalformed) {
		t.Errorf("expected errOriginMalformed, got %v", err)
	}
	if err := policy.evaluate("http://other:3000"); !errors.Is(err, errOriginForbidden) {
		t.Errorf("expected errOriginForbidden, got %v", err)
	}
}
