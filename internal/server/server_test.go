package server

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestNormalizeAddr(t *testing.T) {
	cases := map[string]string{
		"":               "",
		"8080":           ":8080",
		":8080":          ":8080",
		"127.0.0.1:9000": "127.0.0.1:9000",
	}
	for in, want := range cases {
		if got := normalizeAddr(in); got != want {
			t.Fatalf("normalizeAddr(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewHTTPServer_WriteTimeout(t *testing.T) {
	if got := newHTTPServer(":0", http.NotFoundHandler(), 0).WriteTimeout; got != defaultWriteTimeout {
		t.Fatalf("default write timeout = %v", got)
	}
	if got := newHTTPServer(":0", http.NotFoundHandler(), 2*time.Minute).WriteTimeout; got != 2*time.Minute {
		t.Fatalf("override write timeout = %v", got)
	}
}

func TestShutdownBeforeRun(t *testing.T) {
	var s Server
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
