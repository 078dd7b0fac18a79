package store

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestSessionStore(t *testing.T) (*RedisSessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return NewRedisSessionStore(mr.Addr(), "", time.Hour), mr
}

func TestRedisSessionRoundTrip(t *testing.T) {
	s, _ := newTestSessionStore(t)
	token, err := s.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if token == "" {
		t.Fatalf("empty token")
	}
	uid, ok, err := s.GetUserIDByToken(token)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if uid != "user-1" {
		t.Fatalf("uid = %q", uid)
	}
}

func TestRedisSessionDelete(t *testing.T) {
	s, _ := newTestSessionStore(t)
	token, err := s.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.DeleteSession(token); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.GetUserIDByToken(token); ok {
		t.Fatalf("expected token gone after delete")
	}
}

func TestRedisSessionExpires(t *testing.T) {
	s, mr := newTestSessionStore(t)
	token, err := s.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	mr.FastForward(2 * time.Hour)
	if _, ok, _ := s.GetUserIDByToken(token); ok {
		t.Fatalf("expected token expired")
	}
}

func TestRedisSessionUnknownToken(t *testing.T) {
	s, _ := newTestSessionStore(t)
	if _, ok, err := s.GetUserIDByToken("bogus"); err != nil || ok {
		t.Fatalf("unknown token: ok=%v err=%v", ok, err)
	}
}
