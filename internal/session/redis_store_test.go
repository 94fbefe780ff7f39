package session

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://"+s.Addr(), "groupspend:session:")
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, s
}

func TestNewRedisStore(t *testing.T) {
	store, _ := setupTestRedis(t)

	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewRedisStore_InvalidURL(t *testing.T) {
	if _, err := NewRedisStore("://bad", "p:"); err == nil {
		t.Error("expected error for invalid redis url")
	}
}

func TestRedisStore(t *testing.T) {
	store, _ := setupTestRedis(t)
	storeContract(t, store)
}

func TestRedisStore_KeyLayout(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()

	if err := store.SaveTokens(ctx, "a", "r"); err != nil {
		t.Fatalf("SaveTokens failed: %v", err)
	}

	if got, _ := s.Get("groupspend:session:accessToken"); got != "a" {
		t.Errorf("accessToken key = %q", got)
	}
	if got, _ := s.Get("groupspend:session:refreshToken"); got != "r" {
		t.Errorf("refreshToken key = %q", got)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if s.Exists("groupspend:session:accessToken") || s.Exists("groupspend:session:refreshToken") {
		t.Error("keys still present after Clear")
	}
}

func TestRedisStore_UnparseableUserIsAbsent(t *testing.T) {
	store, s := setupTestRedis(t)

	s.Set("groupspend:session:accessToken", "a")
	s.Set("groupspend:session:user", "{broken")

	got, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.User != nil {
		t.Errorf("user = %+v, want nil", got.User)
	}
}
