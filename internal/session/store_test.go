package session_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/waabox/catalogauth/internal/domain"
	"github.com/waabox/catalogauth/internal/session"
)

func sampleSession() domain.Session {
	issued := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return domain.Session{
		ID:          "9b2f7c1e-0000-4000-8000-000000000001",
		AccessToken: "tok_abc",
		TokenType:   "Bearer",
		Scope:       "catalog:read",
		IssuedAt:    issued,
		ExpiresAt:   issued.Add(time.Hour),
		Refreshes:   3,
	}
}

func assertSameSession(t *testing.T, want, got domain.Session) {
	t.Helper()
	if got.ID != want.ID || got.AccessToken != want.AccessToken || got.TokenType != want.TokenType ||
		got.Scope != want.Scope || got.Refreshes != want.Refreshes {
		t.Errorf("want %+v, got %+v", want, got)
	}
	if !got.IssuedAt.Equal(want.IssuedAt) || !got.ExpiresAt.Equal(want.ExpiresAt) {
		t.Errorf("timestamps: want %s/%s, got %s/%s", want.IssuedAt, want.ExpiresAt, got.IssuedAt, got.ExpiresAt)
	}
}

func TestFileStore_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "session.toml")
	store := session.NewFileStore(path)
	ctx := context.Background()

	if err := store.Save(ctx, sampleSession()); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	assertSameSession(t, sampleSession(), got)

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("expected mode 0600, got %o", perm)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "[session]") {
		t.Errorf("expected a [session] table, got:\n%s", data)
	}
}

func TestFileStore_LoadMissingIsNoSession(t *testing.T) {
	store := session.NewFileStore(filepath.Join(t.TempDir(), "session.toml"))
	if _, err := store.Load(context.Background()); !errors.Is(err, domain.ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestFileStore_LoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.toml")
	os.WriteFile(path, []byte("[session\nid ="), 0600)

	_, err := session.NewFileStore(path).Load(context.Background())
	if err == nil || errors.Is(err, domain.ErrNoSession) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestFileStore_DeleteIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.toml")
	store := session.NewFileStore(path)
	ctx := context.Background()

	store.Save(ctx, sampleSession())
	if err := store.Delete(ctx); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := store.Load(ctx); !errors.Is(err, domain.ErrNoSession) {
		t.Errorf("expected ErrNoSession after delete, got %v", err)
	}
}

func newRedisStore(t *testing.T) (*session.RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return session.NewRedisStore(rdb, "catalogauth:session"), mr
}

func TestRedisStore_SaveAndLoad(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	mr.SetTime(sampleSession().IssuedAt)

	if err := store.Save(ctx, sampleSession()); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	assertSameSession(t, sampleSession(), got)

	if v := mr.HGet("catalogauth:session", "refreshes"); v != "3" {
		t.Errorf("expected refreshes field '3', got '%s'", v)
	}
	if ttl := mr.TTL("catalogauth:session"); ttl <= 0 || ttl > time.Hour {
		t.Errorf("expected key to expire with the token, got ttl %s", ttl)
	}
}

func TestRedisStore_ExpiresWithToken(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	mr.SetTime(sampleSession().IssuedAt)

	store.Save(ctx, sampleSession())
	mr.FastForward(2 * time.Hour)

	if _, err := store.Load(ctx); !errors.Is(err, domain.ErrNoSession) {
		t.Fatalf("expected ErrNoSession after expiry, got %v", err)
	}
}

func TestRedisStore_DeleteAndMissing(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	if _, err := store.Load(ctx); !errors.Is(err, domain.ErrNoSession) {
		t.Fatalf("expected ErrNoSession on empty store, got %v", err)
	}
	store.Save(ctx, sampleSession())
	if err := store.Delete(ctx); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := store.Load(ctx); !errors.Is(err, domain.ErrNoSession) {
		t.Errorf("expected ErrNoSession after delete, got %v", err)
	}
}

func TestRedisStore_Unavailable(t *testing.T) {
	store, mr := newRedisStore(t)
	mr.Close()

	_, err := store.Load(context.Background())
	if err == nil || errors.Is(err, domain.ErrNoSession) {
		t.Fatalf("expected connection error, got %v", err)
	}
}

func TestManager_WithFileStoreSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.toml")
	clock := newFakeClock()
	ex := &fakeExchanger{clock: clock, ttl: time.Hour}

	first := session.NewManager(ex, session.Options{Clock: clock, Store: session.NewFileStore(path)})
	sess, err := first.Login(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	second := session.NewManager(ex, session.Options{Clock: clock, Store: session.NewFileStore(path)})
	resumed, err := second.Resume(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.ID != sess.ID || ex.Calls() != 1 {
		t.Errorf("expected session %s resumed without exchange, got %s after %d calls", sess.ID, resumed.ID, ex.Calls())
	}
}
