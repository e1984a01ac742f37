package session

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStore(client, "t"), mr
}

func TestRedisStoreInsertLookup(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	want := &Session{
		SessionID: "0123456789abcdef0123456789abcdef",
		UserID:    7,
		IP:        "203.0.113.9",
		Autologin: true,
		CreatedAt: storeTestNow,
		TouchedAt: storeTestNow,
	}
	mustInsert(t, store, want)

	got, err := store.Lookup(ctx, want.SessionID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if *got != *want {
		t.Errorf("lookup = %+v, want %+v", got, want)
	}
}

func TestRedisStoreLookupMiss(t *testing.T) {
	store, _ := newTestRedisStore(t)

	_, err := store.Lookup(context.Background(), "ffffffffffffffffffffffffffffffff")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("lookup miss error = %v, want ErrSessionNotFound", err)
	}
}

func TestRedisStoreTouch(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	mustInsert(t, store, &Session{SessionID: "s1", UserID: 1, CreatedAt: storeTestNow, TouchedAt: storeTestNow})

	if err := store.Touch(ctx, "s1", storeTestNow+120); err != nil {
		t.Fatalf("touch: %v", err)
	}
	got, err := store.Lookup(ctx, "s1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.TouchedAt != storeTestNow+120 {
		t.Errorf("TouchedAt = %d, want %d", got.TouchedAt, storeTestNow+120)
	}

	if err := store.Touch(ctx, "gone", storeTestNow); err != nil {
		t.Errorf("touch of deleted session = %v, want nil", err)
	}
}

func TestRedisStoreDeletePurgesVariables(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	mustInsert(t, store, &Session{SessionID: "s1", UserID: 1, CreatedAt: storeTestNow, TouchedAt: storeTestNow})
	if err := store.SetVariable(ctx, "s1", "cart", "3 items"); err != nil {
		t.Fatalf("set variable: %v", err)
	}

	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := store.Lookup(ctx, "s1"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("lookup after delete = %v, want ErrSessionNotFound", err)
	}
	if _, ok, err := store.GetVariable(ctx, "s1", "cart"); err != nil || ok {
		t.Errorf("variable after delete: ok=%v err=%v, want absent", ok, err)
	}
}

func TestRedisStoreKeyLifecycle(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	key := &Key{KeyHash: "aaaa", UserID: 4, LastIP: "198.51.100.1", LastLogin: storeTestNow}
	if err := store.UpsertKey(ctx, key); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := store.LookupKey(ctx, "aaaa", 4)
	if err != nil {
		t.Fatalf("lookup key: %v", err)
	}
	if *got != *key {
		t.Errorf("lookup key = %+v, want %+v", got, key)
	}

	if _, err := store.LookupKey(ctx, "bbbb", 4); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("wrong hash error = %v, want ErrKeyNotFound", err)
	}
	if _, err := store.LookupKey(ctx, "aaaa", 5); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("wrong user error = %v, want ErrKeyNotFound", err)
	}

	if err := store.UpsertKey(ctx, &Key{KeyHash: "new", UserID: 4, LastLogin: storeTestNow + 10}); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if _, err := store.LookupKey(ctx, "aaaa", 4); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("rotated-away hash error = %v, want ErrKeyNotFound", err)
	}

	if err := store.DeleteKey(ctx, 4); err != nil {
		t.Fatalf("delete key: %v", err)
	}
	if _, err := store.LookupKey(ctx, "new", 4); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("lookup after delete = %v, want ErrKeyNotFound", err)
	}
}

func TestRedisStoreVariables(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	if _, ok, err := store.GetVariable(ctx, "s1", "theme"); err != nil || ok {
		t.Fatalf("absent variable: ok=%v err=%v", ok, err)
	}

	if err := store.SetVariable(ctx, "s1", "theme", "dark"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.SetVariable(ctx, "s1", "theme", "light"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	value, ok, err := store.GetVariable(ctx, "s1", "theme")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if value != "light" {
		t.Errorf("value = %q, want %q", value, "light")
	}

	if err := store.DeleteVariable(ctx, "s1", "theme"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := store.GetVariable(ctx, "s1", "theme"); ok {
		t.Error("variable still present after delete")
	}
}

func TestRedisStoreExpiredSessions(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()
	policy := ExpiryPolicy{SessionLength: 3600, AllowAutologin: true, MaxAutologinDays: 2}

	mustInsert(t, store, &Session{SessionID: "fresh", UserID: 1, CreatedAt: storeTestNow, TouchedAt: storeTestNow - 600})
	mustInsert(t, store, &Session{SessionID: "stale", UserID: 2, CreatedAt: storeTestNow - 7200, TouchedAt: storeTestNow - 3700})
	mustInsert(t, store, &Session{SessionID: "autostale", UserID: 3, Autologin: true, CreatedAt: storeTestNow, TouchedAt: storeTestNow - 3*86400})

	expired, err := store.ExpiredSessions(ctx, policy, storeTestNow)
	if err != nil {
		t.Fatalf("expired sessions: %v", err)
	}

	got := map[string]bool{}
	for _, s := range expired {
		got[s.SessionID] = true
	}
	if !got["stale"] || !got["autostale"] || got["fresh"] {
		t.Errorf("expired = %v, want stale and autostale only", got)
	}
}

func TestRedisStoreExpiredSessionsSweepsCorruptBlobs(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	mustInsert(t, store, &Session{SessionID: "fresh", UserID: 1, CreatedAt: storeTestNow, TouchedAt: storeTestNow})
	if err := mr.Set("t:s:corrupt", "not a session blob"); err != nil {
		t.Fatalf("seed corrupt blob: %v", err)
	}

	expired, err := store.ExpiredSessions(ctx, ExpiryPolicy{SessionLength: 3600}, storeTestNow)
	if err != nil {
		t.Fatalf("expired sessions: %v", err)
	}

	if len(expired) != 1 || expired[0].SessionID != "corrupt" {
		t.Fatalf("expired = %+v, want only the corrupt blob", expired)
	}

	if err := store.DeleteSessions(ctx, []string{"corrupt"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists("t:s:corrupt") {
		t.Error("corrupt blob survived the sweep")
	}
}

func TestRedisStoreTryAdvanceGC(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()
	const interval = int64(3600)

	won, err := store.TryAdvanceGC(ctx, storeTestNow, interval)
	if err != nil {
		t.Fatalf("first gate: %v", err)
	}
	if !won {
		t.Fatal("first gate claim lost, want won")
	}

	won, err = store.TryAdvanceGC(ctx, storeTestNow+10, interval)
	if err != nil {
		t.Fatalf("second gate: %v", err)
	}
	if won {
		t.Error("gate won again inside the interval")
	}

	won, err = store.TryAdvanceGC(ctx, storeTestNow+interval, interval)
	if err != nil {
		t.Fatalf("third gate: %v", err)
	}
	if !won {
		t.Error("gate lost after the interval elapsed")
	}
}

func TestRedisStoreNextSerial(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	var prev uint64
	for i := 0; i < 5; i++ {
		serial, err := store.NextSerial(ctx)
		if err != nil {
			t.Fatalf("next serial: %v", err)
		}
		if serial != prev+1 {
			t.Fatalf("serial = %d, want %d", serial, prev+1)
		}
		prev = serial
	}
}
