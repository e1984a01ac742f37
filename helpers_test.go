package goSession

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hvolkner/goSession/session"
)

const (
	testAnonID  int64 = 1
	testAliceID int64 = 2
	testBobID   int64 = 3

	testPassword = "correct-horse-battery"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// mockDirectory is an in-memory UserDirectory with optional password hashes
// and last-visit recording.
type mockDirectory struct {
	mu             sync.Mutex
	users          map[int64]*UserRecord
	byUsername     map[string]int64
	hashes         map[string]string
	blocked        map[string]bool
	hookErr        error
	assigned       map[string]int
	lastVisits     map[int64]int64
	setMethodCalls int
}

func newMockDirectory() *mockDirectory {
	d := &mockDirectory{
		users:      make(map[int64]*UserRecord),
		byUsername: make(map[string]int64),
		hashes:     make(map[string]string),
		blocked:    make(map[string]bool),
		assigned:   make(map[string]int),
		lastVisits: make(map[int64]int64),
	}
	d.add(&UserRecord{UserID: testAnonID, Username: "anonymous", Type: UserAnonymous}, "")
	return d
}

func (d *mockDirectory) add(u *UserRecord, passwordHash string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.UserID] = u
	d.byUsername[u.Username] = u.UserID
	if passwordHash != "" {
		d.hashes[u.Username] = passwordHash
	}
}

func (d *mockDirectory) GetUserByID(_ context.Context, id int64, onlyReal bool) (*UserRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok || (onlyReal && !u.Type.Real()) {
		return nil, nil
	}
	cp := *u
	cp.AuthMethod = d.assigned[u.Username]
	return &cp, nil
}

func (d *mockDirectory) GetUserByUsername(_ context.Context, username string, onlyReal bool) (*UserRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.byUsername[username]
	if !ok {
		return nil, nil
	}
	u := d.users[id]
	if onlyReal && !u.Type.Real() {
		return nil, nil
	}
	cp := *u
	cp.AuthMethod = d.assigned[username]
	return &cp, nil
}

func (d *mockDirectory) IsUserBlocked(_ context.Context, username string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.blocked[username], nil
}

func (d *mockDirectory) SetAuthMethodFor(_ context.Context, username string, methodID int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.assigned[username] = methodID
	d.setMethodCalls++
	return nil
}

func (d *mockDirectory) PostAuthHook(context.Context, string) error {
	return d.hookErr
}

func (d *mockDirectory) PasswordHashFor(_ context.Context, username string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, ok := d.hashes[username]
	return h, ok, nil
}

func (d *mockDirectory) RecordLastVisit(_ context.Context, userID int64, when int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastVisits[userID] = when
	return nil
}

func (d *mockDirectory) assignedMethod(username string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.assigned[username]
}

func (d *mockDirectory) lastVisit(userID int64) (int64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.lastVisits[userID]
	return v, ok
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Cookie.Name = "test"
	cfg.Cookie.Secure = false
	cfg.Metrics.Enabled = true
	return cfg
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	// modernc sqlite serializes writes per connection; keep tests on one.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	if err := session.Migrate(context.Background(), db, session.DefaultTables()); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	return db
}

func newTestEngine(t *testing.T, cfg Config, dir *mockDirectory) (*Engine, *fakeClock) {
	t.Helper()

	if dir.hashes["alice"] == "" {
		hash, err := HashPassword(testPassword, 4)
		if err != nil {
			t.Fatalf("hash failed: %v", err)
		}
		dir.add(&UserRecord{UserID: testAliceID, Username: "alice", Type: UserNormal}, hash)
		dir.add(&UserRecord{UserID: testBobID, Username: "bob", Type: UserNormal}, hash)
	}

	clock := newFakeClock()

	engine, err := New().
		WithConfig(cfg).
		WithDB(openTestDB(t)).
		WithDirectory(dir).
		WithMethods(MethodSpec{ID: 1, Driver: "password", Priority: 0, Active: true}).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, clock
}

func mustInitialize(t *testing.T, engine *Engine, req Request) *Handle {
	t.Helper()

	h, err := engine.Initialize(context.Background(), req)
	if err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	return h
}

func mustLogin(t *testing.T, h *Handle, username, password string, persist bool) *Handle {
	t.Helper()

	next, err := h.Login(context.Background(), username, password, persist)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	return next
}
