package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	settingGCTime = "gc_time"
	settingSerial = "unique_id"
)

// BindStyle selects the parameter placeholder syntax of the underlying
// driver.
type BindStyle int

const (
	// BindQuestion uses ? placeholders (SQLite, MySQL).
	BindQuestion BindStyle = iota
	// BindDollar uses $1..$n placeholders (PostgreSQL drivers such as pgx).
	BindDollar
)

func rebind(style BindStyle, query string) string {
	if style != BindDollar {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// SQLStore persists sessions in three relational tables plus a small
// settings table for the GC timestamp and unique-ID serial. It works with
// any database/sql driver; parameter placeholders use the ? style rewritten
// by the driver where necessary.
//
// All mutations are single statements, so the database remains the sole
// arbiter of concurrent requests touching the same rows.
//
//	Docs: docs/session.md
type SQLStore struct {
	db     *sql.DB
	tables Tables

	qLookup    string
	qInsert    string
	qTouch     string
	qDelete    string
	qKeyLookup string
	qKeyUpdate string
	qKeyInsert string
	qKeyDelete string
	qVarGet    string
	qVarSet    string
	qVarInsert string
	qVarDelete string
	qVarPurge  string
	qExpired   string
	qGCAdvance string
	qSerialInc string
	qSerialGet string
}

// NewSQLStore creates a [SQLStore] over db using the given table names and
// placeholder style. Empty table names fall back to [DefaultTables]; an
// empty Variables name is allowed and disables session variables (access
// then fails with [ErrVariablesUnavailable]).
func NewSQLStore(db *sql.DB, tables Tables, bind BindStyle) *SQLStore {
	def := DefaultTables()
	if tables.Sessions == "" {
		tables.Sessions = def.Sessions
	}
	if tables.Keys == "" {
		tables.Keys = def.Keys
	}
	if tables.Settings == "" {
		tables.Settings = def.Settings
	}

	s := &SQLStore{db: db, tables: tables}

	s.qLookup = fmt.Sprintf(
		"SELECT session_id, session_user_id, session_start, session_time, session_ip, session_autologin FROM %s WHERE session_id = ?",
		tables.Sessions)
	s.qInsert = fmt.Sprintf(
		"INSERT INTO %s (session_id, session_user_id, session_start, session_time, session_ip, session_autologin) VALUES (?, ?, ?, ?, ?, ?)",
		tables.Sessions)
	s.qTouch = fmt.Sprintf("UPDATE %s SET session_time = ? WHERE session_id = ?", tables.Sessions)
	s.qDelete = fmt.Sprintf("DELETE FROM %s WHERE session_id = ?", tables.Sessions)

	s.qKeyLookup = fmt.Sprintf(
		"SELECT key_id, user_id, last_ip, last_login FROM %s WHERE key_id = ? AND user_id = ?", tables.Keys)
	s.qKeyUpdate = fmt.Sprintf(
		"UPDATE %s SET key_id = ?, last_ip = ?, last_login = ? WHERE user_id = ?", tables.Keys)
	s.qKeyInsert = fmt.Sprintf(
		"INSERT INTO %s (key_id, user_id, last_ip, last_login) VALUES (?, ?, ?, ?)", tables.Keys)
	s.qKeyDelete = fmt.Sprintf("DELETE FROM %s WHERE user_id = ?", tables.Keys)

	if tables.Variables != "" {
		s.qVarGet = fmt.Sprintf(
			"SELECT var_value FROM %s WHERE session_id = ? AND var_name = ?", tables.Variables)
		s.qVarSet = fmt.Sprintf(
			"UPDATE %s SET var_value = ? WHERE session_id = ? AND var_name = ?", tables.Variables)
		s.qVarInsert = fmt.Sprintf(
			"INSERT INTO %s (session_id, var_name, var_value) VALUES (?, ?, ?)", tables.Variables)
		s.qVarDelete = fmt.Sprintf(
			"DELETE FROM %s WHERE session_id = ? AND var_name = ?", tables.Variables)
		s.qVarPurge = fmt.Sprintf("DELETE FROM %s WHERE session_id = ?", tables.Variables)
	}

	// Candidate set only; the policy makes the final call in Go so that
	// autologin age rules stay in one place.
	s.qExpired = fmt.Sprintf(
		"SELECT session_id, session_user_id, session_start, session_time, session_ip, session_autologin FROM %s WHERE session_time < ? OR session_autologin = 1",
		tables.Sessions)

	s.qGCAdvance = fmt.Sprintf(
		"UPDATE %s SET value = ? WHERE name = '%s' AND value <= ?", tables.Settings, settingGCTime)
	s.qSerialInc = fmt.Sprintf(
		"UPDATE %s SET value = value + 1 WHERE name = '%s'", tables.Settings, settingSerial)
	s.qSerialGet = fmt.Sprintf(
		"SELECT value FROM %s WHERE name = '%s'", tables.Settings, settingSerial)

	for _, q := range []*string{
		&s.qLookup, &s.qInsert, &s.qTouch, &s.qDelete,
		&s.qKeyLookup, &s.qKeyUpdate, &s.qKeyInsert, &s.qKeyDelete,
		&s.qVarGet, &s.qVarSet, &s.qVarInsert, &s.qVarDelete, &s.qVarPurge,
		&s.qExpired, &s.qGCAdvance, &s.qSerialInc, &s.qSerialGet,
	} {
		*q = rebind(bind, *q)
	}

	return s
}

// Migrate creates the configured tables when missing.
func (s *SQLStore) Migrate(ctx context.Context) error {
	t := s.tables
	if t.Variables == "" {
		t.Variables = DefaultTables().Variables
	}
	return Migrate(ctx, s.db, t)
}

// Lookup fetches a session row by ID.
//
// Lookup may return an error when input validation, dependency calls, or security checks fail.
// Lookup does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *SQLStore) Lookup(ctx context.Context, sessionID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, s.qLookup, sessionID)
	return scanSession(row)
}

// Insert persists a new session row.
//
// Insert may return an error when input validation, dependency calls, or security checks fail.
func (s *SQLStore) Insert(ctx context.Context, sess *Session) error {
	autologin := 0
	if sess.Autologin {
		autologin = 1
	}
	_, err := s.db.ExecContext(ctx, s.qInsert,
		sess.SessionID, sess.UserID, sess.CreatedAt, sess.TouchedAt, sess.IP, autologin)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Touch refreshes the last-activity timestamp. A session deleted between
// lookup and touch is a benign race, not an error.
//
// Touch may return an error when input validation, dependency calls, or security checks fail.
func (s *SQLStore) Touch(ctx context.Context, sessionID string, now int64) error {
	if _, err := s.db.ExecContext(ctx, s.qTouch, now, sessionID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Delete removes a session row and its variables. Deleting a missing row is
// a no-op.
//
// Delete may return an error when input validation, dependency calls, or security checks fail.
func (s *SQLStore) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, s.qDelete, sessionID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if s.qVarPurge != "" {
		if _, err := s.db.ExecContext(ctx, s.qVarPurge, sessionID); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	return nil
}

// LookupKey fetches the autologin key row matching both the hashed key and
// the claimed user ID. A key is only honored for the user it was issued to.
//
// LookupKey may return an error when input validation, dependency calls, or security checks fail.
// LookupKey does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *SQLStore) LookupKey(ctx context.Context, keyHash string, userID int64) (*Key, error) {
	k := &Key{}
	err := s.db.QueryRowContext(ctx, s.qKeyLookup, keyHash, userID).
		Scan(&k.KeyHash, &k.UserID, &k.LastIP, &k.LastLogin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return k, nil
}

// UpsertKey rotates the user's autologin key: the existing row is
// overwritten in place, so the table never accumulates more than one row per
// user.
//
// UpsertKey may return an error when input validation, dependency calls, or security checks fail.
func (s *SQLStore) UpsertKey(ctx context.Context, k *Key) error {
	res, err := s.db.ExecContext(ctx, s.qKeyUpdate, k.KeyHash, k.LastIP, k.LastLogin, k.UserID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}

	if _, err := s.db.ExecContext(ctx, s.qKeyInsert, k.KeyHash, k.UserID, k.LastIP, k.LastLogin); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// DeleteKey removes the user's autologin key row, if any.
//
// DeleteKey may return an error when input validation, dependency calls, or security checks fail.
func (s *SQLStore) DeleteKey(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx, s.qKeyDelete, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// GetVariable reads a session variable. The second return value reports
// presence; a deleted variable is absent, never NULL.
//
// GetVariable may return an error when input validation, dependency calls, or security checks fail.
// GetVariable does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *SQLStore) GetVariable(ctx context.Context, sessionID, name string) (string, bool, error) {
	if s.qVarGet == "" {
		return "", false, ErrVariablesUnavailable
	}

	var value string
	err := s.db.QueryRowContext(ctx, s.qVarGet, sessionID, name).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return value, true, nil
}

// SetVariable writes a session variable row, replacing any previous value.
//
// SetVariable may return an error when input validation, dependency calls, or security checks fail.
func (s *SQLStore) SetVariable(ctx context.Context, sessionID, name, value string) error {
	if s.qVarSet == "" {
		return ErrVariablesUnavailable
	}

	res, err := s.db.ExecContext(ctx, s.qVarSet, value, sessionID, name)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}

	if _, err := s.db.ExecContext(ctx, s.qVarInsert, sessionID, name, value); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// DeleteVariable removes a session variable row.
//
// DeleteVariable may return an error when input validation, dependency calls, or security checks fail.
func (s *SQLStore) DeleteVariable(ctx context.Context, sessionID, name string) error {
	if s.qVarDelete == "" {
		return ErrVariablesUnavailable
	}
	if _, err := s.db.ExecContext(ctx, s.qVarDelete, sessionID, name); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// ExpiredSessions returns every row the policy considers dead at now.
//
// ExpiredSessions may return an error when input validation, dependency calls, or security checks fail.
// ExpiredSessions does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *SQLStore) ExpiredSessions(ctx context.Context, policy ExpiryPolicy, now int64) ([]*Session, error) {
	cutoff := now - (policy.SessionLength + expiryGrace)

	rows, err := s.db.QueryContext(ctx, s.qExpired, cutoff)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var expired []*Session
	for rows.Next() {
		sess, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		if policy.Expired(sess, now) {
			expired = append(expired, sess)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return expired, nil
}

// DeleteSessions removes the given session rows and their variables.
//
// DeleteSessions may return an error when input validation, dependency calls, or security checks fail.
func (s *SQLStore) DeleteSessions(ctx context.Context, sessionIDs []string) error {
	for _, id := range sessionIDs {
		if err := s.Delete(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// TryAdvanceGC claims the garbage-collection slot with a conditional UPDATE:
// the affected-row count decides the winner, so concurrent processes cannot
// pile up sweeps.
//
// TryAdvanceGC may return an error when input validation, dependency calls, or security checks fail.
func (s *SQLStore) TryAdvanceGC(ctx context.Context, now, interval int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.qGCAdvance, now, now-interval)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n > 0, nil
}

// NextSerial increments and returns the unique-ID counter inside a single
// transaction.
//
// NextSerial may return an error when input validation, dependency calls, or security checks fail.
func (s *SQLStore) NextSerial(ctx context.Context) (uint64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.qSerialInc); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var serial uint64
	if err := tx.QueryRowContext(ctx, s.qSerialGet).Scan(&serial); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return serial, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	sess := &Session{}
	var autologin int

	err := row.Scan(&sess.SessionID, &sess.UserID, &sess.CreatedAt, &sess.TouchedAt, &sess.IP, &autologin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	sess.Autologin = autologin != 0
	return sess, nil
}

func scanSessionRows(rows *sql.Rows) (*Session, error) {
	return scanSession(rows)
}
