package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const gcGateScript = `
local last = tonumber(redis.call("GET", KEYS[1]) or "0")
local now = tonumber(ARGV[1])
local interval = tonumber(ARGV[2])
if now - last >= interval then
  redis.call("SET", KEYS[1], now)
  return 1
end
return 0
`

var gcGateLua = redis.NewScript(gcGateScript)

// RedisStore keeps sessions, autologin keys, and session variables in Redis.
// Session rows are stored as binary blobs (see Encode), autologin keys as
// hashes keyed by user ID, and the GC gate is a Lua compare-and-set so
// concurrent processes cannot pile up sweeps.
//
// Rows carry no Redis TTL: expiry is a policy decision made by the engine
// and enforced by the garbage-collection sweep, exactly like the SQL
// backend.
//
//	Docs: docs/session.md
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore creates a [RedisStore] with the given key namespace prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "gs"
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + ":s:" + sessionID
}

func (s *RedisStore) userKeyKey(userID int64) string {
	return s.prefix + ":k:" + strconv.FormatInt(userID, 10)
}

func (s *RedisStore) varKey(sessionID, name string) string {
	return s.prefix + ":v:" + sessionID + ":" + name
}

func (s *RedisStore) gcKey() string {
	return s.prefix + ":gc"
}

func (s *RedisStore) serialKey() string {
	return s.prefix + ":serial"
}

// Lookup fetches and decodes a session blob.
//
// Lookup may return an error when input validation, dependency calls, or security checks fail.
// Lookup does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *RedisStore) Lookup(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.SessionID = sessionID
	return sess, nil
}

// Insert persists a new session blob.
//
// Insert may return an error when input validation, dependency calls, or security checks fail.
func (s *RedisStore) Insert(ctx context.Context, sess *Session) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(sess.SessionID), data, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Touch refreshes the last-activity timestamp. A session deleted between
// lookup and touch is a benign race, not an error.
//
// Touch may return an error when input validation, dependency calls, or security checks fail.
func (s *RedisStore) Touch(ctx context.Context, sessionID string, now int64) error {
	sess, err := s.Lookup(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		return err
	}

	sess.TouchedAt = now
	return s.Insert(ctx, sess)
}

// Delete removes a session blob and its variables.
//
// Delete may return an error when input validation, dependency calls, or security checks fail.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.redis.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return s.purgeVariables(ctx, sessionID)
}

func (s *RedisStore) purgeVariables(ctx context.Context, sessionID string) error {
	pattern := s.prefix + ":v:" + sessionID + ":*"
	var cursor uint64
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if len(keys) > 0 {
			if err := s.redis.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// LookupKey fetches the autologin key row for userID and compares the
// stored hash. A hash mismatch is indistinguishable from a missing row.
//
// LookupKey may return an error when input validation, dependency calls, or security checks fail.
// LookupKey does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *RedisStore) LookupKey(ctx context.Context, keyHash string, userID int64) (*Key, error) {
	fields, err := s.redis.HGetAll(ctx, s.userKeyKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(fields) == 0 || fields["hash"] != keyHash {
		return nil, ErrKeyNotFound
	}

	lastLogin, _ := strconv.ParseInt(fields["last_login"], 10, 64)
	return &Key{
		KeyHash:   fields["hash"],
		UserID:    userID,
		LastIP:    fields["last_ip"],
		LastLogin: lastLogin,
	}, nil
}

// UpsertKey rotates the user's autologin key in place.
//
// UpsertKey may return an error when input validation, dependency calls, or security checks fail.
func (s *RedisStore) UpsertKey(ctx context.Context, k *Key) error {
	err := s.redis.HSet(ctx, s.userKeyKey(k.UserID),
		"hash", k.KeyHash,
		"last_ip", k.LastIP,
		"last_login", strconv.FormatInt(k.LastLogin, 10),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// DeleteKey removes the user's autologin key, if any.
//
// DeleteKey may return an error when input validation, dependency calls, or security checks fail.
func (s *RedisStore) DeleteKey(ctx context.Context, userID int64) error {
	if err := s.redis.Del(ctx, s.userKeyKey(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// GetVariable reads a session variable.
//
// GetVariable may return an error when input validation, dependency calls, or security checks fail.
// GetVariable does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *RedisStore) GetVariable(ctx context.Context, sessionID, name string) (string, bool, error) {
	value, err := s.redis.Get(ctx, s.varKey(sessionID, name)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return value, true, nil
}

// SetVariable writes a session variable, replacing any previous value.
//
// SetVariable may return an error when input validation, dependency calls, or security checks fail.
func (s *RedisStore) SetVariable(ctx context.Context, sessionID, name, value string) error {
	if err := s.redis.Set(ctx, s.varKey(sessionID, name), value, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// DeleteVariable removes a session variable.
//
// DeleteVariable may return an error when input validation, dependency calls, or security checks fail.
func (s *RedisStore) DeleteVariable(ctx context.Context, sessionID, name string) error {
	if err := s.redis.Del(ctx, s.varKey(sessionID, name)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// ExpiredSessions scans the session namespace and returns every blob the
// policy considers dead at now. This is an O(n) sweep and only runs behind
// the GC gate, never in request hot paths.
//
// ExpiredSessions may return an error when input validation, dependency calls, or security checks fail.
// ExpiredSessions does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *RedisStore) ExpiredSessions(ctx context.Context, policy ExpiryPolicy, now int64) ([]*Session, error) {
	pattern := s.prefix + ":s:*"
	idOffset := len(s.prefix) + len(":s:")

	var (
		cursor  uint64
		expired []*Session
	)
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}

		for _, key := range keys {
			data, err := s.redis.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}

			sess, err := Decode(data)
			if err != nil {
				// Undecodable blobs are dead weight; sweep them too.
				expired = append(expired, &Session{SessionID: key[idOffset:]})
				continue
			}
			sess.SessionID = key[idOffset:]
			if policy.Expired(sess, now) {
				expired = append(expired, sess)
			}
		}

		cursor = next
		if cursor == 0 {
			return expired, nil
		}
	}
}

// DeleteSessions removes the given session blobs and their variables.
//
// DeleteSessions may return an error when input validation, dependency calls, or security checks fail.
func (s *RedisStore) DeleteSessions(ctx context.Context, sessionIDs []string) error {
	for _, id := range sessionIDs {
		if err := s.Delete(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// TryAdvanceGC claims the garbage-collection slot with a Lua
// compare-and-set on the persisted last-GC timestamp.
//
// TryAdvanceGC may return an error when input validation, dependency calls, or security checks fail.
func (s *RedisStore) TryAdvanceGC(ctx context.Context, now, interval int64) (bool, error) {
	won, err := gcGateLua.Run(ctx, s.redis, []string{s.gcKey()}, now, interval).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return won == 1, nil
}

// NextSerial increments and returns the unique-ID counter.
//
// NextSerial may return an error when input validation, dependency calls, or security checks fail.
func (s *RedisStore) NextSerial(ctx context.Context) (uint64, error) {
	serial, err := s.redis.Incr(ctx, s.serialKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return uint64(serial), nil
}
