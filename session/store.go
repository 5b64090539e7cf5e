package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable is an exported constant or variable used by the session engine.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrRotationTargetNotFound is returned when the rotation target session does not exist.
var ErrRotationTargetNotFound = errors.New("rotation target session not found")

// ErrRotationTargetExpired is returned when the rotation target session is expired.
var ErrRotationTargetExpired = errors.New("rotation target session expired")

const (
	rotateStatusNotFound int64 = 0
	rotateStatusExpired  int64 = 1
	rotateStatusRotated  int64 = 2
)

const removeSessionScript = `
local existed = redis.call("EXISTS", KEYS[1])
redis.call("ZREM", KEYS[2], ARGV[1])
if existed == 1 then
  redis.call("DEL", KEYS[1])
end
return existed
`

var removeSessionLua = redis.NewScript(removeSessionScript)

const rotateSessionScript = `
local function read_be64(s, i)
  local b1 = string.byte(s, i)
  local b2 = string.byte(s, i + 1)
  local b3 = string.byte(s, i + 2)
  local b4 = string.byte(s, i + 3)
  local b5 = string.byte(s, i + 4)
  local b6 = string.byte(s, i + 5)
  local b7 = string.byte(s, i + 6)
  local b8 = string.byte(s, i + 7)
  if not b8 then
    return nil
  end
  return ((((((((b1 * 256) + b2) * 256 + b3) * 256 + b4) * 256 + b5) * 256 + b6) * 256 + b7) * 256 + b8)
end

local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end

redis.call("DEL", KEYS[1])
redis.call("ZREM", KEYS[3], ARGV[1])

if #data < 8 then
  return 0
end
local expires = read_be64(data, #data - 7)
if not expires or expires <= tonumber(ARGV[6]) then
  return 1
end

redis.call("SET", KEYS[2], ARGV[3], "PX", ARGV[4])
redis.call("ZADD", KEYS[3], ARGV[5], ARGV[2])
redis.call("PEXPIRE", KEYS[3], ARGV[4])
return 2
`

var rotateSessionLua = redis.NewScript(rotateSessionScript)

// Store is a Redis-backed session store that handles persistence, expiration,
// per-principal session indexing, and atomic refresh rotation.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewStore creates a session [Store] backed by the given Redis client.
// prefix sets the Redis key namespace for session records. now overrides the
// time source for expiry checks; nil means time.Now.
func NewStore(client redis.UniversalClient, prefix string, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		redis:  client,
		prefix: prefix,
		now:    now,
	}
}

func (s *Store) key(tenantID, tokenID string) string {
	return s.prefix + ":" + normalizeTenantID(tenantID) + ":" + tokenID
}

func (s *Store) principalKey(tenantID, principalID string) string {
	return "acu:" + normalizeTenantID(tenantID) + ":" + principalID
}

func normalizeTenantID(tenantID string) string {
	if tenantID == "" {
		return "0"
	}
	return tenantID
}

// Append persists a new [Session] to Redis with the given TTL and records its
// token ID in the principal index, scored by expiry.
//
//	Performance: 3 Redis commands in one MULTI (SET + ZADD + PEXPIRE).
func (s *Store) Append(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	sessionKey := s.key(sess.TenantID, sess.TokenID)
	indexKey := s.principalKey(sess.TenantID, sess.PrincipalID)

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey, data, ttl)
		pipe.ZAdd(ctx, indexKey, redis.Z{Score: float64(sess.ExpiresAt), Member: sess.TokenID})
		pipe.PExpire(ctx, indexKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// FindByToken retrieves a session by tenant and token ID. Returns redis.Nil
// when the record is absent or already past its expiry. Absence of a record
// for a validly signed token is the caller's reuse signal.
//
//	Performance: 1 Redis GET on the happy path.
func (s *Store) FindByToken(ctx context.Context, tenantID, tokenID string) (*Session, error) {
	key := s.key(tenantID, tokenID)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.TokenID = tokenID

	if sess.ExpiresAt <= s.now().Unix() {
		if err := s.Remove(ctx, tenantID, sess.PrincipalID, tokenID); err != nil {
			return nil, err
		}
		return nil, redis.Nil
	}

	return sess, nil
}

// Replace atomically removes the session stored under oldTokenID and inserts
// newSess in its place. Exactly one concurrent caller can win the removal;
// all others observe [ErrRotationTargetNotFound]. The not-found and expired
// results both wrap redis.Nil so callers can route them to reuse handling
// with a single errors.Is check.
//
//	Performance: 1 Redis EVALSHA.
func (s *Store) Replace(ctx context.Context, oldTokenID string, newSess *Session, ttl time.Duration) error {
	data, err := Encode(newSess)
	if err != nil {
		return err
	}

	keys := []string{
		s.key(newSess.TenantID, oldTokenID),
		s.key(newSess.TenantID, newSess.TokenID),
		s.principalKey(newSess.TenantID, newSess.PrincipalID),
	}
	argv := []interface{}{
		oldTokenID,
		newSess.TokenID,
		data,
		strconv.FormatInt(ttl.Milliseconds(), 10),
		strconv.FormatInt(newSess.ExpiresAt, 10),
		strconv.FormatInt(s.now().Unix(), 10),
	}

	status, err := rotateSessionLua.Run(ctx, s.redis, keys, argv...).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	switch status {
	case rotateStatusRotated:
		return nil
	case rotateStatusExpired:
		return fmt.Errorf("%w: %w", redis.Nil, ErrRotationTargetExpired)
	default:
		return fmt.Errorf("%w: %w", redis.Nil, ErrRotationTargetNotFound)
	}
}

// Remove deletes a single session and its index entry. Removing a session
// that is already gone is not an error.
//
//	Performance: 1 Redis EVALSHA.
func (s *Store) Remove(ctx context.Context, tenantID, principalID, tokenID string) error {
	keys := []string{
		s.key(tenantID, tokenID),
		s.principalKey(tenantID, principalID),
	}

	if err := removeSessionLua.Run(ctx, s.redis, keys, tokenID).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// WipeAll removes every session belonging to a principal within a tenant and
// returns the number of index entries cleared.
//
// ATOMICITY NOTE: This operation is NOT fully atomic. It reads the principal
// index (ZRANGE), then deletes the records and the index (TxPipelined DEL).
// A session created between the read and delete phases will not be captured
// by this call. In practice this race is extremely narrow and only affects
// logout-all semantics — the stray session will expire naturally or be caught
// by the next WipeAll invocation.
func (s *Store) WipeAll(ctx context.Context, tenantID, principalID string) (int, error) {
	indexKey := s.principalKey(tenantID, principalID)

	tokenIDs, err := s.redis.ZRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sessionKeys := make([]string, 0, len(tokenIDs))
	for _, tokenID := range tokenIDs {
		sessionKeys = append(sessionKeys, s.key(tenantID, tokenID))
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(sessionKeys) > 0 {
			pipe.Del(ctx, sessionKeys...)
		}
		pipe.Del(ctx, indexKey)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return len(tokenIDs), nil
}

// PurgeExpired removes index entries and records whose expiry is at or before
// the current clock and returns the number purged. Records self-expire via
// their Redis TTL; the purge keeps the principal index and its counts honest.
func (s *Store) PurgeExpired(ctx context.Context, tenantID, principalID string) (int, error) {
	indexKey := s.principalKey(tenantID, principalID)
	cutoff := strconv.FormatInt(s.now().Unix(), 10)

	expired, err := s.redis.ZRangeByScore(ctx, indexKey, &redis.ZRangeBy{Min: "-inf", Max: cutoff}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	sessionKeys := make([]string, 0, len(expired))
	for _, tokenID := range expired {
		sessionKeys = append(sessionKeys, s.key(tenantID, tokenID))
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKeys...)
		pipe.ZRemRangeByScore(ctx, indexKey, "-inf", cutoff)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return len(expired), nil
}

// ActiveSessionCount returns the number of sessions tracked in the principal
// index. Call [Store.PurgeExpired] first when an exact live count is needed.
func (s *Store) ActiveSessionCount(ctx context.Context, tenantID, principalID string) (int, error) {
	count, err := s.redis.ZCard(ctx, s.principalKey(tenantID, principalID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(count), nil
}

// OldestTokenID returns the token ID with the earliest expiry in the
// principal index, or "" when the index is empty.
func (s *Store) OldestTokenID(ctx context.Context, tenantID, principalID string) (string, error) {
	ids, err := s.redis.ZRange(ctx, s.principalKey(tenantID, principalID), 0, 0).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return "", nil
	}
	return ids[0], nil
}

// ListForPrincipal returns decoded sessions for every live index entry of a
// principal, oldest expiry first. Index entries whose record has already
// expired out of Redis are skipped.
func (s *Store) ListForPrincipal(ctx context.Context, tenantID, principalID string) ([]*Session, error) {
	tokenIDs, err := s.redis.ZRange(ctx, s.principalKey(tenantID, principalID), 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(tokenIDs) == 0 {
		return nil, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(tokenIDs))
	for i, tokenID := range tokenIDs {
		cmds[i] = pipe.Get(ctx, s.key(tenantID, tokenID))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sessions := make([]*Session, 0, len(tokenIDs))
	for i, cmd := range cmds {
		data, cmdErr := cmd.Bytes()
		if cmdErr != nil {
			if errors.Is(cmdErr, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, cmdErr)
		}
		sess, decErr := Decode(data)
		if decErr != nil {
			continue
		}
		sess.TokenID = tokenIDs[i]
		sessions = append(sessions, sess)
	}

	return sessions, nil
}

// Ping verifies Redis connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
