package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/goRenew/internal/ids"
	"github.com/redis/go-redis/v9"
)

const (
	consumeStatusNotFound int64 = 0
	consumeStatusExpired  int64 = 1
	consumeStatusOK       int64 = 2
	consumeStatusRevoked  int64 = 3
	consumeStatusReused   int64 = 4
	consumeStatusConsumed int64 = 5
)

const (
	recordStatusNotFound int64 = 0
	recordStatusRevoked  int64 = 3
	recordStatusOK       int64 = 2
)

const consumeRefreshScript = `
local token_key = KEYS[1]
local prefix = ARGV[1]
local now_ms = tonumber(ARGV[2])

local t = redis.call("HMGET", token_key, "sid", "state", "exp")
if not t[1] then
  return {0}
end

local session_key = prefix .. ":s:" .. t[1]
local s = redis.call("HMGET", session_key, "pid", "roles", "revoked", "cur")
if not s[1] then
  return {0}
end
if s[3] then
  return {3, t[1], s[1]}
end

if t[2] == "rotated" then
  redis.call("HSET", session_key, "revoked", ARGV[2], "reason", ARGV[3])
  if s[4] then
    local cur_key = prefix .. ":t:" .. s[4]
    if redis.call("HGET", cur_key, "state") == "current" then
      redis.call("HSET", cur_key, "state", "revoked")
    end
  end
  return {4, t[1], s[1]}
end

if t[2] ~= "current" then
  return {5, t[1], s[1]}
end

if tonumber(t[3]) <= now_ms then
  return {1, t[1], s[1]}
end

redis.call("HSET", token_key, "state", "consumed")
return {2, t[1], s[1], s[2] or ""}
`

var consumeRefreshLua = redis.NewScript(consumeRefreshScript)

const recordRefreshScript = `
local session_key = KEYS[1]
local token_key = KEYS[2]
local lineage_key = KEYS[3]
local prefix = ARGV[1]
local session_id = ARGV[2]
local token_id = ARGV[3]
local exp_ms = tonumber(ARGV[4])
local now_ms = tonumber(ARGV[5])
local keep_until = exp_ms + tonumber(ARGV[6])

local s = redis.call("HMGET", session_key, "pid", "revoked", "cur")
if not s[1] then
  return 0
end
if s[2] then
  return 3
end

if s[3] then
  local old_key = prefix .. ":t:" .. s[3]
  if redis.call("EXISTS", old_key) == 1 then
    redis.call("HSET", old_key, "state", "rotated")
  end
end

redis.call("HSET", token_key, "sid", session_id, "state", "current", "exp", ARGV[4], "issued", ARGV[5])
redis.call("PEXPIREAT", token_key, keep_until)
redis.call("HSET", session_key, "cur", token_id, "rexp", ARGV[4])
redis.call("PEXPIREAT", session_key, keep_until)
redis.call("RPUSH", lineage_key, token_id)
redis.call("PEXPIREAT", lineage_key, keep_until)

local principal_key = prefix .. ":p:" .. s[1]
redis.call("SADD", principal_key, session_id)
local pttl = redis.call("PTTL", principal_key)
if pttl < 0 or now_ms + pttl < keep_until then
  redis.call("PEXPIREAT", principal_key, keep_until)
end

return 2
`

var recordRefreshLua = redis.NewScript(recordRefreshScript)

const revokeSessionScript = `
local session_key = KEYS[1]
local prefix = ARGV[1]

if redis.call("EXISTS", session_key) == 0 then
  return 0
end
local s = redis.call("HMGET", session_key, "revoked", "cur")
if s[1] then
  return 1
end

redis.call("HSET", session_key, "revoked", ARGV[2], "reason", ARGV[3])
if s[2] then
  local cur_key = prefix .. ":t:" .. s[2]
  if redis.call("HGET", cur_key, "state") == "current" then
    redis.call("HSET", cur_key, "state", "revoked")
  end
end
return 2
`

var revokeSessionLua = redis.NewScript(revokeSessionScript)

// RedisStore keeps sessions as Redis hashes:
//
//	{prefix}:s:<sid>   session (pid, roles, created, cur, rexp, revoked, reason)
//	{prefix}:t:<jti>   refresh token (sid, state, exp, issued)
//	{prefix}:l:<sid>   lineage list of jti
//	{prefix}:p:<pid>   set of session IDs per principal
//
// Keys expire at the latest refresh expiry plus the retention window.
//
// The consume and revoke scripts derive session and token keys from stored IDs, so every key
// must live in one slot. The prefix is therefore used as a Redis Cluster hash tag: all keys of
// a store hash to the same slot and the scripts run unchanged against a cluster. A prefix that
// already carries a tag is used as given.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	opts   options
}

// NewRedisStore creates a [RedisStore]. prefix namespaces every key.
func NewRedisStore(client redis.UniversalClient, prefix string, opts ...Option) *RedisStore {
	if prefix == "" {
		prefix = "rn"
	}
	return &RedisStore{
		redis:  client,
		prefix: hashTag(prefix),
		opts:   buildOptions(opts),
	}
}

// hashTag wraps prefix in braces unless it already holds a non-empty {tag}.
func hashTag(prefix string) string {
	if open := strings.IndexByte(prefix, '{'); open >= 0 {
		if end := strings.IndexByte(prefix[open+1:], '}'); end > 0 {
			return prefix
		}
	}
	return "{" + prefix + "}"
}

func (s *RedisStore) sessionKey(sessionID string) string {
	return s.prefix + ":s:" + sessionID
}

func (s *RedisStore) tokenKey(tokenID string) string {
	return s.prefix + ":t:" + tokenID
}

func (s *RedisStore) lineageKey(sessionID string) string {
	return s.prefix + ":l:" + sessionID
}

func (s *RedisStore) principalKey(principalID string) string {
	return s.prefix + ":p:" + principalID
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// CreateSession stores a new live session. It expires after the pending TTL unless a refresh
// token is recorded for it.
func (s *RedisStore) CreateSession(ctx context.Context, principalID string, roles []string) (string, error) {
	sid, err := ids.NewSessionID()
	if err != nil {
		return "", err
	}
	sessionID := sid.String()
	sessionKey := s.sessionKey(sessionID)
	now := s.opts.now()

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, sessionKey,
			"pid", principalID,
			"roles", encodeRoles(roles),
			"created", now.UnixMilli(),
		)
		pipe.PExpire(ctx, sessionKey, s.opts.pendingTTL)
		pipe.SAdd(ctx, s.principalKey(principalID), sessionID)
		return nil
	})
	if err != nil {
		return "", unavailable(err)
	}
	return sessionID, nil
}

// RecordRefreshToken makes tokenID the current token of sessionID and rotates its predecessor.
func (s *RedisStore) RecordRefreshToken(ctx context.Context, sessionID, tokenID string, expiresAt time.Time) error {
	res, err := recordRefreshLua.Run(
		ctx,
		s.redis,
		[]string{s.sessionKey(sessionID), s.tokenKey(tokenID), s.lineageKey(sessionID)},
		s.prefix,
		sessionID,
		tokenID,
		expiresAt.UnixMilli(),
		s.opts.now().UnixMilli(),
		s.opts.retention.Milliseconds(),
	).Int64()
	if err != nil {
		return unavailable(err)
	}

	switch res {
	case recordStatusOK:
		return nil
	case recordStatusRevoked:
		return ErrRevoked
	default:
		return ErrSessionNotFound
	}
}

// ConsumeRefreshToken atomically marks tokenID consumed. See [Store].
func (s *RedisStore) ConsumeRefreshToken(ctx context.Context, tokenID string) (Consumed, error) {
	raw, err := consumeRefreshLua.Run(
		ctx,
		s.redis,
		[]string{s.tokenKey(tokenID)},
		s.prefix,
		s.opts.now().UnixMilli(),
		ReasonReuse,
	).Slice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Consumed{}, ErrNotFound
		}
		return Consumed{}, unavailable(err)
	}
	if len(raw) == 0 {
		return Consumed{}, unavailable(errors.New("empty consume result"))
	}

	status, ok := raw[0].(int64)
	if !ok {
		return Consumed{}, unavailable(errors.New("invalid consume status"))
	}
	out := Consumed{TokenID: tokenID}
	if len(raw) > 1 {
		out.SessionID, _ = raw[1].(string)
	}
	if len(raw) > 2 {
		out.PrincipalID, _ = raw[2].(string)
	}

	switch status {
	case consumeStatusOK:
		if len(raw) > 3 {
			rolesRaw, _ := raw[3].(string)
			out.Roles = decodeRoles(rolesRaw)
		}
		return out, nil
	case consumeStatusExpired:
		return out, ErrExpired
	case consumeStatusRevoked:
		return out, ErrRevoked
	case consumeStatusReused:
		return out, ErrReused
	case consumeStatusConsumed:
		return out, ErrAlreadyConsumed
	default:
		return Consumed{}, ErrNotFound
	}
}

// RevokeSession marks the session revoked. Unknown and already revoked sessions are not errors.
func (s *RedisStore) RevokeSession(ctx context.Context, sessionID string) error {
	err := revokeSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.sessionKey(sessionID)},
		s.prefix,
		s.opts.now().UnixMilli(),
		ReasonLogout,
	).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return unavailable(err)
	}
	return nil
}

// IsSessionValid reports whether the session exists, is not revoked and its refresh lineage
// has not expired.
func (s *RedisStore) IsSessionValid(ctx context.Context, sessionID string) (bool, error) {
	vals, err := s.redis.HMGet(ctx, s.sessionKey(sessionID), "pid", "revoked", "rexp").Result()
	if err != nil {
		return false, unavailable(err)
	}
	if vals[0] == nil || vals[1] != nil {
		return false, nil
	}
	if rexp, ok := vals[2].(string); ok {
		ms, err := strconv.ParseInt(rexp, 10, 64)
		if err != nil || ms <= s.opts.now().UnixMilli() {
			return false, nil
		}
	}
	return true, nil
}

// GetSession loads one session.
func (s *RedisStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	fields, err := s.redis.HGetAll(ctx, s.sessionKey(sessionID)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(fields) == 0 || fields["pid"] == "" {
		return nil, ErrSessionNotFound
	}
	sess := sessionFromHash(sessionID, fields)
	return &sess, nil
}

// ListSessions returns the principal's live sessions, oldest first. Index entries whose session
// aged out are pruned.
func (s *RedisStore) ListSessions(ctx context.Context, principalID string) ([]Session, error) {
	principalKey := s.principalKey(principalID)
	sids, err := s.redis.SMembers(ctx, principalKey).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(sids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(sids))
	_, err = s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, sid := range sids {
			cmds[i] = pipe.HGetAll(ctx, s.sessionKey(sid))
		}
		return nil
	})
	if err != nil {
		return nil, unavailable(err)
	}

	var (
		out   []Session
		stale []any
	)
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			stale = append(stale, sids[i])
			continue
		}
		sess := sessionFromHash(sids[i], fields)
		if sess.Revoked() {
			continue
		}
		out = append(out, sess)
	}
	if len(stale) > 0 {
		_ = s.redis.SRem(ctx, principalKey, stale...).Err()
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Lineage returns the recorded refresh tokens of a session in issue order. Records that have
// aged out are omitted.
func (s *RedisStore) Lineage(ctx context.Context, sessionID string) ([]RefreshRecord, error) {
	jtis, err := s.redis.LRange(ctx, s.lineageKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, unavailable(err)
	}

	cmds := make([]*redis.MapStringStringCmd, len(jtis))
	_, err = s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, jti := range jtis {
			cmds[i] = pipe.HGetAll(ctx, s.tokenKey(jti))
		}
		return nil
	})
	if err != nil {
		return nil, unavailable(err)
	}

	out := make([]RefreshRecord, 0, len(jtis))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		out = append(out, RefreshRecord{
			TokenID:   jtis[i],
			SessionID: fields["sid"],
			State:     State(fields["state"]),
			IssuedAt:  fromMillis(parseMillis(fields["issued"])),
			ExpiresAt: fromMillis(parseMillis(fields["exp"])),
		})
	}
	return out, nil
}

func sessionFromHash(sessionID string, fields map[string]string) Session {
	return Session{
		ID:               sessionID,
		PrincipalID:      fields["pid"],
		Roles:            decodeRoles(fields["roles"]),
		CreatedAt:        fromMillis(parseMillis(fields["created"])),
		CurrentTokenID:   fields["cur"],
		RefreshExpiresAt: fromMillis(parseMillis(fields["rexp"])),
		RevokedAt:        fromMillis(parseMillis(fields["revoked"])),
		RevokeReason:     fields["reason"],
	}
}

func parseMillis(s string) int64 {
	if s == "" {
		return 0
	}
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}

// Ping checks that Redis answers.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}
