// Package redis implements the issued-token ledger on Redis so several server
// instances can share rotation state.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/truecredit/authserver/internal/auth/domain"
	"github.com/truecredit/authserver/internal/auth/store"
)

// Default connection settings.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second

	// DefaultRetention keeps records around after expiry so late replays are
	// still reported as conflicts.
	DefaultRetention = 24 * time.Hour
)

type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string

	Retention    time.Duration
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Tokens stores each record as a hash: the immutable JSON record plus the
// mutable status fields. State transitions run as Lua scripts.
type Tokens struct {
	client    goredis.UniversalClient
	keyPrefix string
	retention time.Duration
}

var _ store.Tokens = (*Tokens)(nil)

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Tokens, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis: address is required")
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	client := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:        []string{cfg.Addr},
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: connect: %w", err)
	}

	t := NewWithClient(client, cfg.KeyPrefix)
	if cfg.Retention > 0 {
		t.retention = cfg.Retention
	}
	return t, nil
}

// NewWithClient wraps a pre-configured client, such as one pointed at
// miniredis in tests.
func NewWithClient(client goredis.UniversalClient, keyPrefix string) *Tokens {
	return &Tokens{client: client, keyPrefix: keyPrefix, retention: DefaultRetention}
}

func (t *Tokens) Close() error { return t.client.Close() }

func (t *Tokens) Ping(ctx context.Context) error { return t.client.Ping(ctx).Err() }

func (t *Tokens) tokenKey(id string) string { return t.keyPrefix + "token:" + id }

func (t *Tokens) subjectKey(subject, clientID string) string {
	return t.keyPrefix + "subject:" + clientID + ":" + subject
}

type storedRecord struct {
	ID        string   `json:"id"`
	Kind      string   `json:"kind"`
	Subject   string   `json:"subject"`
	ClientID  string   `json:"client_id"`
	Audience  []string `json:"audience,omitempty"`
	Scopes    []string `json:"scopes,omitempty"`
	IssuedAt  int64    `json:"issued_at"`
	ExpiresAt int64    `json:"expires_at"`
}

// createScript inserts the record unless the key exists and indexes it under
// its subject. Returns 0 when the id is taken.
var createScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'record', ARGV[1], 'status', ARGV[2], 'expires_at', ARGV[3])
redis.call('PEXPIREAT', KEYS[1], ARGV[4])
redis.call('SADD', KEYS[2], ARGV[5])
if redis.call('PTTL', KEYS[2]) < tonumber(ARGV[6]) then
	redis.call('PEXPIRE', KEYS[2], ARGV[6])
end
return 1
`)

// consumeScript flips a valid, unexpired record to redeemed.
// Returns 1 on success, 0 when the key is missing, -1 otherwise.
var consumeScript = goredis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then
	return 0
end
if status ~= 'valid' then
	return -1
end
if tonumber(redis.call('HGET', KEYS[1], 'expires_at')) <= tonumber(ARGV[1]) then
	return -1
end
redis.call('HSET', KEYS[1], 'status', 'redeemed', 'redeemed_at', ARGV[1])
return 1
`)

// revokeScript marks a record revoked. With ARGV[1] = "valid" only valid
// records are touched. Returns 1 when changed, 0 when missing, -1 when skipped.
var revokeScript = goredis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then
	return 0
end
if ARGV[1] ~= '' and status ~= ARGV[1] then
	return -1
end
redis.call('HSET', KEYS[1], 'status', 'revoked')
return 1
`)

func (t *Tokens) CreateToken(ctx context.Context, rec domain.TokenRecord) error {
	data, err := json.Marshal(storedRecord{
		ID:        rec.ID,
		Kind:      string(rec.Kind),
		Subject:   rec.Subject,
		ClientID:  rec.ClientID,
		Audience:  rec.Audience,
		Scopes:    rec.Scopes,
		IssuedAt:  rec.IssuedAt.UnixMilli(),
		ExpiresAt: rec.ExpiresAt.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("redis: encode token record: %w", err)
	}

	status := rec.Status
	if status == "" {
		status = domain.TokenStatusValid
	}
	purgeAt := rec.ExpiresAt.Add(t.retention)

	keys := []string{t.tokenKey(rec.ID), t.subjectKey(rec.Subject, rec.ClientID)}
	res, err := createScript.Run(ctx, t.client, keys,
		string(data),
		string(status),
		rec.ExpiresAt.UnixMilli(),
		purgeAt.UnixMilli(),
		rec.ID,
		time.Until(purgeAt).Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("redis: create token: %w", err)
	}
	if res == 0 {
		return store.ErrAlreadyExists
	}
	return nil
}

func (t *Tokens) GetToken(ctx context.Context, id string) (domain.TokenRecord, error) {
	fields, err := t.client.HGetAll(ctx, t.tokenKey(id)).Result()
	if err != nil {
		return domain.TokenRecord{}, fmt.Errorf("redis: get token: %w", err)
	}
	if len(fields) == 0 {
		return domain.TokenRecord{}, store.ErrNotFound
	}
	return decodeRecord(fields)
}

func (t *Tokens) ConsumeToken(ctx context.Context, id string, now time.Time) (domain.TokenRecord, error) {
	key := t.tokenKey(id)
	res, err := consumeScript.Run(ctx, t.client, []string{key}, now.UnixMilli()).Int()
	if err != nil {
		return domain.TokenRecord{}, fmt.Errorf("redis: consume token: %w", err)
	}
	switch res {
	case 0:
		return domain.TokenRecord{}, store.ErrNotFound
	case -1:
		return domain.TokenRecord{}, store.ErrConflict
	}

	rec, err := t.GetToken(ctx, id)
	if err != nil {
		return domain.TokenRecord{}, err
	}
	rec.Status = domain.TokenStatusValid
	rec.RedeemedAt = nil
	return rec, nil
}

func (t *Tokens) RevokeToken(ctx context.Context, id string) error {
	res, err := revokeScript.Run(ctx, t.client, []string{t.tokenKey(id)}, "").Int()
	if err != nil {
		return fmt.Errorf("redis: revoke token: %w", err)
	}
	if res == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *Tokens) RevokeSubjectTokens(ctx context.Context, subject, clientID string) (int64, error) {
	setKey := t.subjectKey(subject, clientID)
	ids, err := t.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: list subject tokens: %w", err)
	}

	var revoked int64
	for _, id := range ids {
		res, err := revokeScript.Run(ctx, t.client, []string{t.tokenKey(id)}, string(domain.TokenStatusValid)).Int()
		if err != nil {
			return revoked, fmt.Errorf("redis: revoke token: %w", err)
		}
		switch res {
		case 1:
			revoked++
		case 0:
			_ = t.client.SRem(ctx, setKey, id).Err()
		}
	}
	return revoked, nil
}

// DeleteStaleTokens is a no-op: records carry a Redis expiry.
func (t *Tokens) DeleteStaleTokens(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func decodeRecord(fields map[string]string) (domain.TokenRecord, error) {
	var s storedRecord
	if err := json.Unmarshal([]byte(fields["record"]), &s); err != nil {
		return domain.TokenRecord{}, fmt.Errorf("redis: decode token record: %w", err)
	}

	rec := domain.TokenRecord{
		ID:        s.ID,
		Kind:      domain.TokenKind(s.Kind),
		Subject:   s.Subject,
		ClientID:  s.ClientID,
		Audience:  s.Audience,
		Scopes:    s.Scopes,
		Status:    domain.TokenStatus(fields["status"]),
		IssuedAt:  time.UnixMilli(s.IssuedAt).UTC(),
		ExpiresAt: time.UnixMilli(s.ExpiresAt).UTC(),
	}
	if v, ok := fields["redeemed_at"]; ok {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return domain.TokenRecord{}, fmt.Errorf("redis: decode redeemed_at: %w", err)
		}
		at := time.UnixMilli(ms).UTC()
		rec.RedeemedAt = &at
	}
	return rec, nil
}
