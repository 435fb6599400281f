// Package redis is a session-only store backed by Redis. Every mutation is a
// single Lua script, so rotation is a server-side compare-and-swap.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aussiebroadwan/shopauth/internal/auth/domain"
	"github.com/aussiebroadwan/shopauth/internal/auth/store"
	"github.com/redis/go-redis/v9"
)

// ErrUnavailable wraps transport failures talking to Redis.
var ErrUnavailable = errors.New("redis unavailable")

// DefaultPrefix namespaces every key the store writes.
const DefaultPrefix = "shopauth:"

type Sessions struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ store.Sessions = (*Sessions)(nil)

func NewSessions(rdb redis.UniversalClient, prefix string) *Sessions {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Sessions{rdb: rdb, prefix: prefix, now: time.Now}
}

func (s *Sessions) sessionKey(id string) string   { return s.prefix + "session:" + id }
func (s *Sessions) usedKey(id string) string      { return s.sessionKey(id) + ":used" }
func (s *Sessions) shopKey(shopID string) string  { return s.prefix + "shop:" + shopID }
func (s *Sessions) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }

func (s *Sessions) UpsertSession(ctx context.Context, sess domain.Session) (domain.Session, error) {
	return s.save(ctx, sess, "replace")
}

func (s *Sessions) CreateSession(ctx context.Context, sess domain.Session) (domain.Session, error) {
	return s.save(ctx, sess, "create")
}

func (s *Sessions) save(ctx context.Context, sess domain.Session, mode string) (domain.Session, error) {
	now := s.now().UTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now
	sess.UsedRefreshTokenHashes = nil

	ok, err := saveSessionLua.Run(ctx, s.rdb, []string{s.shopKey(sess.ShopID)},
		s.prefix, sess.ID, sess.ShopID, sess.Algorithm, sess.PublicKey, sess.PrivateKey,
		sess.RefreshTokenHash, sess.ExpiresAt.UnixMilli(), sess.CreatedAt.UnixMilli(), sess.UpdatedAt.UnixMilli(),
		mode,
	).Int()
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if ok == 0 {
		return domain.Session{}, store.ErrSessionExists
	}
	return sess, nil
}

func (s *Sessions) GetSessionByID(ctx context.Context, id string) (domain.Session, error) {
	var (
		fields *redis.MapStringStringCmd
		used   *redis.StringSliceCmd
	)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		fields = pipe.HGetAll(ctx, s.sessionKey(id))
		used = pipe.LRange(ctx, s.usedKey(id), 0, -1)
		return nil
	})
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	m := fields.Val()
	if len(m) == 0 {
		return domain.Session{}, store.ErrNotFound
	}

	sess, err := decodeSession(m)
	if err != nil {
		return domain.Session{}, err
	}
	// Key expiry is authoritative but may lag; never hand out a dead session.
	if sess.Expired(s.now()) {
		return domain.Session{}, store.ErrNotFound
	}
	if hashes := used.Val(); len(hashes) > 0 {
		sess.UsedRefreshTokenHashes = hashes
	}
	return sess, nil
}

func (s *Sessions) GetSessionByShopID(ctx context.Context, shopID string) (domain.Session, error) {
	id, err := s.rdb.Get(ctx, s.shopKey(shopID)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return s.GetSessionByID(ctx, id)
}

func (s *Sessions) RotateRefreshToken(ctx context.Context, sessionID, oldHash, newHash string, expiresAt time.Time) error {
	ok, err := rotateRefreshLua.Run(ctx, s.rdb, []string{s.sessionKey(sessionID), s.usedKey(sessionID)},
		oldHash, newHash, expiresAt.UnixMilli(), s.now().UnixMilli(), s.prefix,
	).Int()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if ok == 0 {
		return store.ErrRotationConflict
	}
	return nil
}

func (s *Sessions) DeleteSessionByID(ctx context.Context, id string) (bool, error) {
	n, err := deleteSessionLua.Run(ctx, s.rdb, []string{s.sessionKey(id), s.usedKey(id)}, s.prefix, id).Int()
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return n == 1, nil
}

func (s *Sessions) DeleteSessionsByShopID(ctx context.Context, shopID string) (int, error) {
	n, err := deleteShopSessionsLua.Run(ctx, s.rdb, []string{s.shopKey(shopID)}, s.prefix).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return n, nil
}

// DeleteExpiredSessions is a no-op: every key carries the session's absolute
// expiry and Redis evicts it.
func (s *Sessions) DeleteExpiredSessions(context.Context) (int, error) {
	return 0, nil
}

func decodeSession(m map[string]string) (domain.Session, error) {
	ms := func(field string) (time.Time, error) {
		v, err := strconv.ParseInt(m[field], 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("redis: corrupt session field %s: %w", field, err)
		}
		return time.UnixMilli(v).UTC(), nil
	}

	expiresAt, err := ms("expires_at")
	if err != nil {
		return domain.Session{}, err
	}
	createdAt, err := ms("created_at")
	if err != nil {
		return domain.Session{}, err
	}
	updatedAt, err := ms("updated_at")
	if err != nil {
		return domain.Session{}, err
	}

	return domain.Session{
		ID:               m["id"],
		ShopID:           m["shop_id"],
		Algorithm:        m["algorithm"],
		PublicKey:        m["public_key"],
		PrivateKey:       m["private_key"],
		RefreshTokenHash: m["refresh_token_hash"],
		ExpiresAt:        expiresAt,
		CreatedAt:        createdAt,
		UpdatedAt:        updatedAt,
	}, nil
}
