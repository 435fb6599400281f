package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/shopauth/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrSessionExists is returned by CreateSession when the shop already
	// holds a session.
	ErrSessionExists = errors.New("store: session already exists")

	// ErrRotationConflict is returned by RotateRefreshToken when the stored
	// current token no longer matches the one the caller presented, or the
	// session is gone.
	ErrRotationConflict = errors.New("store: refresh token rotation conflict")
)

// Store is the root data access interface. Concrete drivers (sqlite,
// postgres) implement this and hand out sub-repositories so callers can't
// accidentally nest transactions.
type Store interface {
	Shops() Shops
	Sessions() Sessions

	ApplyMigrations() error

	// WithTx runs fn inside one read/write transaction. An error from fn
	// rolls back; nil commits.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Ping(ctx context.Context) error
	Close() error
}

// Tx is a transaction-scoped Store.
type Tx interface {
	Shops() Shops
	Sessions() Sessions
}

type Shops interface {
	// CreateShop inserts s. A duplicate email yields ErrAlreadyExists.
	CreateShop(ctx context.Context, s domain.Shop) error

	GetShopByID(ctx context.Context, id string) (domain.Shop, error)
	GetShopByEmail(ctx context.Context, email string) (domain.Shop, error)

	// ShopExistsByEmail is a cheap pre-check for signup. The unique index is
	// still the authority.
	ShopExistsByEmail(ctx context.Context, email string) (bool, error)
}

// Sessions persists per-shop credential sessions. Every method is atomic on
// its own; refresh tokens are only ever handled by fingerprint.
type Sessions interface {
	// UpsertSession atomically discards any session the shop already has,
	// together with its used set, and stores s in its place.
	UpsertSession(ctx context.Context, s domain.Session) (domain.Session, error)

	// CreateSession stores s, failing with ErrSessionExists if the shop
	// already has one.
	CreateSession(ctx context.Context, s domain.Session) (domain.Session, error)

	GetSessionByID(ctx context.Context, id string) (domain.Session, error)
	GetSessionByShopID(ctx context.Context, shopID string) (domain.Session, error)

	// RotateRefreshToken replaces the current fingerprint oldHash with
	// newHash, records oldHash as used and moves the expiry, all in one
	// conditional write. It returns ErrRotationConflict when the current
	// fingerprint is not oldHash.
	RotateRefreshToken(ctx context.Context, sessionID, oldHash, newHash string, expiresAt time.Time) error

	// DeleteSessionByID reports whether a session was removed.
	DeleteSessionByID(ctx context.Context, id string) (bool, error)

	// DeleteSessionsByShopID removes every session of the shop and returns
	// how many there were.
	DeleteSessionsByShopID(ctx context.Context, shopID string) (int, error)

	// DeleteExpiredSessions is housekeeping.
	DeleteExpiredSessions(ctx context.Context) (int, error)
}
