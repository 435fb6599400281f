package sqlite_test

import (
	"context"
	"testing"

	"github.com/aussiebroadwan/shopauth/internal/auth/domain"
	"github.com/aussiebroadwan/shopauth/internal/auth/store"
	"github.com/aussiebroadwan/shopauth/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/shopauth/internal/auth/store/storetest"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()

	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.ApplyMigrations())
	return s
}

func seeder(s *sqlite.Store) storetest.Seed {
	return func(t *testing.T, shopID string) {
		t.Helper()
		require.NoError(t, s.Shops().CreateShop(context.Background(), domain.Shop{
			ID:           shopID,
			Name:         "shop " + shopID,
			Email:        shopID + "@shop.example",
			PasswordHash: "hash",
			Roles:        []domain.Role{domain.RoleShop},
		}))
	}
}

func TestShops(t *testing.T) {
	storetest.RunShops(t, newStore(t).Shops())
}

func TestSessions(t *testing.T) {
	s := newStore(t)
	storetest.RunSessions(t, s.Sessions(), seeder(s))
}

func TestSessionsInTx(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seeder(s)(t, "shop-tx")

	sess := storetest.NewSession("shop-tx", "fp-0")
	err := s.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.Sessions().UpsertSession(ctx, sess); err != nil {
			return err
		}
		return tx.Sessions().RotateRefreshToken(ctx, sess.ID, "fp-0", "fp-1", sess.ExpiresAt)
	})
	require.NoError(t, err)

	got, err := s.Sessions().GetSessionByID(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, "fp-1", got.RefreshTokenHash)
	require.Equal(t, []string{"fp-0"}, got.UsedRefreshTokenHashes)
}

func TestWithTxRollback(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seeder(s)(t, "shop-rb")

	sess := storetest.NewSession("shop-rb", "fp-0")
	err := s.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.Sessions().UpsertSession(ctx, sess); err != nil {
			return err
		}
		return tx.Sessions().RotateRefreshToken(ctx, sess.ID, "wrong", "fp-1", sess.ExpiresAt)
	})
	require.ErrorIs(t, err, store.ErrRotationConflict)

	_, err = s.Sessions().GetSessionByID(ctx, sess.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestApplyMigrationsTwice(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.ApplyMigrations(), "migrations should be idempotent")
	require.NoError(t, s.Ping(context.Background()))
}
