// Package storetest holds behaviour checks shared by every store driver.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/shopauth/internal/auth/domain"
	"github.com/aussiebroadwan/shopauth/internal/auth/store"
	"github.com/aussiebroadwan/shopauth/pkg/idx"
	"github.com/stretchr/testify/require"
)

// Seed makes shopID exist wherever the driver needs it (foreign keys).
type Seed func(t *testing.T, shopID string)

// NewSession returns a session on shopID with current fingerprint hash.
func NewSession(shopID, hash string) domain.Session {
	return domain.Session{
		ID:               idx.New().String(),
		ShopID:           shopID,
		Algorithm:        "EdDSA",
		PublicKey:        "-----BEGIN PUBLIC KEY-----\ntest\n-----END PUBLIC KEY-----\n",
		PrivateKey:       "sealed-private-key",
		RefreshTokenHash: hash,
		ExpiresAt:        time.Now().Add(time.Hour).UTC().Truncate(time.Millisecond),
	}
}

// RunShops exercises a store.Shops implementation.
func RunShops(t *testing.T, shops store.Shops) {
	ctx := context.Background()

	shop := domain.Shop{
		ID:           idx.New().String(),
		Name:         "Corner Shop",
		Email:        "owner-" + idx.New().String() + "@shop.example",
		PasswordHash: "$argon2id$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA",
		Roles:        []domain.Role{domain.RoleShop},
	}

	t.Run("create and get", func(t *testing.T) {
		require.NoError(t, shops.CreateShop(ctx, shop))

		byID, err := shops.GetShopByID(ctx, shop.ID)
		require.NoError(t, err)
		require.Equal(t, shop.Email, byID.Email)
		require.Equal(t, shop.Name, byID.Name)
		require.Equal(t, shop.PasswordHash, byID.PasswordHash)
		require.Equal(t, []domain.Role{domain.RoleShop}, byID.Roles)
		require.Equal(t, domain.ShopActive, byID.Status)
		require.False(t, byID.CreatedAt.IsZero())

		byEmail, err := shops.GetShopByEmail(ctx, shop.Email)
		require.NoError(t, err)
		require.Equal(t, shop.ID, byEmail.ID)

		exists, err := shops.ShopExistsByEmail(ctx, shop.Email)
		require.NoError(t, err)
		require.True(t, exists)
	})

	t.Run("duplicate email", func(t *testing.T) {
		dup := shop
		dup.ID = idx.New().String()
		require.ErrorIs(t, shops.CreateShop(ctx, dup), store.ErrAlreadyExists)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := shops.GetShopByID(ctx, idx.New().String())
		require.ErrorIs(t, err, store.ErrNotFound)

		_, err = shops.GetShopByEmail(ctx, "nobody@shop.example")
		require.ErrorIs(t, err, store.ErrNotFound)

		exists, err := shops.ShopExistsByEmail(ctx, "nobody@shop.example")
		require.NoError(t, err)
		require.False(t, exists)
	})
}

// RunSessions exercises a store.Sessions implementation.
func RunSessions(t *testing.T, sessions store.Sessions, seed Seed) {
	ctx := context.Background()

	newShop := func(t *testing.T) string {
		id := idx.New().String()
		seed(t, id)
		return id
	}

	t.Run("upsert and get", func(t *testing.T) {
		shopID := newShop(t)
		s := NewSession(shopID, "fp-r0")

		saved, err := sessions.UpsertSession(ctx, s)
		require.NoError(t, err)
		require.False(t, saved.CreatedAt.IsZero())

		byID, err := sessions.GetSessionByID(ctx, s.ID)
		require.NoError(t, err)
		require.Equal(t, s.ShopID, byID.ShopID)
		require.Equal(t, s.PublicKey, byID.PublicKey)
		require.Equal(t, s.PrivateKey, byID.PrivateKey)
		require.Equal(t, "fp-r0", byID.RefreshTokenHash)
		require.Empty(t, byID.UsedRefreshTokenHashes)
		require.WithinDuration(t, s.ExpiresAt, byID.ExpiresAt, time.Millisecond)

		byShop, err := sessions.GetSessionByShopID(ctx, shopID)
		require.NoError(t, err)
		require.Equal(t, s.ID, byShop.ID)
	})

	t.Run("upsert replaces prior session and its used set", func(t *testing.T) {
		shopID := newShop(t)
		first := NewSession(shopID, "fp-a0")
		_, err := sessions.UpsertSession(ctx, first)
		require.NoError(t, err)
		require.NoError(t, sessions.RotateRefreshToken(ctx, first.ID, "fp-a0", "fp-a1", first.ExpiresAt))

		second := NewSession(shopID, "fp-b0")
		_, err = sessions.UpsertSession(ctx, second)
		require.NoError(t, err)

		_, err = sessions.GetSessionByID(ctx, first.ID)
		require.ErrorIs(t, err, store.ErrNotFound)

		got, err := sessions.GetSessionByShopID(ctx, shopID)
		require.NoError(t, err)
		require.Equal(t, second.ID, got.ID)
		require.Equal(t, "fp-b0", got.RefreshTokenHash)
		require.Empty(t, got.UsedRefreshTokenHashes)
	})

	t.Run("create rejects second session", func(t *testing.T) {
		shopID := newShop(t)
		_, err := sessions.CreateSession(ctx, NewSession(shopID, "fp-0"))
		require.NoError(t, err)

		_, err = sessions.CreateSession(ctx, NewSession(shopID, "fp-1"))
		require.ErrorIs(t, err, store.ErrSessionExists)

		got, err := sessions.GetSessionByShopID(ctx, shopID)
		require.NoError(t, err)
		require.Equal(t, "fp-0", got.RefreshTokenHash)
	})

	t.Run("rotate", func(t *testing.T) {
		shopID := newShop(t)
		s := NewSession(shopID, "fp-r0")
		_, err := sessions.UpsertSession(ctx, s)
		require.NoError(t, err)

		later := s.ExpiresAt.Add(24 * time.Hour)
		require.NoError(t, sessions.RotateRefreshToken(ctx, s.ID, "fp-r0", "fp-r1", later))
		require.NoError(t, sessions.RotateRefreshToken(ctx, s.ID, "fp-r1", "fp-r2", later))

		got, err := sessions.GetSessionByID(ctx, s.ID)
		require.NoError(t, err)
		require.Equal(t, "fp-r2", got.RefreshTokenHash)
		require.ElementsMatch(t, []string{"fp-r0", "fp-r1"}, got.UsedRefreshTokenHashes)
		require.WithinDuration(t, later, got.ExpiresAt, time.Millisecond)
	})

	t.Run("rotate conflict leaves state untouched", func(t *testing.T) {
		shopID := newShop(t)
		s := NewSession(shopID, "fp-r0")
		_, err := sessions.UpsertSession(ctx, s)
		require.NoError(t, err)

		err = sessions.RotateRefreshToken(ctx, s.ID, "fp-other", "fp-r1", s.ExpiresAt)
		require.ErrorIs(t, err, store.ErrRotationConflict)

		got, err := sessions.GetSessionByID(ctx, s.ID)
		require.NoError(t, err)
		require.Equal(t, "fp-r0", got.RefreshTokenHash)
		require.Empty(t, got.UsedRefreshTokenHashes)

		err = sessions.RotateRefreshToken(ctx, idx.New().String(), "fp-r0", "fp-r1", s.ExpiresAt)
		require.ErrorIs(t, err, store.ErrRotationConflict)
	})

	t.Run("concurrent rotate has one winner", func(t *testing.T) {
		shopID := newShop(t)
		s := NewSession(shopID, "fp-r0")
		_, err := sessions.UpsertSession(ctx, s)
		require.NoError(t, err)

		const n = 8
		errs := make([]error, n)
		var wg sync.WaitGroup
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = sessions.RotateRefreshToken(ctx, s.ID, "fp-r0", "fp-r1-"+idx.New().String(), s.ExpiresAt)
			}()
		}
		wg.Wait()

		var wins int
		for _, err := range errs {
			if err == nil {
				wins++
				continue
			}
			require.ErrorIs(t, err, store.ErrRotationConflict)
		}
		require.Equal(t, 1, wins)

		got, err := sessions.GetSessionByID(ctx, s.ID)
		require.NoError(t, err)
		require.Equal(t, []string{"fp-r0"}, got.UsedRefreshTokenHashes)
	})

	t.Run("concurrent upsert keeps one session", func(t *testing.T) {
		shopID := newShop(t)

		const n = 8
		ids := make([]string, n)
		errs := make([]error, n)
		var wg sync.WaitGroup
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s := NewSession(shopID, "fp-"+idx.New().String())
				ids[i] = s.ID
				_, errs[i] = sessions.UpsertSession(ctx, s)
			}()
		}
		wg.Wait()

		for _, err := range errs {
			require.NoError(t, err)
		}

		got, err := sessions.GetSessionByShopID(ctx, shopID)
		require.NoError(t, err)
		require.Contains(t, ids, got.ID)

		var live int
		for _, id := range ids {
			if _, err := sessions.GetSessionByID(ctx, id); err == nil {
				live++
			}
		}
		require.Equal(t, 1, live)
	})

	t.Run("delete by id is idempotent", func(t *testing.T) {
		shopID := newShop(t)
		s := NewSession(shopID, "fp")
		_, err := sessions.UpsertSession(ctx, s)
		require.NoError(t, err)

		deleted, err := sessions.DeleteSessionByID(ctx, s.ID)
		require.NoError(t, err)
		require.True(t, deleted)

		deleted, err = sessions.DeleteSessionByID(ctx, s.ID)
		require.NoError(t, err)
		require.False(t, deleted)

		_, err = sessions.GetSessionByShopID(ctx, shopID)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("delete by shop", func(t *testing.T) {
		shopID := newShop(t)
		_, err := sessions.UpsertSession(ctx, NewSession(shopID, "fp"))
		require.NoError(t, err)

		n, err := sessions.DeleteSessionsByShopID(ctx, shopID)
		require.NoError(t, err)
		require.Equal(t, 1, n)

		n, err = sessions.DeleteSessionsByShopID(ctx, shopID)
		require.NoError(t, err)
		require.Zero(t, n)
	})

	t.Run("delete expired", func(t *testing.T) {
		liveShop, deadShop := newShop(t), newShop(t)

		live := NewSession(liveShop, "fp-live")
		_, err := sessions.UpsertSession(ctx, live)
		require.NoError(t, err)

		dead := NewSession(deadShop, "fp-dead")
		dead.ExpiresAt = time.Now().Add(-time.Minute)
		_, err = sessions.UpsertSession(ctx, dead)
		require.NoError(t, err)

		// Drivers with native expiry may already have dropped it.
		_, err = sessions.DeleteExpiredSessions(ctx)
		require.NoError(t, err)

		_, err = sessions.GetSessionByID(ctx, dead.ID)
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = sessions.GetSessionByID(ctx, live.ID)
		require.NoError(t, err)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := sessions.GetSessionByID(ctx, idx.New().String())
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = sessions.GetSessionByShopID(ctx, idx.New().String())
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}
