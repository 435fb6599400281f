package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/aussiebroadwan/shopauth/internal/auth/domain"
	"github.com/aussiebroadwan/shopauth/internal/auth/store"
)

const shopColumns = `id, name, email, password_hash, status, verified, roles, created_at, updated_at`

type shopsRepo struct {
	db  dbtx
	now func() time.Time
}

func (r *shopsRepo) CreateShop(ctx context.Context, s domain.Shop) error {
	now := r.now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = now
	}
	if s.Status == "" {
		s.Status = domain.ShopActive
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO shops (`+shopColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID, s.Name, s.Email, s.PasswordHash, string(s.Status), s.Verified,
		joinRoles(s.Roles), s.CreatedAt, s.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *shopsRepo) GetShopByID(ctx context.Context, id string) (domain.Shop, error) {
	return r.getOne(ctx, `SELECT `+shopColumns+` FROM shops WHERE id = $1`, id)
}

func (r *shopsRepo) GetShopByEmail(ctx context.Context, email string) (domain.Shop, error) {
	return r.getOne(ctx, `SELECT `+shopColumns+` FROM shops WHERE email = $1`, email)
}

func (r *shopsRepo) ShopExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM shops WHERE email = $1)`, email).Scan(&exists)
	return exists, err
}

func (r *shopsRepo) getOne(ctx context.Context, query string, arg any) (domain.Shop, error) {
	var (
		s      domain.Shop
		status string
		roles  string
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&s.ID, &s.Name, &s.Email, &s.PasswordHash, &status, &s.Verified,
		&roles, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return domain.Shop{}, mapNotFound(err)
	}

	s.Status = domain.ShopStatus(status)
	s.Roles = splitRoles(roles)
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return s, nil
}

func joinRoles(roles []domain.Role) string {
	parts := make([]string, 0, len(roles))
	for _, r := range roles {
		parts = append(parts, string(r))
	}
	return strings.Join(parts, " ")
}

func splitRoles(s string) []domain.Role {
	var roles []domain.Role
	for _, f := range strings.Fields(s) {
		roles = append(roles, domain.Role(f))
	}
	return roles
}
