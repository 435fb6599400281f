package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aussiebroadwan/shopauth/internal/auth/domain"
	"github.com/aussiebroadwan/shopauth/internal/auth/store"
)

const sessionColumns = `id, shop_id, algorithm, public_key, private_key, refresh_token_hash, expires_at, created_at, updated_at`

type sessionsRepo struct {
	db dbtx
	// begin is nil when the repo is already transaction scoped.
	begin *sql.DB
	now   func() time.Time
}

func (r *sessionsRepo) stamp(s domain.Session) domain.Session {
	now := r.now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	s.UsedRefreshTokenHashes = nil
	return s
}

func insertSession(ctx context.Context, q dbtx, s domain.Session) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.ShopID, s.Algorithm, s.PublicKey, s.PrivateKey, s.RefreshTokenHash,
		toMillis(s.ExpiresAt), toMillis(s.CreatedAt), toMillis(s.UpdatedAt),
	)
	return err
}

func (r *sessionsRepo) UpsertSession(ctx context.Context, s domain.Session) (domain.Session, error) {
	s = r.stamp(s)
	err := inTx(ctx, r.begin, r.db, func(q dbtx) error {
		if _, err := q.ExecContext(ctx, `DELETE FROM sessions WHERE shop_id = ? OR id = ?`, s.ShopID, s.ID); err != nil {
			return fmt.Errorf("drop previous session: %w", err)
		}
		return insertSession(ctx, q, s)
	})
	if err != nil {
		return domain.Session{}, err
	}
	return s, nil
}

func (r *sessionsRepo) CreateSession(ctx context.Context, s domain.Session) (domain.Session, error) {
	s = r.stamp(s)
	if err := insertSession(ctx, r.db, s); err != nil {
		if isUniqueViolation(err) {
			return domain.Session{}, store.ErrSessionExists
		}
		return domain.Session{}, err
	}
	return s, nil
}

func (r *sessionsRepo) GetSessionByID(ctx context.Context, id string) (domain.Session, error) {
	return r.getOne(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
}

func (r *sessionsRepo) GetSessionByShopID(ctx context.Context, shopID string) (domain.Session, error) {
	return r.getOne(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE shop_id = ?`, shopID)
}

func (r *sessionsRepo) getOne(ctx context.Context, query string, arg any) (domain.Session, error) {
	var out domain.Session
	err := inTx(ctx, r.begin, r.db, func(q dbtx) error {
		var expiresAt, createdAt, updatedAt int64
		err := q.QueryRowContext(ctx, query, arg).Scan(
			&out.ID, &out.ShopID, &out.Algorithm, &out.PublicKey, &out.PrivateKey,
			&out.RefreshTokenHash, &expiresAt, &createdAt, &updatedAt,
		)
		if err != nil {
			return mapNotFound(err)
		}
		out.ExpiresAt = fromMillis(expiresAt)
		out.CreatedAt = fromMillis(createdAt)
		out.UpdatedAt = fromMillis(updatedAt)

		used, err := usedHashes(ctx, q, out.ID)
		if err != nil {
			return err
		}
		out.UsedRefreshTokenHashes = used
		return nil
	})
	if err != nil {
		return domain.Session{}, err
	}
	return out, nil
}

func usedHashes(ctx context.Context, q dbtx, sessionID string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT token_hash FROM used_refresh_tokens WHERE session_id = ? ORDER BY used_at, rowid`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *sessionsRepo) RotateRefreshToken(ctx context.Context, sessionID, oldHash, newHash string, expiresAt time.Time) error {
	now := toMillis(r.now())
	return inTx(ctx, r.begin, r.db, func(q dbtx) error {
		res, err := q.ExecContext(ctx,
			`UPDATE sessions SET refresh_token_hash = ?, expires_at = ?, updated_at = ?
			 WHERE id = ? AND refresh_token_hash = ?`,
			newHash, toMillis(expiresAt), now, sessionID, oldHash,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return store.ErrRotationConflict
		}

		_, err = q.ExecContext(ctx,
			`INSERT INTO used_refresh_tokens (session_id, token_hash, used_at) VALUES (?, ?, ?)`,
			sessionID, oldHash, now,
		)
		return err
	})
}

func (r *sessionsRepo) DeleteSessionByID(ctx context.Context, id string) (bool, error) {
	n, err := r.exec(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	return n > 0, err
}

func (r *sessionsRepo) DeleteSessionsByShopID(ctx context.Context, shopID string) (int, error) {
	return r.exec(ctx, `DELETE FROM sessions WHERE shop_id = ?`, shopID)
}

func (r *sessionsRepo) DeleteExpiredSessions(ctx context.Context) (int, error) {
	return r.exec(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, toMillis(r.now()))
}

func (r *sessionsRepo) exec(ctx context.Context, query string, args ...any) (int, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
