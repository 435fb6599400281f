package postgres

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
	db    dbtx
	begin *sql.DB // nil inside WithTx
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
		`INSERT INTO sessions (`+sessionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID, s.ShopID, s.Algorithm, s.PublicKey, s.PrivateKey, s.RefreshTokenHash,
		s.ExpiresAt.UTC(), s.CreatedAt, s.UpdatedAt,
	)
	return err
}

func (r *sessionsRepo) UpsertSession(ctx context.Context, s domain.Session) (domain.Session, error) {
	s = r.stamp(s)
	err := inTx(ctx, r.begin, r.db, func(q dbtx) error {
		// Replaces for one shop queue on its row so each DELETE sees the
		// previous replace's INSERT.
		var locked string
		err := q.QueryRowContext(ctx, `SELECT id FROM shops WHERE id = $1 FOR UPDATE`, s.ShopID).Scan(&locked)
		if err != nil {
			return fmt.Errorf("lock shop: %w", mapNotFound(err))
		}

		if _, err := q.ExecContext(ctx, `DELETE FROM sessions WHERE shop_id = $1 OR id = $2`, s.ShopID, s.ID); err != nil {
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
	return r.getOne(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
}

func (r *sessionsRepo) GetSessionByShopID(ctx context.Context, shopID string) (domain.Session, error) {
	return r.getOne(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE shop_id = $1`, shopID)
}

func (r *sessionsRepo) getOne(ctx context.Context, query string, arg any) (domain.Session, error) {
	var out domain.Session
	// REPEATABLE READ keeps the row and its used set consistent with each other.
	err := r.readTx(ctx, func(q dbtx) error {
		err := q.QueryRowContext(ctx, query, arg).Scan(
			&out.ID, &out.ShopID, &out.Algorithm, &out.PublicKey, &out.PrivateKey,
			&out.RefreshTokenHash, &out.ExpiresAt, &out.CreatedAt, &out.UpdatedAt,
		)
		if err != nil {
			return mapNotFound(err)
		}
		out.ExpiresAt = out.ExpiresAt.UTC()
		out.CreatedAt = out.CreatedAt.UTC()
		out.UpdatedAt = out.UpdatedAt.UTC()

		rows, err := q.QueryContext(ctx,
			`SELECT token_hash FROM used_refresh_tokens WHERE session_id = $1 ORDER BY id`, out.ID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var h string
			if err := rows.Scan(&h); err != nil {
				return err
			}
			out.UsedRefreshTokenHashes = append(out.UsedRefreshTokenHashes, h)
		}
		return rows.Err()
	})
	if err != nil {
		return domain.Session{}, err
	}
	return out, nil
}

func (r *sessionsRepo) readTx(ctx context.Context, fn func(q dbtx) error) error {
	if r.begin == nil {
		return fn(r.db)
	}
	tx, err := r.begin.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *sessionsRepo) RotateRefreshToken(ctx context.Context, sessionID, oldHash, newHash string, expiresAt time.Time) error {
	now := r.now().UTC()
	return inTx(ctx, r.begin, r.db, func(q dbtx) error {
		res, err := q.ExecContext(ctx,
			`UPDATE sessions SET refresh_token_hash = $1, expires_at = $2, updated_at = $3
			 WHERE id = $4 AND refresh_token_hash = $5`,
			newHash, expiresAt.UTC(), now, sessionID, oldHash,
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
			`INSERT INTO used_refresh_tokens (session_id, token_hash, used_at) VALUES ($1, $2, $3)`,
			sessionID, oldHash, now,
		)
		return err
	})
}

func (r *sessionsRepo) DeleteSessionByID(ctx context.Context, id string) (bool, error) {
	n, err := r.exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return n > 0, err
}

func (r *sessionsRepo) DeleteSessionsByShopID(ctx context.Context, shopID string) (int, error) {
	return r.exec(ctx, `DELETE FROM sessions WHERE shop_id = $1`, shopID)
}

func (r *sessionsRepo) DeleteExpiredSessions(ctx context.Context) (int, error) {
	return r.exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, r.now().UTC())
}

func (r *sessionsRepo) exec(ctx context.Context, query string, args ...any) (int, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
