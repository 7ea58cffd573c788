package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"taxicoin/pkg/logger"
)

type identityRepo struct {
	db  *sql.DB
	log logger.ILogger
}

func (r *identityRepo) LoadKey(ctx context.Context) (string, error) {
	var key string
	err := r.db.QueryRowContext(ctx, `SELECT private_key FROM identity WHERE id = 1`).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		r.log.Error("failed to load identity key", logger.Error(err))
		return "", err
	}
	return key, nil
}

func (r *identityRepo) SaveKey(ctx context.Context, privateKey string) error {
	query := `
		INSERT INTO identity (id, private_key) VALUES (1, ?)
		ON CONFLICT (id) DO UPDATE SET private_key = excluded.private_key
	`
	if _, err := r.db.ExecContext(ctx, query, privateKey); err != nil {
		r.log.Error("failed to save identity key", logger.Error(err))
		return err
	}
	return nil
}
