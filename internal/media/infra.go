package media

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type repo struct {
	db *sql.DB
}

func NewRepo(db *sql.DB) Repo {
	return &repo{db: db}
}

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS media_cache (
			account_id   TEXT NOT NULL,
			media_id     TEXT NOT NULL,
			product_type TEXT NOT NULL DEFAULT '',
			caption      TEXT NOT NULL DEFAULT '',
			media_url    TEXT NOT NULL DEFAULT '',
			permalink    TEXT NOT NULL DEFAULT '',
			timestamp    TEXT NOT NULL DEFAULT '',
			created_at   BIGINT NOT NULL,
			PRIMARY KEY (account_id, media_id)
		)
	`)
	if err != nil {
		return fmt.Errorf("init media schema: %w", err)
	}
	return nil
}

func (r *repo) Get(ctx context.Context, accountID, mediaID string) (*Media, error) {
	var (
		m  Media
		pt string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT media_id, account_id, product_type, caption, media_url, permalink, timestamp, created_at
		FROM media_cache
		WHERE account_id = $1 AND media_id = $2
	`, accountID, mediaID).Scan(&m.ID, &m.AccountID, &pt, &m.Caption, &m.MediaURL, &m.Permalink, &m.Timestamp, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m.ProductType = ProductType(pt)
	return &m, nil
}

func (r *repo) Put(ctx context.Context, m *Media) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO media_cache (account_id, media_id, product_type, caption, media_url, permalink, timestamp, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (account_id, media_id) DO UPDATE SET
			product_type = EXCLUDED.product_type,
			caption = EXCLUDED.caption,
			media_url = EXCLUDED.media_url,
			permalink = EXCLUDED.permalink,
			timestamp = EXCLUDED.timestamp
	`, m.AccountID, m.ID, string(m.ProductType), m.Caption, m.MediaURL, m.Permalink, m.Timestamp, m.CreatedAt)
	return err
}
