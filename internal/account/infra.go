package account

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type repo struct {
	db *sql.DB
}

func NewRepo(db *sql.DB) Repo {
	return &repo{db: db}
}

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS profiles (
			tenant_id           TEXT PRIMARY KEY,
			account_id          TEXT UNIQUE,
			username            TEXT NOT NULL DEFAULT '',
			access_token        TEXT NOT NULL DEFAULT '',
			token_expires_at    TIMESTAMPTZ,
			subscription_active BOOLEAN NOT NULL DEFAULT FALSE,
			credits_used        BIGINT NOT NULL DEFAULT 0,
			onboarding          JSONB NOT NULL DEFAULT '{}'
		)
	`)
	if err != nil {
		return fmt.Errorf("init profiles schema: %w", err)
	}
	return nil
}

const profileColumns = `tenant_id, COALESCE(account_id, ''), username, access_token, token_expires_at,
	subscription_active, credits_used, onboarding`

func (r *repo) ByAccountID(ctx context.Context, accountID string) (*Profile, error) {
	return r.one(ctx, `SELECT `+profileColumns+` FROM profiles WHERE account_id = $1`, accountID)
}

func (r *repo) ByTenantID(ctx context.Context, tenantID string) (*Profile, error) {
	return r.one(ctx, `SELECT `+profileColumns+` FROM profiles WHERE tenant_id = $1`, tenantID)
}

func (r *repo) one(ctx context.Context, query string, arg string) (*Profile, error) {
	var (
		p          Profile
		expires    sql.NullTime
		onboarding []byte
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&p.TenantID, &p.AccountID, &p.Username, &p.AccessToken, &expires,
		&p.SubscriptionActive, &p.CreditsUsed, &onboarding,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUnknownAccount
	}
	if err != nil {
		return nil, err
	}
	if expires.Valid {
		p.TokenExpiresAt = expires.Time
	}
	if len(onboarding) > 0 {
		if err := json.Unmarshal(onboarding, &p.Onboarding); err != nil {
			return nil, fmt.Errorf("decode onboarding of %s: %w", p.TenantID, err)
		}
	}
	return &p, nil
}

func (r *repo) UpdateToken(ctx context.Context, tenantID, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE profiles SET access_token = $2, token_expires_at = $3 WHERE tenant_id = $1
	`, tenantID, token, expiresAt)
	return err
}

func (r *repo) IncrementCredits(ctx context.Context, tenantID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE profiles SET credits_used = credits_used + 1 WHERE tenant_id = $1
	`, tenantID)
	return err
}
