package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

type repo struct {
	db *sql.DB
}

// NewRepo returns a Postgres-backed Store. Events are kept as one JSONB
// document per conversation row.
func NewRepo(db *sql.DB) Store {
	return &repo{db: db}
}

// EnsureSchema creates the conversations table when it does not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id               TEXT PRIMARY KEY,
			uuid             TEXT NOT NULL,
			account_id       TEXT NOT NULL,
			counterpart_id   TEXT NOT NULL,
			tenant_id        TEXT NOT NULL,
			counterpart_name TEXT NOT NULL DEFAULT '',
			counterpart_bio  TEXT NOT NULL DEFAULT '',
			status           TEXT NOT NULL,
			events           JSONB NOT NULL DEFAULT '[]',
			terminal_reason  TEXT NOT NULL DEFAULT '',
			claim_id         TEXT NOT NULL DEFAULT '',
			claimed_until    BIGINT NOT NULL DEFAULT 0,
			created_at       BIGINT NOT NULL,
			updated_at       BIGINT NOT NULL,
			version          BIGINT NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS conversations_status_updated_idx ON conversations (status, updated_at)`,
		`CREATE INDEX IF NOT EXISTS conversations_tenant_idx ON conversations (tenant_id)`,
	}
	for _, q := range queries {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("init conversations schema: %w", err)
		}
	}
	return nil
}

const selectColumns = `id, uuid, account_id, counterpart_id, tenant_id, counterpart_name, counterpart_bio,
	status, events, terminal_reason, claim_id, claimed_until, created_at, updated_at, version`

func (r *repo) Get(ctx context.Context, id string) (*Conversation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM conversations WHERE id = $1`, id)
	return scanConversation(row)
}

func (r *repo) Oldest(ctx context.Context, status Status, now int64) (*Conversation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+selectColumns+`
		FROM conversations
		WHERE status = $1 AND (claim_id = '' OR claimed_until <= $2)
		ORDER BY updated_at ASC, id ASC
		LIMIT 1
	`, string(status), now)
	return scanConversation(row)
}

func (r *repo) Create(ctx context.Context, c *Conversation) error {
	events, err := json.Marshal(nonNilEvents(c.Events))
	if err != nil {
		return fmt.Errorf("marshal events: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO conversations (
			id, uuid, account_id, counterpart_id, tenant_id, counterpart_name, counterpart_bio,
			status, events, terminal_reason, claim_id, claimed_until, created_at, updated_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 1)
		ON CONFLICT (id) DO NOTHING
	`,
		c.ID, c.UUID, c.AccountID, c.CounterpartID, c.TenantID, c.CounterpartName, c.CounterpartBio,
		string(c.Status), events, c.TerminalReason, c.ClaimID, c.ClaimedUntil, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrConflict
	}
	c.Version = 1
	return nil
}

func (r *repo) Update(ctx context.Context, c *Conversation) error {
	events, err := json.Marshal(nonNilEvents(c.Events))
	if err != nil {
		return fmt.Errorf("marshal events: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE conversations SET
			tenant_id = $3,
			counterpart_name = $4,
			counterpart_bio = $5,
			status = $6,
			events = $7,
			terminal_reason = $8,
			claim_id = $9,
			claimed_until = $10,
			updated_at = $11,
			version = version + 1
		WHERE id = $1 AND version = $2
	`,
		c.ID, c.Version, c.TenantID, c.CounterpartName, c.CounterpartBio, string(c.Status),
		events, c.TerminalReason, c.ClaimID, c.ClaimedUntil, c.UpdatedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := r.Get(ctx, c.ID); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrConflict
	}
	c.Version++
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var (
		c      Conversation
		status string
		events []byte
	)
	err := row.Scan(
		&c.ID, &c.UUID, &c.AccountID, &c.CounterpartID, &c.TenantID, &c.CounterpartName, &c.CounterpartBio,
		&status, &events, &c.TerminalReason, &c.ClaimID, &c.ClaimedUntil, &c.CreatedAt, &c.UpdatedAt, &c.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			return nil, fmt.Errorf("conversations query (%s): %w", pqErr.Code.Name(), err)
		}
		return nil, err
	}
	c.Status = Status(status)
	if err := json.Unmarshal(events, &c.Events); err != nil {
		return nil, fmt.Errorf("decode events of %s: %w", c.ID, err)
	}
	return &c, nil
}

func nonNilEvents(events []Event) []Event {
	if events == nil {
		return []Event{}
	}
	return events
}
