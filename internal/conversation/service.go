package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const maxWriteAttempts = 5

// Seed identifies the conversation an event belongs to.
type Seed struct {
	AccountID     string
	CounterpartID string
	TenantID      string
	// Enrich runs once, right before a new conversation is first written.
	Enrich func(ctx context.Context, c *Conversation)
}

type AppendResult struct {
	Conversation *Conversation
	Appended     bool
	Created      bool
}

// Append applies ev to the conversation identified by seed with
// read-compute-conditional-write, recomputing from a fresh read whenever the
// store reports a concurrent write.
func Append(ctx context.Context, store Store, seed Seed, ev Event, now func() int64) (AppendResult, error) {
	id := Key(seed.AccountID, seed.CounterpartID)

	var enriched *Conversation
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		cur, err := store.Get(ctx, id)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return AppendResult{}, fmt.Errorf("load conversation %s: %w", id, err)
		}
		if errors.Is(err, ErrNotFound) {
			cur = nil
		}

		next, appended := Apply(cur, ev, now())
		if !appended {
			return AppendResult{Conversation: cur}, nil
		}

		if cur == nil {
			next.ID = id
			next.UUID = uuid.NewString()
			next.AccountID = seed.AccountID
			next.CounterpartID = seed.CounterpartID
			next.TenantID = seed.TenantID
			if enriched == nil {
				enriched = &Conversation{}
				if seed.Enrich != nil {
					seed.Enrich(ctx, enriched)
				}
			}
			next.CounterpartName = enriched.CounterpartName
			next.CounterpartBio = enriched.CounterpartBio

			err = store.Create(ctx, next)
		} else {
			err = store.Update(ctx, next)
		}

		switch {
		case err == nil:
			return AppendResult{Conversation: next, Appended: true, Created: cur == nil}, nil
		case errors.Is(err, ErrConflict):
			continue
		default:
			return AppendResult{}, fmt.Errorf("save conversation %s: %w", id, err)
		}
	}
	return AppendResult{}, fmt.Errorf("save conversation %s: %w after %d attempts", id, ErrConflict, maxWriteAttempts)
}
