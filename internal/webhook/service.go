package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sowerflow/sowerflow/internal/account"
	"github.com/sowerflow/sowerflow/internal/conversation"
	"github.com/sowerflow/sowerflow/internal/instagram"
)

// maxParallelConversations bounds how many conversations of one delivery are
// written at the same time.
const maxParallelConversations = 8

type service struct {
	store      conversation.Store
	accounts   Accounts
	normalizer Normalizer
	users      UserFetcher
	recorder   Recorder
	now        func() int64
}

func NewService(store conversation.Store, accounts Accounts, normalizer Normalizer, users UserFetcher, recorder Recorder) Service {
	return &service{
		store:      store,
		accounts:   accounts,
		normalizer: normalizer,
		users:      users,
		recorder:   recorder,
		now:        func() int64 { return time.Now().UnixMilli() },
	}
}

// group is the ordered run of events addressed to one conversation.
type group struct {
	seed  conversation.Seed
	token string
	items []instagram.Item
}

// HandleDelivery appends every event of d. Events of one conversation are
// applied in delivery order; distinct conversations are written concurrently.
// The returned error means at least one event was not persisted.
func (s *service) HandleDelivery(ctx context.Context, d instagram.Delivery) error {
	groups := make(map[string]*group)
	var order []string

	for _, entry := range d.Entry {
		accountID := entry.ID.String()
		profile, err := s.accounts.ResolveByAccountID(ctx, accountID)
		if errors.Is(err, account.ErrUnknownAccount) {
			log.Warn().Str("account_id", accountID).Msg("webhook entry for unknown account, skipped")
			continue
		}
		if err != nil {
			return err
		}

		token, err := s.accounts.Credential(ctx, profile.TenantID)
		if err != nil {
			// Events are still stored; only caption and profile lookups are lost.
			log.Warn().Err(err).Str("tenant_id", profile.TenantID).Msg("no usable credential for webhook entry")
			token = ""
		}

		for _, item := range s.normalizer.Normalize(ctx, entry, token) {
			key := conversation.Key(item.AccountID, item.CounterpartID)
			g, ok := groups[key]
			if !ok {
				g = &group{
					seed: conversation.Seed{
						AccountID:     item.AccountID,
						CounterpartID: item.CounterpartID,
						TenantID:      profile.TenantID,
					},
					token: token,
				}
				groups[key] = g
				order = append(order, key)
			}
			g.items = append(g.items, item)
		}
	}

	var eg errgroup.Group
	eg.SetLimit(maxParallelConversations)
	for _, key := range order {
		g := groups[key]
		eg.Go(func() error { return s.appendGroup(ctx, g) })
	}
	return eg.Wait()
}

func (s *service) appendGroup(ctx context.Context, g *group) error {
	username := ""
	for _, it := range g.items {
		if it.Username != "" {
			username = it.Username
			break
		}
	}
	seed := g.seed
	seed.Enrich = s.enricher(g.token, g.seed.CounterpartID, username)

	var failed error
	for _, it := range g.items {
		res, err := conversation.Append(ctx, s.store, seed, it.Event, s.now)
		if err != nil {
			s.record(it.Event.Kind, "error")
			log.Error().Err(err).
				Str("conversation_id", conversation.Key(seed.AccountID, seed.CounterpartID)).
				Str("kind", string(it.Event.Kind)).
				Msg("event not persisted")
			failed = errors.Join(failed, err)
			continue
		}

		decision := "dropped"
		switch {
		case res.Created:
			decision = "created"
		case res.Appended:
			decision = "appended"
		}
		s.record(it.Event.Kind, decision)
		log.Debug().
			Str("conversation_id", res.Conversation.ID).
			Str("kind", string(it.Event.Kind)).
			Str("direction", string(it.Event.Direction)).
			Str("decision", decision).
			Str("status", string(res.Conversation.Status)).
			Msg("webhook event applied")
	}
	if failed != nil {
		return fmt.Errorf("conversation %s: %w", conversation.Key(seed.AccountID, seed.CounterpartID), failed)
	}
	return nil
}

// enricher fills the counterpart snapshot of a new conversation, falling back
// to the handle the platform sent inline.
func (s *service) enricher(token, counterpartID, username string) func(context.Context, *conversation.Conversation) {
	return func(ctx context.Context, c *conversation.Conversation) {
		c.CounterpartName = username
		if s.users == nil || token == "" {
			return
		}
		u, err := s.users.FetchUser(ctx, token, counterpartID)
		if err != nil {
			log.Warn().Err(err).Str("counterpart_id", counterpartID).Msg("counterpart lookup failed")
			return
		}
		switch {
		case u.Name != "":
			c.CounterpartName = u.Name
		case u.Username != "":
			c.CounterpartName = u.Username
		}
		c.CounterpartBio = u.Biography
	}
}

func (s *service) record(kind conversation.Kind, decision string) {
	if s.recorder != nil {
		s.recorder.RecordEvent(string(kind), decision)
	}
}
