package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sowerflow/sowerflow/internal/account"
	"github.com/sowerflow/sowerflow/internal/ai"
	"github.com/sowerflow/sowerflow/internal/conversation"
)

const (
	// claimLease outlives one generation plus one send; a crashed drain
	// frees the conversation for the next trigger once it runs out.
	claimLease    = 2 * time.Minute
	releaseTries  = 3
	finishRetries = 5
)

var (
	errClaimLost = errors.New("claim lost to another writer")
	// errUnrecorded marks a reply that reached the platform but not the store.
	errUnrecorded = errors.New("reply sent but not recorded")
)

type service struct {
	store     conversation.Store
	accounts  Accounts
	generator ai.Generator
	sender    Sender
	recorder  Recorder
	now       func() time.Time
}

func NewService(store conversation.Store, accounts Accounts, generator ai.Generator, sender Sender, recorder Recorder) Service {
	return &service{
		store:     store,
		accounts:  accounts,
		generator: generator,
		sender:    sender,
		recorder:  recorder,
		now:       time.Now,
	}
}

func (s *service) millis() int64 { return s.now().UnixMilli() }

// DrainOnce replies to the oldest awaiting conversation. A returned error
// always comes with an OutcomeFailed result and leaves the conversation
// awaiting so a later trigger retries it.
func (s *service) DrainOnce(ctx context.Context) (Result, error) {
	res, err := s.drain(ctx)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Message = "Failed to process conversation"
	}
	if s.recorder != nil {
		s.recorder.RecordDispatch(string(res.Outcome))
	}
	return res, err
}

func (s *service) drain(ctx context.Context) (Result, error) {
	now := s.millis()
	c, err := s.store.Oldest(ctx, conversation.StatusAwaitingReply, now)
	if errors.Is(err, conversation.ErrNotFound) {
		return Result{Outcome: OutcomeIdle, Message: "No conversations to process"}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("load oldest conversation: %w", err)
	}
	res := Result{ConversationID: c.ID}
	logger := log.With().Str("conversation_id", c.ID).Str("account_id", c.AccountID).Logger()

	profile, err := s.accounts.ResolveByAccountID(ctx, c.AccountID)
	switch {
	case errors.Is(err, account.ErrUnknownAccount):
		profile = nil
	case err != nil:
		return res, err
	}
	if profile == nil || !profile.Entitled() {
		return s.hold(ctx, c, "Skipped inactive profile")
	}

	// An expired credential stays expired until the tenant reconnects.
	token, err := s.accounts.Credential(ctx, profile.TenantID)
	if errors.Is(err, account.ErrCredentialExpired) {
		return s.hold(ctx, c, "Skipped expired credential")
	}
	if err != nil {
		return res, fmt.Errorf("credential for tenant %s: %w", profile.TenantID, err)
	}

	claimID := uuid.NewString()
	claimed, err := conversation.Claim(c, claimID, now+claimLease.Milliseconds(), now)
	if err == nil {
		err = s.store.Update(ctx, claimed)
	}
	if errors.Is(err, conversation.ErrConflict) || errors.Is(err, conversation.ErrInvalidTransition) {
		logger.Info().Msg("conversation taken by another writer, skipping")
		res.Outcome, res.Message = OutcomeSkipped, "Conversation already being processed"
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("claim conversation %s: %w", c.ID, err)
	}

	out, err := s.reply(ctx, claimed, claimID, profile, token)
	if err != nil {
		// After an unrecorded send the lease is left to run out, so a retry
		// is at least delayed rather than immediate.
		if !errors.Is(err, errUnrecorded) {
			s.release(ctx, c.ID, claimID)
		}
		return res, err
	}
	out.ConversationID = c.ID
	return out, nil
}

func (s *service) hold(ctx context.Context, c *conversation.Conversation, why string) (Result, error) {
	res := Result{ConversationID: c.ID}
	held, err := conversation.Hold(c, s.millis())
	if err != nil {
		return res, err
	}
	if err := s.store.Update(ctx, held); err != nil {
		if errors.Is(err, conversation.ErrConflict) {
			res.Outcome, res.Message = OutcomeSkipped, "Conversation changed while holding"
			return res, nil
		}
		return res, fmt.Errorf("hold conversation %s: %w", c.ID, err)
	}
	log.Info().Str("conversation_id", c.ID).Str("tenant_id", c.TenantID).Str("reason", why).Msg("conversation held")
	res.Outcome, res.Message = OutcomeHeld, why
	return res, nil
}

func (s *service) reply(ctx context.Context, c *conversation.Conversation, claimID string, profile *account.Profile, token string) (Result, error) {
	history := Transcript(c.Events)
	reply, err := s.generator.Generate(ctx, tenantContext(profile), history)
	if err != nil {
		return Result{}, fmt.Errorf("generate reply: %w", err)
	}
	if s.recorder != nil {
		s.recorder.RecordGeneration()
	}

	if reply.Tool != nil {
		out, err := s.close(ctx, c.ID, claimID, reply.Tool)
		if err == nil && out.Outcome != OutcomeSkipped {
			s.charge(ctx, profile.TenantID)
		}
		return out, err
	}

	// Re-read right before the irreversible send: an overlapping invocation or
	// an incoming echo may have moved the conversation on.
	cur, err := s.store.Get(ctx, c.ID)
	if err != nil {
		return Result{}, fmt.Errorf("recheck conversation %s: %w", c.ID, err)
	}
	if cur.Status != conversation.StatusAwaitingReply || cur.ClaimID != claimID {
		log.Info().Str("conversation_id", c.ID).Str("status", string(cur.Status)).Msg("conversation moved on before send, aborting")
		return Result{Outcome: OutcomeSkipped, Message: "Conversation changed before send"}, nil
	}

	mid, err := s.sender.SendText(ctx, token, c.AccountID, c.CounterpartID, reply.Text)
	if err != nil {
		return Result{}, fmt.Errorf("send reply: %w", err)
	}
	s.charge(ctx, profile.TenantID)

	raw, _ := json.Marshal(map[string]any{
		"message_id":   mid,
		"recipient_id": c.CounterpartID,
		"text":         reply.Text,
	})
	ev := conversation.Event{
		OccurredAt:  s.millis(),
		Kind:        conversation.KindMessage,
		Direction:   conversation.DirectionSent,
		TextSummary: reply.Text,
		RawPayload:  raw,
		DedupeKey:   mid,
	}
	seed := conversation.Seed{AccountID: c.AccountID, CounterpartID: c.CounterpartID, TenantID: c.TenantID}
	if _, err := conversation.Append(ctx, s.store, seed, ev, s.millis); err != nil {
		log.Error().Err(err).Str("conversation_id", c.ID).Str("message_id", mid).Msg("reply sent but not recorded")
		return Result{}, fmt.Errorf("%w: %w", errUnrecorded, err)
	}

	log.Info().Str("conversation_id", c.ID).Str("message_id", mid).Msg("reply sent")
	return Result{Outcome: OutcomeSent, Message: "Successfully processed conversation"}, nil
}

// charge counts one credit for a generation that reached the counterpart or
// closed the conversation.
func (s *service) charge(ctx context.Context, tenantID string) {
	if err := s.accounts.RecordGeneration(ctx, tenantID); err != nil {
		log.Warn().Err(err).Str("tenant_id", tenantID).Msg("credit usage not recorded")
	}
}

// close applies the generator's abandon or convert decision.
func (s *service) close(ctx context.Context, id, claimID string, call *ai.ToolCall) (Result, error) {
	outcome, transition := OutcomeAbandoned, conversation.Abandon
	if call.Name == ai.ToolConvert {
		outcome, transition = OutcomeConverted, conversation.Convert
	}

	err := s.modify(ctx, id, claimID, func(c *conversation.Conversation) (*conversation.Conversation, error) {
		return transition(c, call.Reason, s.millis())
	})
	if errors.Is(err, errClaimLost) {
		return Result{Outcome: OutcomeSkipped, Message: "Conversation changed before closing"}, nil
	}
	if err != nil {
		return Result{}, err
	}
	log.Info().Str("conversation_id", id).Str("outcome", string(outcome)).Str("reason", call.Reason).Msg("conversation closed")
	return Result{Outcome: outcome, Message: "Conversation " + string(outcome)}, nil
}

// modify re-reads id and applies fn while the claim is still held, retrying
// on version conflicts.
func (s *service) modify(ctx context.Context, id, claimID string, fn func(*conversation.Conversation) (*conversation.Conversation, error)) error {
	for attempt := 0; attempt < finishRetries; attempt++ {
		cur, err := s.store.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("load conversation %s: %w", id, err)
		}
		if cur.Status != conversation.StatusAwaitingReply || cur.ClaimID != claimID {
			return errClaimLost
		}
		next, err := fn(cur)
		if err != nil {
			return err
		}
		err = s.store.Update(ctx, next)
		if errors.Is(err, conversation.ErrConflict) {
			continue
		}
		if err != nil {
			return fmt.Errorf("save conversation %s: %w", id, err)
		}
		return nil
	}
	return fmt.Errorf("save conversation %s: %w", id, conversation.ErrConflict)
}

// release gives the lease back after a failed attempt. Failure to do so only
// delays the retry until the lease runs out.
func (s *service) release(ctx context.Context, id, claimID string) {
	for attempt := 0; attempt < releaseTries; attempt++ {
		cur, err := s.store.Get(ctx, id)
		if err != nil {
			break
		}
		next, ok := conversation.Release(cur, claimID)
		if !ok {
			return
		}
		err = s.store.Update(ctx, next)
		if err == nil {
			return
		}
		if !errors.Is(err, conversation.ErrConflict) {
			break
		}
	}
	log.Warn().Str("conversation_id", id).Msg("claim not released, waiting for lease expiry")
}
