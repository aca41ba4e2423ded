package conversation

import (
	"context"
	"encoding/json"
	"errors"
)

type Status string

const (
	StatusAwaitingReply         Status = "awaiting_reply"
	StatusWaitingForCounterpart Status = "waiting_for_counterpart"
	StatusConverted             Status = "converted"
	StatusAbandoned             Status = "abandoned"
	StatusIgnored               Status = "ignored"
	// StatusWaitingForPayment parks a conversation whose tenant is not entitled
	// to automated replies.
	StatusWaitingForPayment Status = "waiting_for_payment"
)

// Terminal reports whether s closes the automated exchange.
func (s Status) Terminal() bool {
	return s == StatusConverted || s == StatusAbandoned
}

type Kind string

const (
	KindMessage     Kind = "message"
	KindReaction    Kind = "reaction"
	KindPostback    Kind = "postback"
	KindReferral    Kind = "referral"
	KindOptin       Kind = "optin"
	KindSeen        Kind = "seen"
	KindComment     Kind = "comment"
	KindLiveComment Kind = "live_comment"
)

// Actionable kinds can open or reactivate a conversation.
func (k Kind) Actionable() bool {
	switch k {
	case KindMessage, KindPostback, KindReferral, KindOptin, KindComment, KindLiveComment:
		return true
	}
	return false
}

func (k Kind) commentClass() bool {
	return k == KindComment || k == KindLiveComment
}

type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// Event is one normalized platform event embedded in a conversation.
type Event struct {
	OccurredAt  int64           `json:"occurred_at" bson:"occurred_at"`
	Kind        Kind            `json:"kind" bson:"kind"`
	Direction   Direction       `json:"direction" bson:"direction"`
	TextSummary string          `json:"text_summary,omitempty" bson:"text_summary,omitempty"`
	RawPayload  json.RawMessage `json:"raw_payload,omitempty" bson:"raw_payload,omitempty"`
	DedupeKey   string          `json:"dedupe_key,omitempty" bson:"dedupe_key,omitempty"`
	// IsEcho marks a sent message the platform echoed back that this system
	// did not produce (a human replying from the native app).
	IsEcho bool `json:"is_echo,omitempty" bson:"is_echo,omitempty"`
}

// Conversation is the aggregate keyed by (account, counterpart).
type Conversation struct {
	ID              string  `json:"id" bson:"_id"`
	UUID            string  `json:"uuid" bson:"uuid"`
	AccountID       string  `json:"account_id" bson:"account_id"`
	CounterpartID   string  `json:"counterpart_id" bson:"counterpart_id"`
	TenantID        string  `json:"tenant_id" bson:"tenant_id"`
	CounterpartName string  `json:"counterpart_display_name" bson:"counterpart_display_name"`
	CounterpartBio  string  `json:"counterpart_bio" bson:"counterpart_bio"`
	Status          Status  `json:"status" bson:"status"`
	Events          []Event `json:"events" bson:"events"`
	TerminalReason  string  `json:"terminal_reason,omitempty" bson:"terminal_reason,omitempty"`
	CreatedAt       int64   `json:"created_at" bson:"created_at"`
	UpdatedAt       int64   `json:"updated_at" bson:"updated_at"`

	// ClaimID and ClaimedUntil hold the dispatcher lease while a reply is in flight.
	ClaimID      string `json:"claim_id,omitempty" bson:"claim_id,omitempty"`
	ClaimedUntil int64  `json:"claimed_until,omitempty" bson:"claimed_until,omitempty"`

	// Version is the optimistic-concurrency token; stores bump it on every write.
	Version int64 `json:"version" bson:"version"`
}

// Key builds the document id for an (account, counterpart) pair.
func Key(accountID, counterpartID string) string {
	return accountID + "_" + counterpartID
}

func (c *Conversation) hasDedupeKey(key string) bool {
	if key == "" {
		return false
	}
	for _, e := range c.Events {
		if e.DedupeKey == key {
			return true
		}
	}
	return false
}

// Claimed reports whether an unexpired dispatcher lease is held at now.
func (c *Conversation) Claimed(now int64) bool {
	return c.ClaimID != "" && c.ClaimedUntil > now
}

func (c *Conversation) clearClaim() {
	c.ClaimID = ""
	c.ClaimedUntil = 0
}

// Clone returns a deep copy so callers can mutate without aliasing store state.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Events = make([]Event, len(c.Events))
	for i, e := range c.Events {
		if e.RawPayload != nil {
			e.RawPayload = append(json.RawMessage(nil), e.RawPayload...)
		}
		out.Events[i] = e
	}
	return &out
}

var (
	ErrNotFound          = errors.New("conversation not found")
	ErrConflict          = errors.New("conversation version conflict")
	ErrInvalidTransition = errors.New("invalid conversation transition")
)

// Queue selects the next conversation the dispatcher may act on.
type Queue interface {
	// Oldest returns the conversation with the given status and the smallest
	// updated_at whose dispatch claim is absent or expired at now.
	Oldest(ctx context.Context, status Status, now int64) (*Conversation, error)
}

// Store persists conversation documents.
type Store interface {
	Queue
	Get(ctx context.Context, id string) (*Conversation, error)
	// Create inserts c with version 1; ErrConflict if the id already exists.
	Create(ctx context.Context, c *Conversation) error
	// Update writes c only if the stored version equals c.Version, then bumps
	// c.Version; ErrConflict otherwise.
	Update(ctx context.Context, c *Conversation) error
}
