package dispatch

import (
	"context"

	"github.com/sowerflow/sowerflow/internal/account"
)

// Outcome names what one drain invocation did.
type Outcome string

const (
	OutcomeIdle      Outcome = "idle"
	OutcomeHeld      Outcome = "held"
	OutcomeSent      Outcome = "sent"
	OutcomeAbandoned Outcome = "abandoned"
	OutcomeConverted Outcome = "converted"
	// OutcomeSkipped means another writer moved the conversation first.
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

type Result struct {
	Outcome        Outcome `json:"outcome"`
	ConversationID string  `json:"conversation_id,omitempty"`
	Message        string  `json:"message"`
}

// Service drains at most one awaiting conversation per call.
type Service interface {
	DrainOnce(ctx context.Context) (Result, error)
}

type Accounts interface {
	ResolveByAccountID(ctx context.Context, accountID string) (*account.Profile, error)
	Credential(ctx context.Context, tenantID string) (string, error)
	RecordGeneration(ctx context.Context, tenantID string) error
}

type Sender interface {
	SendText(ctx context.Context, token, accountID, recipientID, text string) (string, error)
}

type Recorder interface {
	RecordDispatch(outcome string)
	RecordGeneration()
}
