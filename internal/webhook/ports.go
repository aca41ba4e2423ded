package webhook

import (
	"context"

	"github.com/sowerflow/sowerflow/internal/account"
	"github.com/sowerflow/sowerflow/internal/instagram"
)

// Service persists one verified webhook delivery.
type Service interface {
	HandleDelivery(ctx context.Context, d instagram.Delivery) error
}

type Accounts interface {
	ResolveByAccountID(ctx context.Context, accountID string) (*account.Profile, error)
	Credential(ctx context.Context, tenantID string) (string, error)
}

type Normalizer interface {
	Normalize(ctx context.Context, entry instagram.Entry, token string) []instagram.Item
}

// UserFetcher reads the counterpart snapshot stored on new conversations.
type UserFetcher interface {
	FetchUser(ctx context.Context, token, userID string) (*instagram.User, error)
}

type Recorder interface {
	RecordDelivery(outcome string)
	RecordEvent(kind, decision string)
}
