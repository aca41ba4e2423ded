package account

import (
	"context"
	"errors"
	"time"
)

type PricingItem struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// Onboarding holds the sales context a tenant filled in during onboarding.
type Onboarding struct {
	Product        string        `json:"product,omitempty"`
	Offer          string        `json:"offer,omitempty"`
	Pricing        []PricingItem `json:"pricing,omitempty"`
	CallInfo       string        `json:"call_info,omitempty"`
	SchedulingLink string        `json:"calendly,omitempty"`
}

// Profile is the tenant record the core reads; onboarding and billing own
// its writes except token refresh and credit usage.
type Profile struct {
	TenantID           string
	AccountID          string
	Username           string
	AccessToken        string
	TokenExpiresAt     time.Time
	SubscriptionActive bool
	CreditsUsed        int64
	Onboarding         Onboarding
}

// Entitled reports whether the tenant may receive automated replies.
func (p *Profile) Entitled() bool {
	return p.SubscriptionActive
}

var (
	ErrUnknownAccount    = errors.New("no tenant owns this account")
	ErrCredentialExpired = errors.New("account credential expired")
)

type Repo interface {
	ByAccountID(ctx context.Context, accountID string) (*Profile, error)
	ByTenantID(ctx context.Context, tenantID string) (*Profile, error)
	UpdateToken(ctx context.Context, tenantID, token string, expiresAt time.Time) error
	IncrementCredits(ctx context.Context, tenantID string) error
}

// Refresher exchanges a long-lived token for a fresh one.
type Refresher interface {
	RefreshToken(ctx context.Context, token string) (string, time.Duration, error)
}
