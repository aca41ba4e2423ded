package account

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// refreshWindow matches the platform guidance of refreshing long-lived
// tokens during their last day.
const refreshWindow = 24 * time.Hour

// Resolver maps platform accounts to tenants and hands out credentials.
type Resolver struct {
	repo      Repo
	refresher Refresher
	now       func() time.Time
}

func NewResolver(repo Repo, refresher Refresher) *Resolver {
	return &Resolver{repo: repo, refresher: refresher, now: time.Now}
}

// ResolveByAccountID returns ErrUnknownAccount when no tenant owns accountID.
func (r *Resolver) ResolveByAccountID(ctx context.Context, accountID string) (*Profile, error) {
	p, err := r.repo.ByAccountID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("resolve account %s: %w", accountID, err)
	}
	return p, nil
}

// Credential returns a usable access token for the tenant, refreshing it
// when it is about to expire.
func (r *Resolver) Credential(ctx context.Context, tenantID string) (string, error) {
	p, err := r.repo.ByTenantID(ctx, tenantID)
	if err != nil {
		return "", fmt.Errorf("load tenant %s: %w", tenantID, err)
	}
	return r.credential(ctx, p)
}

func (r *Resolver) credential(ctx context.Context, p *Profile) (string, error) {
	if p.AccessToken == "" {
		return "", ErrCredentialExpired
	}
	if p.TokenExpiresAt.IsZero() {
		return p.AccessToken, nil
	}

	now := r.now()
	if !p.TokenExpiresAt.After(now) {
		return "", ErrCredentialExpired
	}
	if p.TokenExpiresAt.Sub(now) > refreshWindow || r.refresher == nil {
		return p.AccessToken, nil
	}

	token, ttl, err := r.refresher.RefreshToken(ctx, p.AccessToken)
	if err != nil {
		// The current token is still valid; try again on the next call.
		log.Warn().Err(err).Str("tenant_id", p.TenantID).Msg("token refresh failed")
		return p.AccessToken, nil
	}
	expires := now.Add(ttl)
	if err := r.repo.UpdateToken(ctx, p.TenantID, token, expires); err != nil {
		return "", fmt.Errorf("store refreshed token for %s: %w", p.TenantID, err)
	}
	log.Info().Str("tenant_id", p.TenantID).Time("expires_at", expires).Msg("access token refreshed")
	return token, nil
}

// RecordGeneration counts one text generation against the tenant.
func (r *Resolver) RecordGeneration(ctx context.Context, tenantID string) error {
	return r.repo.IncrementCredits(ctx, tenantID)
}

// MemoryRepo is an in-process Repo.
type MemoryRepo struct {
	mu       sync.Mutex
	profiles map[string]*Profile
}

func NewMemoryRepo(profiles ...Profile) *MemoryRepo {
	r := &MemoryRepo{profiles: make(map[string]*Profile)}
	for i := range profiles {
		p := profiles[i]
		r.profiles[p.TenantID] = &p
	}
	return r
}

func (r *MemoryRepo) ByAccountID(_ context.Context, accountID string) (*Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.profiles {
		if p.AccountID == accountID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrUnknownAccount
}

func (r *MemoryRepo) ByTenantID(_ context.Context, tenantID string) (*Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[tenantID]
	if !ok {
		return nil, ErrUnknownAccount
	}
	cp := *p
	return &cp, nil
}

func (r *MemoryRepo) UpdateToken(_ context.Context, tenantID, token string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[tenantID]
	if !ok {
		return ErrUnknownAccount
	}
	p.AccessToken = token
	p.TokenExpiresAt = expiresAt
	return nil
}

func (r *MemoryRepo) IncrementCredits(_ context.Context, tenantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[tenantID]
	if !ok {
		return ErrUnknownAccount
	}
	p.CreditsUsed++
	return nil
}
