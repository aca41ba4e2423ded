package account

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRefresher struct {
	calls int
	err   error
}

func (s *stubRefresher) RefreshToken(_ context.Context, token string) (string, time.Duration, error) {
	s.calls++
	if s.err != nil {
		return "", 0, s.err
	}
	return token + "-fresh", 60 * 24 * time.Hour, nil
}

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newResolver(p Profile, ref Refresher) (*Resolver, *MemoryRepo) {
	repo := NewMemoryRepo(p)
	r := NewResolver(repo, ref)
	r.now = func() time.Time { return now }
	return r, repo
}

func TestResolveByAccountID(t *testing.T) {
	r, _ := newResolver(Profile{TenantID: "t1", AccountID: "a1"}, nil)

	p, err := r.ResolveByAccountID(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "t1", p.TenantID)

	_, err = r.ResolveByAccountID(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrUnknownAccount)
}

func TestCredentialStillFresh(t *testing.T) {
	ref := &stubRefresher{}
	r, _ := newResolver(Profile{TenantID: "t1", AccessToken: "tok", TokenExpiresAt: now.Add(10 * 24 * time.Hour)}, ref)

	tok, err := r.Credential(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "tok", tok)
	assert.Zero(t, ref.calls)
}

func TestCredentialRefreshedNearExpiry(t *testing.T) {
	ref := &stubRefresher{}
	r, repo := newResolver(Profile{TenantID: "t1", AccessToken: "tok", TokenExpiresAt: now.Add(3 * time.Hour)}, ref)

	tok, err := r.Credential(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "tok-fresh", tok)
	assert.Equal(t, 1, ref.calls)

	stored, _ := repo.ByTenantID(context.Background(), "t1")
	assert.Equal(t, "tok-fresh", stored.AccessToken)
	assert.Equal(t, now.Add(60*24*time.Hour), stored.TokenExpiresAt)
}

func TestCredentialRefreshFailureKeepsValidToken(t *testing.T) {
	ref := &stubRefresher{err: errors.New("graph down")}
	r, _ := newResolver(Profile{TenantID: "t1", AccessToken: "tok", TokenExpiresAt: now.Add(time.Hour)}, ref)

	tok, err := r.Credential(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "tok", tok)
}

func TestCredentialExpired(t *testing.T) {
	r, _ := newResolver(Profile{TenantID: "t1", AccessToken: "tok", TokenExpiresAt: now.Add(-time.Minute)}, &stubRefresher{})
	_, err := r.Credential(context.Background(), "t1")
	assert.ErrorIs(t, err, ErrCredentialExpired)

	r, _ = newResolver(Profile{TenantID: "t2"}, nil)
	_, err = r.Credential(context.Background(), "t2")
	assert.ErrorIs(t, err, ErrCredentialExpired)
}

func TestRecordGeneration(t *testing.T) {
	r, repo := newResolver(Profile{TenantID: "t1"}, nil)
	require.NoError(t, r.RecordGeneration(context.Background(), "t1"))
	require.NoError(t, r.RecordGeneration(context.Background(), "t1"))

	p, _ := repo.ByTenantID(context.Background(), "t1")
	assert.Equal(t, int64(2), p.CreditsUsed)
}
