package media

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Resolver returns media captions, fetching each (account, media) pair from
// the platform at most once while it stays cached.
type Resolver struct {
	repo    Repo
	fetcher Fetcher
}

func NewResolver(repo Repo, fetcher Fetcher) *Resolver {
	return &Resolver{repo: repo, fetcher: fetcher}
}

// Caption degrades to an empty string when the media cannot be fetched.
func (r *Resolver) Caption(ctx context.Context, accountID, mediaID, token string) string {
	if mediaID == "" {
		return ""
	}

	m, err := r.repo.Get(ctx, accountID, mediaID)
	if err == nil {
		return m.Caption
	}
	if !errors.Is(err, ErrNotFound) {
		log.Warn().Err(err).Str("account_id", accountID).Str("media_id", mediaID).Msg("media cache read failed")
	}

	m, err = r.fetcher.FetchMedia(ctx, token, mediaID)
	if err != nil {
		log.Warn().Err(err).Str("account_id", accountID).Str("media_id", mediaID).Msg("media fetch failed, caption left empty")
		return ""
	}
	m.ID = mediaID
	m.AccountID = accountID
	m.CreatedAt = time.Now().UnixMilli()

	if err := r.repo.Put(ctx, m); err != nil {
		log.Warn().Err(err).Str("media_id", mediaID).Msg("media cache write failed")
	}
	return m.Caption
}

// MemoryRepo is an in-process Repo.
type MemoryRepo struct {
	mu    sync.Mutex
	items map[string]Media
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{items: make(map[string]Media)}
}

func (r *MemoryRepo) Get(_ context.Context, accountID, mediaID string) (*Media, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.items[accountID+"/"+mediaID]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (r *MemoryRepo) Put(_ context.Context, m *Media) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[m.AccountID+"/"+m.ID] = *m
	return nil
}
