package media

import (
	"context"
	"errors"
)

type ProductType string

const (
	ProductFeed     ProductType = "FEED"
	ProductStory    ProductType = "STORY"
	ProductReels    ProductType = "REELS"
	ProductVideo    ProductType = "VIDEO"
	ProductCarousel ProductType = "CAROUSEL_ALBUM"
)

// Media is the cached snapshot of a platform media object.
type Media struct {
	ID          string      `json:"id"`
	AccountID   string      `json:"account_id"`
	ProductType ProductType `json:"media_product_type"`
	Caption     string      `json:"caption"`
	MediaURL    string      `json:"media_url"`
	Permalink   string      `json:"permalink"`
	Timestamp   string      `json:"timestamp"`
	CreatedAt   int64       `json:"created_at"`
}

var ErrNotFound = errors.New("media not cached")

// Repo caches media keyed by (account, media id).
type Repo interface {
	Get(ctx context.Context, accountID, mediaID string) (*Media, error)
	Put(ctx context.Context, m *Media) error
}

// Fetcher reads a media object from the platform.
type Fetcher interface {
	FetchMedia(ctx context.Context, token, mediaID string) (*Media, error)
}
