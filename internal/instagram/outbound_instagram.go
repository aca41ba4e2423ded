package instagram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/sowerflow/sowerflow/internal/media"
)

const (
	DefaultBaseURL = "https://graph.instagram.com"
	DefaultVersion = "v22.0"
)

// APIError is a non-2xx answer from the Graph API.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("instagram %s: status %d body=%s", e.Op, e.Status, e.Body)
}

// Observer receives the duration of each Graph API call.
type Observer interface {
	ObserveGraphCall(op, outcome string, d time.Duration)
}

type Config struct {
	BaseURL string
	Version string
	// RequestsPerSecond bounds outbound calls; zero means 5.
	RequestsPerSecond float64
	Timeout           time.Duration
}

// Client talks to the Instagram Graph API on behalf of tenants; every call
// carries the tenant's bearer token.
type Client struct {
	baseURL  string
	version  string
	client   *http.Client
	limiter  *rate.Limiter
	observer Observer
}

func NewClient(cfg Config, observer Observer) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		version:  cfg.Version,
		client:   &http.Client{Timeout: cfg.Timeout},
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)+1),
		observer: observer,
	}
}

type sendResponse struct {
	RecipientID string `json:"recipient_id"`
	MessageID   string `json:"message_id"`
}

// SendText posts a text message to recipientID from accountID and returns the
// platform message id.
func (c *Client) SendText(ctx context.Context, token, accountID, recipientID, text string) (string, error) {
	body := map[string]any{
		"recipient": map[string]string{"id": recipientID},
		"message":   map[string]string{"text": text},
	}
	var out sendResponse
	if err := c.do(ctx, "send", http.MethodPost, c.versioned(accountID, "messages"), nil, token, body, &out); err != nil {
		return "", err
	}
	if out.MessageID == "" {
		return "", &APIError{Op: "send", Status: http.StatusOK, Body: "missing message_id"}
	}
	return out.MessageID, nil
}

// FetchMedia reads the caption and metadata of a media object.
func (c *Client) FetchMedia(ctx context.Context, token, mediaID string) (*media.Media, error) {
	q := url.Values{"fields": {"caption,media_url,permalink,media_product_type,timestamp"}}
	var out struct {
		ID               string `json:"id"`
		Caption          string `json:"caption"`
		MediaURL         string `json:"media_url"`
		Permalink        string `json:"permalink"`
		MediaProductType string `json:"media_product_type"`
		Timestamp        string `json:"timestamp"`
	}
	if err := c.do(ctx, "media", http.MethodGet, c.versioned(mediaID), q, token, nil, &out); err != nil {
		return nil, err
	}
	return &media.Media{
		ID:          mediaID,
		Caption:     out.Caption,
		MediaURL:    out.MediaURL,
		Permalink:   out.Permalink,
		ProductType: media.ProductType(out.MediaProductType),
		Timestamp:   out.Timestamp,
	}, nil
}

// User is the public snapshot of a counterpart.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Username  string `json:"username"`
	Biography string `json:"biography"`
}

// FetchUser reads the profile a scoped user exposes to the account.
func (c *Client) FetchUser(ctx context.Context, token, userID string) (*User, error) {
	q := url.Values{"fields": {"name,username"}}
	var out User
	if err := c.do(ctx, "user", http.MethodGet, c.versioned(userID), q, token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RefreshToken exchanges a long-lived token for a new one and its lifetime.
func (c *Client) RefreshToken(ctx context.Context, token string) (string, time.Duration, error) {
	q := url.Values{
		"grant_type":   {"ig_refresh_token"},
		"access_token": {token},
	}
	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := c.do(ctx, "refresh", http.MethodGet, c.baseURL+"/refresh_access_token", q, "", nil, &out); err != nil {
		return "", 0, err
	}
	if out.AccessToken == "" {
		return "", 0, &APIError{Op: "refresh", Status: http.StatusOK, Body: "missing access_token"}
	}
	return out.AccessToken, time.Duration(out.ExpiresIn) * time.Second, nil
}

func (c *Client) versioned(parts ...string) string {
	segs := make([]string, 0, len(parts))
	for _, p := range parts {
		segs = append(segs, url.PathEscape(p))
	}
	return c.baseURL + "/" + c.version + "/" + strings.Join(segs, "/")
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, query url.Values, token string, body, out any) (err error) {
	start := time.Now()
	defer func() {
		if c.observer == nil {
			return
		}
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		c.observer.ObserveGraphCall(op, outcome, time.Since(start))
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		log.Debug().Str("op", op).Int("status", resp.StatusCode).Msg("graph api error")
		return &APIError{Op: op, Status: resp.StatusCode, Body: string(respBody)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("instagram %s: decode response: %w", op, err)
	}
	return nil
}
