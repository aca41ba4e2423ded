package instagram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
}

func (o *recordingObserver) ObserveGraphCall(op, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, op+":"+outcome)
}

func TestSendText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v22.0/a1/messages", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var body struct {
			Recipient struct{ ID string } `json:"recipient"`
			Message   struct{ Text string } `json:"message"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "u1", body.Recipient.ID)
		assert.Equal(t, "Bonjour !", body.Message.Text)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"recipient_id":"u1","message_id":"out-1"}`))
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	c := NewClient(Config{BaseURL: srv.URL}, obs)

	mid, err := c.SendText(context.Background(), "tok", "a1", "u1", "Bonjour !")
	require.NoError(t, err)
	assert.Equal(t, "out-1", mid)
	assert.Equal(t, []string{"send:ok"}, obs.calls)
}

func TestSendTextAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"outside of allowed window"}}`))
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	c := NewClient(Config{BaseURL: srv.URL}, obs)
	_, err := c.SendText(context.Background(), "tok", "a1", "u1", "hi")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Contains(t, apiErr.Body, "allowed window")
	assert.Equal(t, []string{"send:error"}, obs.calls)
}

func TestFetchMedia(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v22.0/p1", r.URL.Path)
		assert.Contains(t, r.URL.Query().Get("fields"), "caption")
		w.Write([]byte(`{"id":"p1","caption":"Nouvelle collection","media_product_type":"REELS","permalink":"https://ig/p1"}`))
	}))
	defer srv.Close()

	m, err := NewClient(Config{BaseURL: srv.URL}, nil).FetchMedia(context.Background(), "tok", "p1")
	require.NoError(t, err)
	assert.Equal(t, "Nouvelle collection", m.Caption)
	assert.Equal(t, "https://ig/p1", m.Permalink)
	assert.EqualValues(t, "REELS", m.ProductType)
}

func TestFetchUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v22.0/u1", r.URL.Path)
		w.Write([]byte(`{"id":"u1","name":"Camille","username":"camille.fleurs"}`))
	}))
	defer srv.Close()

	u, err := NewClient(Config{BaseURL: srv.URL}, nil).FetchUser(context.Background(), "tok", "u1")
	require.NoError(t, err)
	assert.Equal(t, "Camille", u.Name)
	assert.Equal(t, "camille.fleurs", u.Username)
}

func TestRefreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/refresh_access_token", r.URL.Path)
		assert.Equal(t, "ig_refresh_token", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "old", r.URL.Query().Get("access_token"))
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`{"access_token":"new","token_type":"bearer","expires_in":5184000}`))
	}))
	defer srv.Close()

	tok, ttl, err := NewClient(Config{BaseURL: srv.URL}, nil).RefreshToken(context.Background(), "old")
	require.NoError(t, err)
	assert.Equal(t, "new", tok)
	assert.Equal(t, 60*24*time.Hour, ttl)
}
