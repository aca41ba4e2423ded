package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubService struct {
	res   Result
	err   error
	calls int
}

func (s *stubService) DrainOnce(context.Context) (Result, error) {
	s.calls++
	return s.res, s.err
}

func drain(t *testing.T, svc Service, secret string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	RegisterRoutes(r, NewHandler(svc, "cron-secret"))
	req := httptest.NewRequest(http.MethodGet, "/api/bot/instagram", nil)
	if secret != "" {
		req.Header.Set(SecretHeader, secret)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestDrainHandlerRequiresSecret(t *testing.T) {
	svc := &stubService{}
	assert.Equal(t, http.StatusUnauthorized, drain(t, svc, "").Code)
	assert.Equal(t, http.StatusUnauthorized, drain(t, svc, "guess").Code)
	assert.Zero(t, svc.calls)
}

func TestDrainHandlerReportsResult(t *testing.T) {
	svc := &stubService{res: Result{Outcome: OutcomeSent, ConversationID: "a1_u1", Message: "Successfully processed conversation"}}
	rec := drain(t, svc, "cron-secret")
	require.Equal(t, http.StatusOK, rec.Code)

	var body Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, svc.res, body)

	svc.err = errors.New("boom")
	svc.res = Result{Outcome: OutcomeFailed, ConversationID: "a1_u1"}
	assert.Equal(t, http.StatusInternalServerError, drain(t, svc, "cron-secret").Code)
}
