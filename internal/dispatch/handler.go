package dispatch

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// SecretHeader authenticates the external scheduler.
const SecretHeader = "X-Cron-Secret"

type Handler struct {
	svc    Service
	secret string
}

func NewHandler(svc Service, secret string) *Handler {
	return &Handler{svc: svc, secret: secret}
}

// Drain runs one drain invocation per scheduler tick.
func (h *Handler) Drain(w http.ResponseWriter, r *http.Request) {
	got := r.Header.Get(SecretHeader)
	if h.secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	res, err := h.svc.DrainOnce(r.Context())
	if err != nil {
		log.Error().Err(err).Str("conversation_id", res.ConversationID).Msg("drain failed")
		writeJSON(w, http.StatusInternalServerError, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
