package webhook

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/sowerflow/sowerflow/internal/instagram"
)

// maxBodyBytes caps a webhook body; the platform batches well under this.
const maxBodyBytes = 4 << 20

type Handler struct {
	svc         Service
	appSecret   string
	verifyToken string
	recorder    Recorder
}

func NewHandler(svc Service, appSecret, verifyToken string, recorder Recorder) *Handler {
	return &Handler{svc: svc, appSecret: appSecret, verifyToken: verifyToken, recorder: recorder}
}

// Verify answers the subscription handshake.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") != "subscribe" || q.Get("hub.verify_token") != h.verifyToken || h.verifyToken == "" {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(q.Get("hub.challenge")))
}

// Receive checks the signature over the raw body before decoding anything.
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.fail(w, "read_error", "read error", http.StatusInternalServerError)
		return
	}

	if !instagram.Verify(body, r.Header.Get(instagram.SignatureHeader), h.appSecret) {
		log.Warn().Str("remote", r.RemoteAddr).Msg("webhook signature rejected")
		h.fail(w, "forbidden", "invalid signature", http.StatusForbidden)
		return
	}

	var d instagram.Delivery
	if err := json.Unmarshal(body, &d); err != nil {
		// Redelivering the same bytes cannot succeed, so acknowledge and drop.
		log.Warn().Err(err).Int("bytes", len(body)).Msg("signed webhook body is not valid json, dropped")
		h.observe("invalid_json")
		h.ack(w)
		return
	}

	if err := h.svc.HandleDelivery(r.Context(), d); err != nil {
		log.Error().Err(err).Msg("webhook delivery not fully persisted")
		// A non-2xx makes the platform redeliver; dedupe absorbs the replays.
		h.fail(w, "error", "processing error", http.StatusInternalServerError)
		return
	}

	h.observe("ok")
	h.ack(w)
}

func (h *Handler) ack(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) fail(w http.ResponseWriter, outcome, msg string, status int) {
	h.observe(outcome)
	http.Error(w, msg, status)
}

func (h *Handler) observe(outcome string) {
	if h.recorder != nil {
		h.recorder.RecordDelivery(outcome)
	}
}
