package webhook

import "github.com/go-chi/chi/v5"

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Get("/api/instagram/webhook", h.Verify)
	r.Post("/api/instagram/webhook", h.Receive)
}
