package bridge

import "github.com/go-chi/chi/v5"

// RegisterRoutes mounts the webhook endpoint on the given router.
func RegisterRoutes(r chi.Router, handler *WebhookHandler) {
	r.Post("/webhook/event", handler.HandleEvent)
}
