package bridge

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/feishu-bots/larkbot/internal/deliveries"
	"github.com/feishu-bots/larkbot/internal/feishu"
)

// WebhookHandler handles inbound Feishu event callbacks.
type WebhookHandler struct {
	processor *Processor
	log       *deliveries.Store
}

// NewWebhookHandler creates a handler that routes message events through
// the given processor.
func NewWebhookHandler(processor *Processor, logStore *deliveries.Store) *WebhookHandler {
	return &WebhookHandler{processor: processor, log: logStore}
}

// HandleEvent handles an inbound webhook delivery (HTTP POST).
//
// Handshake payloads are answered with the challenge and nothing else
// happens: no record write, no outbound call. Malformed payloads fail the
// request; Feishu treats the failure as an undelivered event and retries,
// which the dedup gate then absorbs once a delivery has succeeded.
func (h *WebhookHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var payload feishu.EventPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	if payload.IsHandshake() {
		h.record(r.Context(), "", deliveries.OutcomeHandshake, "")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"challenge": payload.Challenge})
		return
	}

	msg := payload.Event.Message
	if msg.MessageID == "" {
		http.Error(w, "missing event message", http.StatusBadRequest)
		return
	}

	text, err := msg.Text()
	if err != nil {
		h.record(r.Context(), msg.MessageID, deliveries.OutcomeFailed, err.Error())
		http.Error(w, "invalid message content", http.StatusBadRequest)
		return
	}

	if _, err := h.processor.Process(r.Context(), msg.MessageID, text); err != nil {
		http.Error(w, "processing error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) record(ctx context.Context, messageID string, outcome deliveries.Outcome, detail string) {
	if h.log == nil {
		return
	}
	err := h.log.Log(ctx, deliveries.Entry{
		MessageID: messageID,
		Outcome:   outcome,
		Detail:    detail,
	})
	if err != nil {
		log.Printf("delivery log write failed: %v", err)
	}
}
