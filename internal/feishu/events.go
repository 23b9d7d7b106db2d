package feishu

import (
	"encoding/json"
	"fmt"
)

// EventPayload is the top-level inbound webhook payload. Feishu sends either
// a URL-verification handshake carrying a challenge nonce, or a message
// event.
type EventPayload struct {
	Challenge string `json:"challenge"`
	Event     Event  `json:"event"`
}

// Event wraps the message of an im.message.receive delivery.
type Event struct {
	Message EventMessage `json:"message"`
}

// EventMessage is the inbound message. Content is a JSON-encoded string
// whose shape depends on msg_type; for text messages it is {"text": ...}.
type EventMessage struct {
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
}

// textContent is the decoded content of a text message.
type textContent struct {
	Text string `json:"text"`
}

// IsHandshake reports whether the payload is a URL-verification challenge.
func (p *EventPayload) IsHandshake() bool {
	return p.Challenge != ""
}

// Text decodes the nested content field and returns its text body.
// Malformed content is a hard error, not recovered.
func (m *EventMessage) Text() (string, error) {
	var c textContent
	if err := json.Unmarshal([]byte(m.Content), &c); err != nil {
		return "", fmt.Errorf("decoding message content: %w", err)
	}
	return c.Text, nil
}

// EncodeTextContent encodes reply text into the JSON-string content field
// the reply API expects.
func EncodeTextContent(text string) (string, error) {
	b, err := json.Marshal(textContent{Text: text})
	if err != nil {
		return "", fmt.Errorf("encoding reply content: %w", err)
	}
	return string(b), nil
}
