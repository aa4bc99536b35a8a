// Package domain contains core domain types for the ARIA application.
package domain

import (
	"time"
)

// Sender identifies who authored a chat message.
type Sender string

const (
	// SenderUser marks messages typed by the person using the app.
	SenderUser Sender = "user"
	// SenderAssistant marks messages produced by ARIA.
	SenderAssistant Sender = "aria"
)

// Message is a single entry in the conversation log.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
	ReplyTo   string    `json:"reply_to,omitempty"`
}

// Card is structured content attached to an assistant response.
// The payload is opaque until card rendering exists.
type Card struct {
	Type  string         `json:"type"`
	Title string         `json:"title,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

// MessageResponse is the reply to a sent message.
type MessageResponse struct {
	Message string `json:"message"`
	Cards   []Card `json:"cards"`
}

// HasCards returns true if the response carries structured content.
func (r MessageResponse) HasCards() bool {
	return len(r.Cards) > 0
}
