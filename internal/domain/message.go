package domain

import (
	"context"
	"time"
)

// UserMessage is one inbound adviser utterance. It is written once when the
// message arrives and never mutated afterwards.
type UserMessage struct {
	MessageID  string    `json:"message_id"`
	SpaceID    string    `json:"space_id"`
	ThreadID   string    `json:"thread_id"`
	Client     string    `json:"client"`
	UserEmail  string    `json:"user_email"`
	Text       string    `json:"text"`
	SentAt     time.Time `json:"sent_at"`
	ReceivedAt time.Time `json:"received_at"`
}

// MessageRepository defines the interface for message storage
type MessageRepository interface {
	Create(ctx context.Context, message *UserMessage) error
	ListByThread(ctx context.Context, threadID string, limit int) ([]UserMessage, error)
}
