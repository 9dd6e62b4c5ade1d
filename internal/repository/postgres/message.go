package postgres

import (
	"context"
	"fmt"

	"github.com/advicehub/counsel/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MessageRepository implements domain.MessageRepository
type MessageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

// Create inserts a new message
func (r *MessageRepository) Create(ctx context.Context, message *domain.UserMessage) error {
	query := `
		INSERT INTO messages (message_id, space_id, thread_id, client, user_email, text, sent_at, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		message.MessageID,
		message.SpaceID,
		message.ThreadID,
		message.Client,
		message.UserEmail,
		message.Text,
		message.SentAt,
		message.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// ListByThread retrieves messages for a thread, oldest first
func (r *MessageRepository) ListByThread(ctx context.Context, threadID string, limit int) ([]domain.UserMessage, error) {
	query := `
		SELECT message_id, space_id, thread_id, client, user_email, text, sent_at, received_at
		FROM messages
		WHERE thread_id = $1
		ORDER BY received_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.UserMessage
	for rows.Next() {
		var m domain.UserMessage
		if err := rows.Scan(
			&m.MessageID,
			&m.SpaceID,
			&m.ThreadID,
			&m.Client,
			&m.UserEmail,
			&m.Text,
			&m.SentAt,
			&m.ReceivedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}

	// Reverse to return chronological order (oldest first)
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}
