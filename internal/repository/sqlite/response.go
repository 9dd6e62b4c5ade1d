package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/advicehub/counsel/internal/domain"
	"github.com/google/uuid"
)

// ResponseRepository implements domain.ResponseRepository
type ResponseRepository struct {
	db *DB
}

// NewResponseRepository creates a new response repository
func NewResponseRepository(db *DB) *ResponseRepository {
	return &ResponseRepository{db: db}
}

const responseColumns = `
	id, message_id, thread_id, prompt, answer, rendered_card, prompt_at, answer_at,
	user_thanked_at, approver_received_at, approver_email, approved, approval_at,
	user_response_at, supervisor_message
`

// Create inserts a new undecided response
func (r *ResponseRepository) Create(ctx context.Context, response *domain.AnswerResponse) error {
	query := `
		INSERT INTO responses (id, message_id, thread_id, prompt, answer, rendered_card, prompt_at, answer_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.conn.ExecContext(ctx, query,
		response.ID.String(),
		response.MessageID,
		response.ThreadID,
		response.Prompt,
		response.Answer,
		response.RenderedCard,
		response.PromptAt,
		response.AnswerAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create response: %w", err)
	}
	return nil
}

// GetLatestByThread returns the most recent response for a thread
func (r *ResponseRepository) GetLatestByThread(ctx context.Context, threadID string) (*domain.AnswerResponse, error) {
	query := `
		SELECT ` + responseColumns + `
		FROM responses
		WHERE thread_id = ?
		ORDER BY answer_at DESC
		LIMIT 1
	`
	resp, err := scanResponse(r.db.conn.QueryRowContext(ctx, query, threadID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get response: %w", err)
	}
	return resp, nil
}

// ListByThread retrieves responses for a thread, oldest first
func (r *ResponseRepository) ListByThread(ctx context.Context, threadID string, limit int) ([]domain.AnswerResponse, error) {
	query := `
		SELECT ` + responseColumns + `
		FROM responses
		WHERE thread_id = ?
		ORDER BY answer_at DESC
		LIMIT ?
	`

	rows, err := r.db.conn.QueryContext(ctx, query, threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list responses: %w", err)
	}
	defer rows.Close()

	var responses []domain.AnswerResponse
	for rows.Next() {
		resp, err := scanResponse(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan response: %w", err)
		}
		responses = append(responses, *resp)
	}

	for i, j := 0, len(responses)-1; i < j; i, j = i+1, j-1 {
		responses[i], responses[j] = responses[j], responses[i]
	}

	return responses, rows.Err()
}

// SetUserThanked stamps the adviser-acknowledgement time on the latest
// response in the thread
func (r *ResponseRepository) SetUserThanked(ctx context.Context, threadID string, at time.Time) error {
	return r.stampLatest(ctx, "user_thanked_at", threadID, at)
}

// SetApproverReceived stamps the supervisor-delivery time on the latest
// response in the thread
func (r *ResponseRepository) SetApproverReceived(ctx context.Context, threadID string, at time.Time) error {
	return r.stampLatest(ctx, "approver_received_at", threadID, at)
}

func (r *ResponseRepository) stampLatest(ctx context.Context, column, threadID string, at time.Time) error {
	query := fmt.Sprintf(`
		UPDATE responses SET %s = ?
		WHERE id = (
			SELECT id FROM responses WHERE thread_id = ? ORDER BY answer_at DESC LIMIT 1
		)
	`, column)

	result, err := r.db.conn.ExecContext(ctx, query, at, threadID)
	if err != nil {
		return fmt.Errorf("failed to stamp response: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// RecordDecision folds a supervisor decision into the latest undecided
// response; the approved IS NULL guard makes the first writer win.
func (r *ResponseRepository) RecordDecision(ctx context.Context, decision domain.ApprovalDecision) error {
	query := `
		UPDATE responses
		SET approver_email = ?, approved = ?, approval_at = ?, user_response_at = ?, supervisor_message = NULLIF(?, '')
		WHERE id = (
			SELECT id FROM responses WHERE thread_id = ? ORDER BY answer_at DESC LIMIT 1
		)
		AND approved IS NULL
	`

	result, err := r.db.conn.ExecContext(ctx, query,
		decision.ApproverEmail,
		decision.Approved,
		decision.ApprovalAt,
		decision.UserResponseAt,
		decision.SupervisorMessage,
		decision.ThreadID,
	)
	if err != nil {
		return fmt.Errorf("failed to record decision: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := r.GetLatestByThread(ctx, decision.ThreadID); errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return domain.ErrAlreadyDecided
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResponse(row rowScanner) (*domain.AnswerResponse, error) {
	var (
		resp domain.AnswerResponse
		id   string
	)
	err := row.Scan(
		&id,
		&resp.MessageID,
		&resp.ThreadID,
		&resp.Prompt,
		&resp.Answer,
		&resp.RenderedCard,
		&resp.PromptAt,
		&resp.AnswerAt,
		&resp.UserThankedAt,
		&resp.ApproverReceivedAt,
		&resp.ApproverEmail,
		&resp.Approved,
		&resp.ApprovalAt,
		&resp.UserResponseAt,
		&resp.SupervisorMessage,
	)
	if err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid response id %q: %w", id, err)
	}
	resp.ID = parsed
	return &resp, nil
}
