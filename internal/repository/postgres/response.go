package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/advicehub/counsel/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ResponseRepository implements domain.ResponseRepository
type ResponseRepository struct {
	pool *pgxpool.Pool
}

// NewResponseRepository creates a new response repository
func NewResponseRepository(pool *pgxpool.Pool) *ResponseRepository {
	return &ResponseRepository{pool: pool}
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		response.ID,
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
		WHERE thread_id = $1
		ORDER BY answer_at DESC
		LIMIT 1
	`
	resp, err := scanResponse(r.pool.QueryRow(ctx, query, threadID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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
		WHERE thread_id = $1
		ORDER BY answer_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, threadID, limit)
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

	// Reverse to return chronological order (oldest first)
	for i, j := 0, len(responses)-1; i < j; i, j = i+1, j-1 {
		responses[i], responses[j] = responses[j], responses[i]
	}

	return responses, nil
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
		UPDATE responses SET %s = $2
		WHERE id = (
			SELECT id FROM responses WHERE thread_id = $1 ORDER BY answer_at DESC LIMIT 1
		)
	`, column)

	tag, err := r.pool.Exec(ctx, query, threadID, at)
	if err != nil {
		return fmt.Errorf("failed to stamp response: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// RecordDecision folds a supervisor decision into the latest undecided
// response. The approved IS NULL guard makes the first writer win; a second
// decision for the same answer gets ErrAlreadyDecided.
func (r *ResponseRepository) RecordDecision(ctx context.Context, decision domain.ApprovalDecision) error {
	query := `
		UPDATE responses
		SET approver_email = $2, approved = $3, approval_at = $4, user_response_at = $5, supervisor_message = NULLIF($6, '')
		WHERE id = (
			SELECT id FROM responses WHERE thread_id = $1 ORDER BY answer_at DESC LIMIT 1
		)
		AND approved IS NULL
	`

	tag, err := r.pool.Exec(ctx, query,
		decision.ThreadID,
		decision.ApproverEmail,
		decision.Approved,
		decision.ApprovalAt,
		decision.UserResponseAt,
		decision.SupervisorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to record decision: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetLatestByThread(ctx, decision.ThreadID); errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return domain.ErrAlreadyDecided
	}
	return nil
}

func scanResponse(row pgx.Row) (*domain.AnswerResponse, error) {
	var resp domain.AnswerResponse
	err := row.Scan(
		&resp.ID,
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
	return &resp, nil
}
