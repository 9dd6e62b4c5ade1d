package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/advicehub/counsel/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EvaluationRepository implements domain.EvaluationRepository
type EvaluationRepository struct {
	pool *pgxpool.Pool
}

// NewEvaluationRepository creates a new evaluation repository
func NewEvaluationRepository(pool *pgxpool.Pool) *EvaluationRepository {
	return &EvaluationRepository{pool: pool}
}

// Create inserts the evaluation record opening a call
func (r *EvaluationRepository) Create(ctx context.Context, record *domain.EvaluationRecord) error {
	assignmentJSON, err := json.Marshal(record.Assignment)
	if err != nil {
		return fmt.Errorf("failed to marshal assignment: %w", err)
	}

	query := `
		INSERT INTO evaluations (thread_id, call_start, assignment, call_complete, survey_responses)
		VALUES ($1, $2, $3, FALSE, '[]')
	`
	if _, err := r.pool.Exec(ctx, query, record.ThreadID, record.CallStart, assignmentJSON); err != nil {
		return fmt.Errorf("failed to create evaluation record: %w", err)
	}
	return nil
}

// Get retrieves the evaluation record for a thread
func (r *EvaluationRepository) Get(ctx context.Context, threadID string) (*domain.EvaluationRecord, error) {
	query := `
		SELECT thread_id, call_start, assignment, call_complete, survey_responses
		FROM evaluations
		WHERE thread_id = $1
	`

	var (
		record         domain.EvaluationRecord
		assignmentJSON []byte
		surveyJSON     []byte
	)
	err := r.pool.QueryRow(ctx, query, threadID).Scan(
		&record.ThreadID,
		&record.CallStart,
		&assignmentJSON,
		&record.CallComplete,
		&surveyJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get evaluation record: %w", err)
	}

	if err := json.Unmarshal(assignmentJSON, &record.Assignment); err != nil {
		return nil, fmt.Errorf("failed to unmarshal assignment: %w", err)
	}
	if err := json.Unmarshal(surveyJSON, &record.SurveyResponses); err != nil {
		return nil, fmt.Errorf("failed to unmarshal survey responses: %w", err)
	}
	return &record, nil
}

// MarkCallComplete sets the call-complete flag. The guard makes repeat
// completion a no-op rather than an error.
func (r *EvaluationRepository) MarkCallComplete(ctx context.Context, threadID string) error {
	query := `
		UPDATE evaluations SET call_complete = TRUE
		WHERE thread_id = $1 AND call_complete = FALSE
	`
	tag, err := r.pool.Exec(ctx, query, threadID)
	if err != nil {
		return fmt.Errorf("failed to mark call complete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, threadID); errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
	}
	return nil
}

// AppendSurveyAnswer appends one survey response atomically
func (r *EvaluationRepository) AppendSurveyAnswer(ctx context.Context, threadID string, answer domain.SurveyAnswer) error {
	answerJSON, err := json.Marshal(answer)
	if err != nil {
		return fmt.Errorf("failed to marshal survey answer: %w", err)
	}

	query := `
		UPDATE evaluations SET survey_responses = survey_responses || $2::jsonb
		WHERE thread_id = $1
	`
	tag, err := r.pool.Exec(ctx, query, threadID, answerJSON)
	if err != nil {
		return fmt.Errorf("failed to append survey answer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
