package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/advicehub/counsel/internal/domain"
)

// EvaluationRepository implements domain.EvaluationRepository
type EvaluationRepository struct {
	db *DB
}

// NewEvaluationRepository creates a new evaluation repository
func NewEvaluationRepository(db *DB) *EvaluationRepository {
	return &EvaluationRepository{db: db}
}

// Create inserts the evaluation record opening a call
func (r *EvaluationRepository) Create(ctx context.Context, record *domain.EvaluationRecord) error {
	assignmentJSON, err := json.Marshal(record.Assignment)
	if err != nil {
		return fmt.Errorf("failed to marshal assignment: %w", err)
	}

	query := `
		INSERT INTO evaluations (thread_id, call_start, assignment, call_complete, survey_responses)
		VALUES (?, ?, ?, 0, '[]')
	`
	if _, err := r.db.conn.ExecContext(ctx, query, record.ThreadID, record.CallStart, string(assignmentJSON)); err != nil {
		return fmt.Errorf("failed to create evaluation record: %w", err)
	}
	return nil
}

// Get retrieves the evaluation record for a thread
func (r *EvaluationRepository) Get(ctx context.Context, threadID string) (*domain.EvaluationRecord, error) {
	query := `
		SELECT thread_id, call_start, assignment, call_complete, survey_responses
		FROM evaluations
		WHERE thread_id = ?
	`

	var (
		record         domain.EvaluationRecord
		assignmentJSON string
		surveyJSON     string
	)
	err := r.db.conn.QueryRowContext(ctx, query, threadID).Scan(
		&record.ThreadID,
		&record.CallStart,
		&assignmentJSON,
		&record.CallComplete,
		&surveyJSON,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get evaluation record: %w", err)
	}

	if err := json.Unmarshal([]byte(assignmentJSON), &record.Assignment); err != nil {
		return nil, fmt.Errorf("failed to unmarshal assignment: %w", err)
	}
	if err := json.Unmarshal([]byte(surveyJSON), &record.SurveyResponses); err != nil {
		return nil, fmt.Errorf("failed to unmarshal survey responses: %w", err)
	}
	return &record, nil
}

// MarkCallComplete sets the call-complete flag; repeating is a no-op
func (r *EvaluationRepository) MarkCallComplete(ctx context.Context, threadID string) error {
	query := `
		UPDATE evaluations SET call_complete = 1
		WHERE thread_id = ? AND call_complete = 0
	`
	result, err := r.db.conn.ExecContext(ctx, query, threadID)
	if err != nil {
		return fmt.Errorf("failed to mark call complete: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
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
		UPDATE evaluations SET survey_responses = json_insert(survey_responses, '$[#]', json(?))
		WHERE thread_id = ?
	`
	result, err := r.db.conn.ExecContext(ctx, query, string(answerJSON), threadID)
	if err != nil {
		return fmt.Errorf("failed to append survey answer: %w", err)
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
