package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/advicehub/counsel/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionRepository implements domain.SessionRepository
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

const sessionColumns = `
	email, role, supervisor_space_id, active_call, active_thread_id, call_start, assignment, created_at, updated_at
`

// Get retrieves a session by adviser email
func (r *SessionRepository) Get(ctx context.Context, email string) (*domain.UserSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM user_sessions
		WHERE email = $1
	`
	session, err := scanSession(r.pool.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// Register inserts or refreshes an adviser's enrolment; call state is left
// untouched on update.
func (r *SessionRepository) Register(ctx context.Context, session *domain.UserSession) error {
	query := `
		INSERT INTO user_sessions (email, role, supervisor_space_id, active_call, assignment, created_at, updated_at)
		VALUES ($1, $2, $3, FALSE, '{}', $4, $5)
		ON CONFLICT (email) DO UPDATE
		SET role = EXCLUDED.role, supervisor_space_id = EXCLUDED.supervisor_space_id, updated_at = EXCLUDED.updated_at
	`
	_, err := r.pool.Exec(ctx, query,
		session.Email,
		session.Role,
		session.SupervisorSpaceID,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to register session: %w", err)
	}
	return nil
}

// Remove deletes a session
func (r *SessionRepository) Remove(ctx context.Context, email string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM user_sessions WHERE email = $1`, email)
	if err != nil {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListBySpace retrieves the sessions enrolled under a supervisor space
func (r *SessionRepository) ListBySpace(ctx context.Context, supervisorSpaceID string) ([]domain.UserSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM user_sessions
		WHERE supervisor_space_id = $1
		ORDER BY email
	`

	rows, err := r.pool.Query(ctx, query, supervisorSpaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.UserSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *session)
	}
	return sessions, nil
}

// AssignCall marks the session's call active and pins the thread and module
// assignment
func (r *SessionRepository) AssignCall(ctx context.Context, email, threadID string, start time.Time, assignment domain.ModuleAssignment) error {
	assignmentJSON, err := json.Marshal(assignment)
	if err != nil {
		return fmt.Errorf("failed to marshal assignment: %w", err)
	}

	query := `
		UPDATE user_sessions
		SET active_call = TRUE, active_thread_id = $2, call_start = $3, assignment = $4, updated_at = $3
		WHERE email = $1
	`
	tag, err := r.pool.Exec(ctx, query, email, threadID, start, assignmentJSON)
	if err != nil {
		return fmt.Errorf("failed to assign call: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// EndCall clears the session's active-call flag
func (r *SessionRepository) EndCall(ctx context.Context, email string) error {
	query := `
		UPDATE user_sessions
		SET active_call = FALSE, active_thread_id = '', call_start = NULL, updated_at = NOW()
		WHERE email = $1
	`
	tag, err := r.pool.Exec(ctx, query, email)
	if err != nil {
		return fmt.Errorf("failed to end call: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanSession(row pgx.Row) (*domain.UserSession, error) {
	var (
		s              domain.UserSession
		assignmentJSON []byte
	)
	err := row.Scan(
		&s.Email,
		&s.Role,
		&s.SupervisorSpaceID,
		&s.ActiveCall,
		&s.ActiveThreadID,
		&s.CallStart,
		&assignmentJSON,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(assignmentJSON) > 0 {
		if err := json.Unmarshal(assignmentJSON, &s.Assignment); err != nil {
			return nil, fmt.Errorf("failed to unmarshal assignment: %w", err)
		}
	}
	return &s, nil
}
