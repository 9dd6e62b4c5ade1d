package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/advicehub/counsel/internal/domain"
)

// SessionRepository implements domain.SessionRepository
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `
	email, role, supervisor_space_id, active_call, active_thread_id, call_start, assignment, created_at, updated_at
`

// Get retrieves a session by adviser email
func (r *SessionRepository) Get(ctx context.Context, email string) (*domain.UserSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM user_sessions
		WHERE email = ?
	`
	session, err := scanSession(r.db.conn.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
		VALUES (?, ?, ?, 0, '{}', ?, ?)
		ON CONFLICT (email) DO UPDATE
		SET role = excluded.role, supervisor_space_id = excluded.supervisor_space_id, updated_at = excluded.updated_at
	`
	_, err := r.db.conn.ExecContext(ctx, query,
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
	result, err := r.db.conn.ExecContext(ctx, `DELETE FROM user_sessions WHERE email = ?`, email)
	if err != nil {
		return fmt.Errorf("failed to remove session: %w", err)
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

// ListBySpace retrieves the sessions enrolled under a supervisor space
func (r *SessionRepository) ListBySpace(ctx context.Context, supervisorSpaceID string) ([]domain.UserSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM user_sessions
		WHERE supervisor_space_id = ?
		ORDER BY email
	`

	rows, err := r.db.conn.QueryContext(ctx, query, supervisorSpaceID)
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
	return sessions, rows.Err()
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
		SET active_call = 1, active_thread_id = ?, call_start = ?, assignment = ?, updated_at = ?
		WHERE email = ?
	`
	result, err := r.db.conn.ExecContext(ctx, query, threadID, start, string(assignmentJSON), start, email)
	if err != nil {
		return fmt.Errorf("failed to assign call: %w", err)
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

// EndCall clears the session's active-call flag
func (r *SessionRepository) EndCall(ctx context.Context, email string) error {
	query := `
		UPDATE user_sessions
		SET active_call = 0, active_thread_id = '', call_start = NULL, updated_at = ?
		WHERE email = ?
	`
	result, err := r.db.conn.ExecContext(ctx, query, time.Now(), email)
	if err != nil {
		return fmt.Errorf("failed to end call: %w", err)
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

func scanSession(row rowScanner) (*domain.UserSession, error) {
	var (
		s              domain.UserSession
		assignmentJSON string
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
	if assignmentJSON != "" {
		if err := json.Unmarshal([]byte(assignmentJSON), &s.Assignment); err != nil {
			return nil, fmt.Errorf("failed to unmarshal assignment: %w", err)
		}
	}
	return &s, nil
}
