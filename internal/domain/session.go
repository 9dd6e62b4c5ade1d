package domain

import (
	"context"
	"time"
)

// UserSession is the per-adviser state row. ActiveCall is true iff an
// EvaluationRecord with callComplete=false exists for ActiveThreadID.
type UserSession struct {
	Email             string `json:"email"`
	Role              string `json:"role"`
	SupervisorSpaceID string `json:"supervisor_space_id"`

	ActiveCall     bool             `json:"active_call"`
	ActiveThreadID string           `json:"active_thread_id,omitempty"`
	CallStart      *time.Time       `json:"call_start,omitempty"`
	Assignment     ModuleAssignment `json:"assignment"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionRepository defines the interface for adviser session storage
type SessionRepository interface {
	Get(ctx context.Context, email string) (*UserSession, error)
	Register(ctx context.Context, session *UserSession) error
	Remove(ctx context.Context, email string) error
	ListBySpace(ctx context.Context, supervisorSpaceID string) ([]UserSession, error)
	// AssignCall marks the session active and pins the thread and module
	// assignment for the duration of the call.
	AssignCall(ctx context.Context, email, threadID string, start time.Time, assignment ModuleAssignment) error
	// EndCall clears the active-call flag; the evaluation record keeps the
	// call history.
	EndCall(ctx context.Context, email string) error
}

// OfficeRepository resolves office coverage regions by email domain.
type OfficeRepository interface {
	RegionsFor(ctx context.Context, emailDomain string) ([]string, error)
	SetRegions(ctx context.Context, emailDomain string, regions []string) error
}
