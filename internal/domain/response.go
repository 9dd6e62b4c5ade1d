package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AnswerResponse is one finalized AI answer awaiting (or past) supervisor
// review. After creation it is mutated exactly twice: once to set the
// thanked/received timestamps and once to fold in the approval decision.
type AnswerResponse struct {
	ID           uuid.UUID `json:"id"`
	MessageID    string    `json:"message_id"`
	ThreadID     string    `json:"thread_id"`
	Prompt       string    `json:"prompt"`
	Answer       string    `json:"answer"`
	RenderedCard string    `json:"rendered_card"` // serialized card sent for approval
	PromptAt     time.Time `json:"prompt_at"`
	AnswerAt     time.Time `json:"answer_at"`

	UserThankedAt      *time.Time `json:"user_thanked_at,omitempty"`
	ApproverReceivedAt *time.Time `json:"approver_received_at,omitempty"`

	// Approval outcome; nil Approved means the answer is still undecided.
	ApproverEmail     *string    `json:"approver_email,omitempty"`
	Approved          *bool      `json:"approved,omitempty"`
	ApprovalAt        *time.Time `json:"approval_at,omitempty"`
	UserResponseAt    *time.Time `json:"user_response_at,omitempty"`
	SupervisorMessage *string    `json:"supervisor_message,omitempty"`
}

// Decided reports whether a supervisor decision has been recorded.
func (r *AnswerResponse) Decided() bool {
	return r.Approved != nil
}

// ApprovalDecision is the ephemeral outcome of a supervisor action. It is not
// stored on its own; RecordDecision folds it into the matching AnswerResponse.
type ApprovalDecision struct {
	ThreadID          string
	ApproverEmail     string
	Approved          bool
	ApprovalAt        time.Time
	UserResponseAt    time.Time
	SupervisorMessage string
}

// ResponseRepository defines the interface for answer storage
type ResponseRepository interface {
	Create(ctx context.Context, response *AnswerResponse) error
	// GetLatestByThread returns the most recent answer for a thread.
	GetLatestByThread(ctx context.Context, threadID string) (*AnswerResponse, error)
	// ListByThread returns past answers for a thread, oldest first.
	ListByThread(ctx context.Context, threadID string, limit int) ([]AnswerResponse, error)
	SetUserThanked(ctx context.Context, threadID string, at time.Time) error
	SetApproverReceived(ctx context.Context, threadID string, at time.Time) error
	// RecordDecision writes the approval outcome onto the latest undecided
	// answer in the thread. Returns ErrAlreadyDecided if a decision has
	// already been recorded.
	RecordDecision(ctx context.Context, decision ApprovalDecision) error
}
