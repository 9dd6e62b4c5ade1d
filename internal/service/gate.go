package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/advicehub/counsel/internal/domain"
	"github.com/advicehub/counsel/internal/policy"
	"github.com/rs/zerolog/log"
)

// Decision is the admission outcome for one inbound message.
type Decision int

const (
	// DecisionProceed admits the message to the pipeline.
	DecisionProceed Decision = iota
	// DecisionSurveyComplete short-circuits: the thread's survey has been
	// answered, so the call is closed and nothing further is processed.
	DecisionSurveyComplete
)

// Admission is the result of evaluating a message against call state.
type Admission struct {
	Decision   Decision
	Assignment domain.ModuleAssignment
	// NewCall reports whether this message opened a fresh call.
	NewCall bool
	// RemindSurvey is set when the message arrived on a thread without an
	// evaluation record while a call is open elsewhere: the adviser should
	// be nudged to close the open call and its survey.
	RemindSurvey bool
}

// EvaluationGate decides, per message, whether a call is already active and
// which evaluation modules apply. It is the only writer of new evaluation
// records.
type EvaluationGate struct {
	sessions    domain.SessionRepository
	evaluations domain.EvaluationRepository
	modules     policy.ModulePolicy
	now         func() time.Time
}

// NewEvaluationGate creates a new gate
func NewEvaluationGate(sessions domain.SessionRepository, evaluations domain.EvaluationRepository, modules policy.ModulePolicy) *EvaluationGate {
	return &EvaluationGate{
		sessions:    sessions,
		evaluations: evaluations,
		modules:     modules,
		now:         time.Now,
	}
}

// Admit evaluates one inbound message. A user with no active call gets a
// fresh module assignment and a new evaluation record; an active call reuses
// its existing assignment unless the survey has already been completed.
func (g *EvaluationGate) Admit(ctx context.Context, msg domain.UserMessage) (*Admission, error) {
	session, err := g.sessions.Get(ctx, msg.UserEmail)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	if session != nil && session.ActiveCall {
		record, err := g.evaluations.Get(ctx, msg.ThreadID)
		if err == nil {
			if len(record.SurveyResponses) > 0 {
				return &Admission{Decision: DecisionSurveyComplete}, nil
			}
			return &Admission{Decision: DecisionProceed, Assignment: record.Assignment}, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("failed to load evaluation record: %w", err)
		}
		// Active call but no record for this thread: the session still holds
		// the call's assignment, reuse it rather than opening a second call.
		return &Admission{Decision: DecisionProceed, Assignment: session.Assignment, RemindSurvey: true}, nil
	}

	assignment, err := g.modules.Assign(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("failed to assign evaluation modules: %w", err)
	}

	start := g.now()
	record := &domain.EvaluationRecord{
		ThreadID:   msg.ThreadID,
		CallStart:  start,
		Assignment: assignment,
	}
	if err := g.evaluations.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create evaluation record: %w", err)
	}
	if err := g.sessions.AssignCall(ctx, msg.UserEmail, msg.ThreadID, start, assignment); err != nil {
		return nil, fmt.Errorf("failed to open call: %w", err)
	}

	log.Info().Str("user", msg.UserEmail).Str("thread_id", msg.ThreadID).Msg("opened new call")

	return &Admission{Decision: DecisionProceed, Assignment: assignment, NewCall: true}, nil
}
