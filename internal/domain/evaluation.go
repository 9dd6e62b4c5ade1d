package domain

import (
	"context"
	"time"
)

// ModuleSpec describes one evaluation module applied to a call.
type ModuleSpec struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ModuleOutput is the opaque payload a module produced when it ran.
type ModuleOutput map[string]any

// ModuleAssignment is the evaluation-module configuration fixed at call start
// and reused for every later message in the same call.
type ModuleAssignment struct {
	ModulesUsed          []ModuleSpec            `json:"modules_used"`
	ModuleOutputs        map[string]ModuleOutput `json:"module_outputs"`
	ContinueConversation bool                    `json:"continue_conversation"`
	ControlGroupMessage  string                  `json:"control_group_message,omitempty"`
}

// EndsInteraction reports whether any module output carries the
// end_interaction flag, in which case processing stops silently.
func (a ModuleAssignment) EndsInteraction() bool {
	for _, out := range a.ModuleOutputs {
		if v, ok := out["end_interaction"].(bool); ok && v {
			return true
		}
	}
	return false
}

// SurveyAnswer is one recorded post-call survey response.
type SurveyAnswer struct {
	Question string `json:"question"`
	Response string `json:"response"`
}

// EvaluationRecord tracks one call: exactly one record exists per thread for
// the lifetime of the call.
type EvaluationRecord struct {
	ThreadID        string           `json:"thread_id"`
	CallStart       time.Time        `json:"call_start"`
	Assignment      ModuleAssignment `json:"assignment"`
	CallComplete    bool             `json:"call_complete"`
	SurveyResponses []SurveyAnswer   `json:"survey_responses,omitempty"`
}

// EvaluationRepository defines the interface for evaluation-record storage.
// CallComplete transitions and survey appends must be linearized per thread;
// implementations use conditional single-statement updates.
type EvaluationRepository interface {
	Create(ctx context.Context, record *EvaluationRecord) error
	Get(ctx context.Context, threadID string) (*EvaluationRecord, error)
	// MarkCallComplete sets callComplete exactly once; completing an already
	// complete call is a no-op.
	MarkCallComplete(ctx context.Context, threadID string) error
	AppendSurveyAnswer(ctx context.Context, threadID string, answer SurveyAnswer) error
}
