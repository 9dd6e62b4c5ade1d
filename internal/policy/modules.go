package policy

import (
	"context"
	"math/rand"
	"sync"

	"github.com/advicehub/counsel/internal/domain"
)

// ModulePolicy assigns the evaluation-module configuration for a new call.
// It is invoked exactly once per call, on the first message.
type ModulePolicy interface {
	Assign(ctx context.Context, msg domain.UserMessage) (domain.ModuleAssignment, error)
}

// ControlGroupPolicy is a randomised-control-trial assignment: a fraction of
// new calls is placed in a control group whose conversation is not continued.
type ControlGroupPolicy struct {
	split   float64
	message string

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewControlGroupPolicy creates a policy that assigns the control group with
// probability split.
func NewControlGroupPolicy(split float64, message string, seed int64) *ControlGroupPolicy {
	return &ControlGroupPolicy{
		split:   split,
		message: message,
		rnd:     rand.New(rand.NewSource(seed)),
	}
}

// Assign draws the group for a new call
func (p *ControlGroupPolicy) Assign(ctx context.Context, msg domain.UserMessage) (domain.ModuleAssignment, error) {
	p.mu.Lock()
	draw := p.rnd.Float64()
	p.mu.Unlock()

	control := draw < p.split

	assignment := domain.ModuleAssignment{
		ModulesUsed: []domain.ModuleSpec{{
			Name: "randomised_control_trial",
			Arguments: map[string]any{
				"split": p.split,
			},
		}},
		ModuleOutputs: map[string]domain.ModuleOutput{
			"randomised_control_trial": {
				"control_group": control,
			},
		},
		ContinueConversation: !control,
	}
	if control {
		assignment.ControlGroupMessage = p.message
	}
	return assignment, nil
}

// PassthroughPolicy assigns no modules; every call proceeds to generation.
type PassthroughPolicy struct{}

// Assign returns an empty always-continue assignment
func (PassthroughPolicy) Assign(ctx context.Context, msg domain.UserMessage) (domain.ModuleAssignment, error) {
	return domain.ModuleAssignment{ContinueConversation: true}, nil
}
