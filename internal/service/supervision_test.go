package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/advicehub/counsel/internal/chat"
	"github.com/advicehub/counsel/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testAction() DecisionAction {
	return DecisionAction{
		ThreadID:             "thread-1",
		SupervisorSpaceID:    "space-sup",
		SupervisionMessageID: "sup-card-1",
		RequestMessageID:     "sup-req-1",
		UserSpaceID:          "space-user",
		UserMessageID:        "user-msg-1",
		UserEmail:            "adviser@example.org",
		ApproverEmail:        "supervisor@example.org",
		OccurredAt:           time.Now(),
	}
}

func testResponse(t *testing.T) *domain.AnswerResponse {
	t.Helper()
	card := chat.AnswerCard("You can apply online via GOV.UK.")
	rendered, err := json.Marshal(card)
	require.NoError(t, err)
	return &domain.AnswerResponse{
		ID:           uuid.New(),
		ThreadID:     "thread-1",
		Prompt:       "Can my client apply for Universal Credit?",
		Answer:       "You can apply online via GOV.UK.",
		RenderedCard: string(rendered),
	}
}

func newTestSurveyGate(user chat.Surface) *SurveyGate {
	policy := new(MockSurveyPolicy)
	return NewSurveyGate(new(MockSessionRepository), new(MockEvaluationRepository), policy, user)
}

func TestSupervisionApprove(t *testing.T) {
	responses := new(MockResponseRepository)
	user := new(MockSurface)
	supervisor := new(MockSurface)
	act := testAction()

	responses.On("GetLatestByThread", mock.Anything, act.ThreadID).Return(testResponse(t), nil)
	responses.On("RecordDecision", mock.Anything, mock.MatchedBy(func(d domain.ApprovalDecision) bool {
		return d.ThreadID == act.ThreadID && d.Approved && d.ApproverEmail == act.ApproverEmail
	})).Return(nil)
	user.On("Update", mock.Anything, act.UserSpaceID, act.UserMessageID, mock.Anything).Return(nil)
	user.On("SendNew", mock.Anything, act.UserSpaceID, act.ThreadID, mock.Anything).Return("thread-1", "confirm-1", nil)
	supervisor.On("Update", mock.Anything, act.SupervisorSpaceID, act.RequestMessageID, mock.Anything).Return(nil)
	supervisor.On("Update", mock.Anything, act.SupervisorSpaceID, act.SupervisionMessageID, mock.Anything).Return(nil)

	workflow := NewSupervisionWorkflow(responses, user, supervisor, newTestSurveyGate(user))
	err := workflow.Approve(context.Background(), act)

	require.NoError(t, err)
	responses.AssertExpectations(t)
	user.AssertExpectations(t)
	supervisor.AssertExpectations(t)
}

func TestSupervisionApproveAlreadyDecided(t *testing.T) {
	responses := new(MockResponseRepository)
	user := new(MockSurface)
	supervisor := new(MockSurface)
	act := testAction()

	responses.On("GetLatestByThread", mock.Anything, act.ThreadID).Return(testResponse(t), nil)
	responses.On("RecordDecision", mock.Anything, mock.Anything).Return(domain.ErrAlreadyDecided)

	workflow := NewSupervisionWorkflow(responses, user, supervisor, newTestSurveyGate(user))
	err := workflow.Approve(context.Background(), act)

	require.ErrorIs(t, err, domain.ErrAlreadyDecided)
	// A duplicate click must not touch any surface.
	user.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	supervisor.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSupervisionApproveDeliveryFails(t *testing.T) {
	responses := new(MockResponseRepository)
	user := new(MockSurface)
	supervisor := new(MockSurface)
	act := testAction()
	boom := errors.New("chat unavailable")

	responses.On("GetLatestByThread", mock.Anything, act.ThreadID).Return(testResponse(t), nil)
	responses.On("RecordDecision", mock.Anything, mock.Anything).Return(nil)
	user.On("Update", mock.Anything, act.UserSpaceID, act.UserMessageID, mock.Anything).Return(boom)

	workflow := NewSupervisionWorkflow(responses, user, supervisor, newTestSurveyGate(user))
	err := workflow.Approve(context.Background(), act)

	require.ErrorIs(t, err, boom)
	user.AssertNotCalled(t, "SendNew", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSupervisionReject(t *testing.T) {
	responses := new(MockResponseRepository)
	user := new(MockSurface)
	supervisor := new(MockSurface)
	act := testAction()
	feedback := "The answer misses the habitual residence test."

	responses.On("GetLatestByThread", mock.Anything, act.ThreadID).Return(testResponse(t), nil)
	responses.On("RecordDecision", mock.Anything, mock.MatchedBy(func(d domain.ApprovalDecision) bool {
		return !d.Approved && d.SupervisorMessage == feedback
	})).Return(nil)
	user.On("Update", mock.Anything, act.UserSpaceID, act.UserMessageID, mock.MatchedBy(func(c chat.Content) bool {
		return c.Card != nil
	})).Return(nil)
	user.On("SendNew", mock.Anything, act.UserSpaceID, act.ThreadID, mock.Anything).Return("thread-1", "confirm-1", nil)
	supervisor.On("Update", mock.Anything, act.SupervisorSpaceID, act.RequestMessageID, mock.Anything).Return(nil)
	supervisor.On("Update", mock.Anything, act.SupervisorSpaceID, act.SupervisionMessageID, mock.Anything).Return(nil)

	workflow := NewSupervisionWorkflow(responses, user, supervisor, newTestSurveyGate(user))
	err := workflow.Reject(context.Background(), act, feedback)

	require.NoError(t, err)
	responses.AssertExpectations(t)
}

func TestSupervisionRejectRequiresFeedback(t *testing.T) {
	responses := new(MockResponseRepository)
	workflow := NewSupervisionWorkflow(responses, new(MockSurface), new(MockSurface), newTestSurveyGate(new(MockSurface)))

	err := workflow.Reject(context.Background(), testAction(), "")

	require.Error(t, err)
	responses.AssertNotCalled(t, "RecordDecision", mock.Anything, mock.Anything)
}

func TestSupervisionArtifactFallsBackToAnswer(t *testing.T) {
	responses := new(MockResponseRepository)
	user := new(MockSurface)
	supervisor := new(MockSurface)
	act := testAction()

	broken := testResponse(t)
	broken.RenderedCard = "{not json"

	responses.On("GetLatestByThread", mock.Anything, act.ThreadID).Return(broken, nil)
	responses.On("RecordDecision", mock.Anything, mock.Anything).Return(nil)
	user.On("Update", mock.Anything, act.UserSpaceID, act.UserMessageID, mock.MatchedBy(func(c chat.Content) bool {
		if c.Card == nil || len(c.Card.Sections) == 0 {
			return false
		}
		w := c.Card.Sections[0].Widgets
		return len(w) > 0 && w[0].TextParagraph == broken.Answer
	})).Return(nil)
	user.On("SendNew", mock.Anything, act.UserSpaceID, act.ThreadID, mock.Anything).Return("thread-1", "confirm-1", nil)
	supervisor.On("Update", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	workflow := NewSupervisionWorkflow(responses, user, supervisor, newTestSurveyGate(user))
	err := workflow.Approve(context.Background(), act)

	require.NoError(t, err)
	user.AssertExpectations(t)
}
