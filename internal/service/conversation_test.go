package service

import (
	"context"
	"errors"
	"testing"

	"github.com/advicehub/counsel/internal/chat"
	"github.com/advicehub/counsel/internal/domain"
	"github.com/advicehub/counsel/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type conversationFixture struct {
	sessions    *MockSessionRepository
	evaluations *MockEvaluationRepository
	modules     *MockModulePolicy
	messages    *MockMessageRepository
	responses   *MockResponseRepository
	provider    *MockLLMProvider
	enrolment   *MockEnrolment
	user        *MockSurface
	supervisor  *MockSurface
	sleeper     *MockSleeper
	service     *ConversationService
}

func newConversationFixture() *conversationFixture {
	f := &conversationFixture{
		sessions:    new(MockSessionRepository),
		evaluations: new(MockEvaluationRepository),
		modules:     new(MockModulePolicy),
		messages:    new(MockMessageRepository),
		responses:   new(MockResponseRepository),
		provider:    new(MockLLMProvider),
		enrolment:   new(MockEnrolment),
		user:        new(MockSurface),
		supervisor:  new(MockSurface),
		sleeper:     new(MockSleeper),
	}

	f.provider.On("Name").Return("mock")
	f.provider.On("IsConfigured").Return(true)
	router := llm.NewRouter("mock")
	router.RegisterProvider(f.provider)

	gate := NewEvaluationGate(f.sessions, f.evaluations, f.modules)
	survey := NewSurveyGate(f.sessions, f.evaluations, new(MockSurveyPolicy), f.user)
	f.service = NewConversationService(
		gate,
		NewStreamAggregator(0),
		DefaultRetryPolicy(),
		f.sleeper,
		f.messages,
		f.responses,
		router,
		f.enrolment,
		f.user,
		f.supervisor,
		survey,
	)
	return f
}

// admitNewCall stubs the gate stores so the message opens a fresh call.
func (f *conversationFixture) admitNewCall(msg domain.UserMessage, assignment domain.ModuleAssignment) {
	f.sessions.On("Get", mock.Anything, msg.UserEmail).Return(nil, domain.ErrNotFound)
	f.modules.On("Assign", mock.Anything, msg).Return(assignment, nil)
	f.evaluations.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.sessions.On("AssignCall", mock.Anything, msg.UserEmail, msg.ThreadID, mock.Anything, assignment).Return(nil)
}

func TestConversationHappyPath(t *testing.T) {
	f := newConversationFixture()
	msg := testMessage()
	answer := "Your client can claim Universal Credit online; the claim starts from the submission date."

	f.admitNewCall(msg, testAssignment())
	f.messages.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.user.On("Update", mock.Anything, msg.SpaceID, msg.MessageID, mock.Anything).Return(nil)

	f.enrolment.On("SupervisorSpace", mock.Anything, msg.UserEmail).Return("space-sup", nil)
	f.enrolment.On("OfficeRegions", mock.Anything, msg.UserEmail).Return([]string{"North West"}, nil)
	f.responses.On("ListByThread", mock.Anything, msg.ThreadID, chatHistoryLimit).Return([]domain.AnswerResponse{}, nil)

	f.provider.On("Stream", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return len(req.History) == 0 && req.Prompt != ""
	})).Return(llm.Stream(&fragmentStream{fragments: []llm.Fragment{
		{llm.FieldAnswer: answer},
	}}), nil)

	f.supervisor.On("SendNew", mock.Anything, "space-sup", "", mock.Anything).Return("sup-thread", "req-1", nil).Once()
	f.supervisor.On("SendNew", mock.Anything, "space-sup", "sup-thread", mock.Anything).Return("sup-thread", "ans-1", nil).Once()
	f.supervisor.On("Update", mock.Anything, "space-sup", "ans-1", mock.Anything).Return(nil)
	f.supervisor.On("Update", mock.Anything, "space-sup", "req-1", mock.Anything).Return(nil)

	f.responses.On("Create", mock.Anything, mock.MatchedBy(func(r *domain.AnswerResponse) bool {
		return r.ThreadID == msg.ThreadID &&
			r.Prompt == msg.Text &&
			r.Answer == answer &&
			r.RenderedCard != "" &&
			!r.Decided()
	})).Return(nil)
	f.responses.On("SetUserThanked", mock.Anything, msg.ThreadID, mock.Anything).Return(nil)
	f.responses.On("SetApproverReceived", mock.Anything, msg.ThreadID, mock.Anything).Return(nil)

	err := f.service.HandleMessage(context.Background(), msg)

	require.NoError(t, err)
	f.responses.AssertExpectations(t)
	f.supervisor.AssertExpectations(t)

	// The supervision card update must carry the decision buttons with the
	// routing parameters a click needs.
	var buttonsSeen bool
	for _, call := range f.supervisor.Calls {
		if call.Method != "Update" {
			continue
		}
		content, ok := call.Arguments.Get(3).(chat.Content)
		if !ok || content.Card == nil {
			continue
		}
		for _, section := range content.Card.Sections {
			for _, widget := range section.Widgets {
				for _, button := range widget.Buttons {
					if button.Action.Function == chat.FuncApprove {
						buttonsSeen = true
						assert.Equal(t, msg.ThreadID, button.Action.Parameters[chat.ParamThreadID])
						assert.Equal(t, "req-1", button.Action.Parameters[chat.ParamRequestMessageID])
						assert.Equal(t, msg.SpaceID, button.Action.Parameters[chat.ParamUserSpaceID])
					}
				}
			}
		}
	}
	assert.True(t, buttonsSeen, "supervision card with approval buttons was never sent")
}

func TestConversationSurveyAlreadyComplete(t *testing.T) {
	f := newConversationFixture()
	msg := testMessage()

	f.sessions.On("Get", mock.Anything, msg.UserEmail).Return(&domain.UserSession{
		Email:      msg.UserEmail,
		ActiveCall: true,
	}, nil)
	f.evaluations.On("Get", mock.Anything, msg.ThreadID).Return(&domain.EvaluationRecord{
		ThreadID:        msg.ThreadID,
		SurveyResponses: []domain.SurveyAnswer{{Question: "q", Response: "5"}},
	}, nil)
	f.user.On("Update", mock.Anything, msg.SpaceID, msg.MessageID, mock.MatchedBy(func(c chat.Content) bool {
		return c.Text != ""
	})).Return(nil)

	err := f.service.HandleMessage(context.Background(), msg)

	require.NoError(t, err)
	f.messages.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.provider.AssertNotCalled(t, "Stream", mock.Anything, mock.Anything)
}

func TestConversationControlGroup(t *testing.T) {
	f := newConversationFixture()
	msg := testMessage()
	assignment := domain.ModuleAssignment{
		ModulesUsed:          []domain.ModuleSpec{{Name: "randomised_control_trial"}},
		ContinueConversation: false,
		ControlGroupMessage:  "Please continue with your usual resources for this call.",
	}

	f.admitNewCall(msg, assignment)
	f.messages.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.user.On("Update", mock.Anything, msg.SpaceID, msg.MessageID, mock.Anything).Return(nil)
	// Control-group calls still get the call-completion prompt.
	f.user.On("SendNew", mock.Anything, msg.SpaceID, msg.ThreadID, mock.Anything).Return(msg.ThreadID, "confirm-1", nil)

	err := f.service.HandleMessage(context.Background(), msg)

	require.NoError(t, err)
	f.user.AssertExpectations(t)
	f.provider.AssertNotCalled(t, "Stream", mock.Anything, mock.Anything)
}

func TestConversationRemindsAboutOpenCallOnOtherThread(t *testing.T) {
	f := newConversationFixture()
	msg := testMessage()
	assignment := domain.ModuleAssignment{
		ModulesUsed:          []domain.ModuleSpec{{Name: "randomised_control_trial"}},
		ContinueConversation: false,
		ControlGroupMessage:  "Please continue with your usual resources for this call.",
	}

	f.sessions.On("Get", mock.Anything, msg.UserEmail).Return(&domain.UserSession{
		Email:          msg.UserEmail,
		ActiveCall:     true,
		ActiveThreadID: "thread-0",
		Assignment:     assignment,
	}, nil)
	f.evaluations.On("Get", mock.Anything, msg.ThreadID).Return(nil, domain.ErrNotFound)
	f.messages.On("Create", mock.Anything, mock.Anything).Return(nil)

	f.user.On("SendNew", mock.Anything, msg.SpaceID, msg.ThreadID, mock.MatchedBy(func(c chat.Content) bool {
		return c.Text != "" // the reminder notice
	})).Return(msg.ThreadID, "remind-1", nil).Once()
	f.user.On("Update", mock.Anything, msg.SpaceID, msg.MessageID, mock.Anything).Return(nil)
	f.user.On("SendNew", mock.Anything, msg.SpaceID, msg.ThreadID, mock.MatchedBy(func(c chat.Content) bool {
		return c.Card != nil // the call-completion prompt
	})).Return(msg.ThreadID, "confirm-1", nil).Once()

	err := f.service.HandleMessage(context.Background(), msg)

	require.NoError(t, err)
	f.user.AssertExpectations(t)
	f.modules.AssertNotCalled(t, "Assign", mock.Anything, mock.Anything)
}

func TestConversationModuleEndsInteraction(t *testing.T) {
	f := newConversationFixture()
	msg := testMessage()
	assignment := domain.ModuleAssignment{
		ContinueConversation: true,
		ModuleOutputs: map[string]domain.ModuleOutput{
			"triage": {"end_interaction": true},
		},
	}

	f.admitNewCall(msg, assignment)
	f.messages.On("Create", mock.Anything, mock.Anything).Return(nil)

	err := f.service.HandleMessage(context.Background(), msg)

	require.NoError(t, err)
	f.user.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.provider.AssertNotCalled(t, "Stream", mock.Anything, mock.Anything)
}

func TestConversationUnknownSupervisorSpaceIsFatal(t *testing.T) {
	f := newConversationFixture()
	msg := testMessage()

	f.admitNewCall(msg, testAssignment())
	f.messages.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.user.On("Update", mock.Anything, msg.SpaceID, msg.MessageID, mock.Anything).Return(nil)
	f.enrolment.On("SupervisorSpace", mock.Anything, msg.UserEmail).Return("", domain.ErrUnknownSupervisorSpace)

	err := f.service.HandleMessage(context.Background(), msg)

	require.ErrorIs(t, err, domain.ErrUnknownSupervisorSpace)
	f.provider.AssertNotCalled(t, "Stream", mock.Anything, mock.Anything)
	f.supervisor.AssertNotCalled(t, "SendNew", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestConversationExhaustsRetries(t *testing.T) {
	f := newConversationFixture()
	msg := testMessage()
	boom := errors.New("model overloaded")

	f.admitNewCall(msg, testAssignment())
	f.messages.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.user.On("Update", mock.Anything, msg.SpaceID, msg.MessageID, mock.Anything).Return(nil)
	f.enrolment.On("SupervisorSpace", mock.Anything, msg.UserEmail).Return("space-sup", nil)
	f.enrolment.On("OfficeRegions", mock.Anything, msg.UserEmail).Return([]string{"North West"}, nil)
	f.responses.On("ListByThread", mock.Anything, msg.ThreadID, chatHistoryLimit).Return([]domain.AnswerResponse{}, nil)
	f.supervisor.On("SendNew", mock.Anything, "space-sup", "", mock.Anything).Return("sup-thread", "req-1", nil)
	f.supervisor.On("Update", mock.Anything, "space-sup", "req-1", mock.Anything).Return(nil)
	f.provider.On("Stream", mock.Anything, mock.Anything).Return(nil, boom)
	f.sleeper.On("Sleep", mock.Anything, mock.Anything).Return(nil)

	err := f.service.HandleMessage(context.Background(), msg)

	var terminal *domain.TerminalGenerationError
	require.ErrorAs(t, err, &terminal)
	assert.Equal(t, 4, terminal.Attempts)
	f.provider.AssertNumberOfCalls(t, "Stream", 4)
	// The failed-request notice replaces the supervisor's pending status.
	f.supervisor.AssertCalled(t, "Update", mock.Anything, "space-sup", "req-1", mock.Anything)
	f.responses.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}
