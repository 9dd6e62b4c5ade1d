package service

import (
	"context"
	"io"
	"time"

	"github.com/advicehub/counsel/internal/chat"
	"github.com/advicehub/counsel/internal/domain"
	"github.com/advicehub/counsel/internal/llm"
	"github.com/advicehub/counsel/internal/policy"
	"github.com/stretchr/testify/mock"
)

// MockMessageRepository mocks the MessageRepository interface
type MockMessageRepository struct {
	mock.Mock
}

func (m *MockMessageRepository) Create(ctx context.Context, message *domain.UserMessage) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func (m *MockMessageRepository) ListByThread(ctx context.Context, threadID string, limit int) ([]domain.UserMessage, error) {
	args := m.Called(ctx, threadID, limit)
	return args.Get(0).([]domain.UserMessage), args.Error(1)
}

// MockResponseRepository mocks the ResponseRepository interface
type MockResponseRepository struct {
	mock.Mock
}

func (m *MockResponseRepository) Create(ctx context.Context, response *domain.AnswerResponse) error {
	args := m.Called(ctx, response)
	return args.Error(0)
}

func (m *MockResponseRepository) GetLatestByThread(ctx context.Context, threadID string) (*domain.AnswerResponse, error) {
	args := m.Called(ctx, threadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AnswerResponse), args.Error(1)
}

func (m *MockResponseRepository) ListByThread(ctx context.Context, threadID string, limit int) ([]domain.AnswerResponse, error) {
	args := m.Called(ctx, threadID, limit)
	return args.Get(0).([]domain.AnswerResponse), args.Error(1)
}

func (m *MockResponseRepository) SetUserThanked(ctx context.Context, threadID string, at time.Time) error {
	args := m.Called(ctx, threadID, at)
	return args.Error(0)
}

func (m *MockResponseRepository) SetApproverReceived(ctx context.Context, threadID string, at time.Time) error {
	args := m.Called(ctx, threadID, at)
	return args.Error(0)
}

func (m *MockResponseRepository) RecordDecision(ctx context.Context, decision domain.ApprovalDecision) error {
	args := m.Called(ctx, decision)
	return args.Error(0)
}

// MockSessionRepository mocks the SessionRepository interface
type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) Get(ctx context.Context, email string) (*domain.UserSession, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserSession), args.Error(1)
}

func (m *MockSessionRepository) Register(ctx context.Context, session *domain.UserSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockSessionRepository) Remove(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

func (m *MockSessionRepository) ListBySpace(ctx context.Context, supervisorSpaceID string) ([]domain.UserSession, error) {
	args := m.Called(ctx, supervisorSpaceID)
	return args.Get(0).([]domain.UserSession), args.Error(1)
}

func (m *MockSessionRepository) AssignCall(ctx context.Context, email, threadID string, start time.Time, assignment domain.ModuleAssignment) error {
	args := m.Called(ctx, email, threadID, start, assignment)
	return args.Error(0)
}

func (m *MockSessionRepository) EndCall(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

// MockEvaluationRepository mocks the EvaluationRepository interface
type MockEvaluationRepository struct {
	mock.Mock
}

func (m *MockEvaluationRepository) Create(ctx context.Context, record *domain.EvaluationRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockEvaluationRepository) Get(ctx context.Context, threadID string) (*domain.EvaluationRecord, error) {
	args := m.Called(ctx, threadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.EvaluationRecord), args.Error(1)
}

func (m *MockEvaluationRepository) MarkCallComplete(ctx context.Context, threadID string) error {
	args := m.Called(ctx, threadID)
	return args.Error(0)
}

func (m *MockEvaluationRepository) AppendSurveyAnswer(ctx context.Context, threadID string, answer domain.SurveyAnswer) error {
	args := m.Called(ctx, threadID, answer)
	return args.Error(0)
}

// MockSurface mocks chat.Surface
type MockSurface struct {
	mock.Mock
}

func (m *MockSurface) SendNew(ctx context.Context, spaceID, threadID string, content chat.Content) (string, string, error) {
	args := m.Called(ctx, spaceID, threadID, content)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *MockSurface) Update(ctx context.Context, spaceID, messageID string, content chat.Content) error {
	args := m.Called(ctx, spaceID, messageID, content)
	return args.Error(0)
}

func (m *MockSurface) Delete(ctx context.Context, spaceID, messageID string) error {
	args := m.Called(ctx, spaceID, messageID)
	return args.Error(0)
}

// MockLLMProvider mocks llm.Provider
type MockLLMProvider struct {
	mock.Mock
}

func (m *MockLLMProvider) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockLLMProvider) DefaultModel() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockLLMProvider) IsConfigured() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockLLMProvider) Stream(ctx context.Context, req llm.Request) (llm.Stream, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(llm.Stream), args.Error(1)
}

// MockModulePolicy mocks policy.ModulePolicy
type MockModulePolicy struct {
	mock.Mock
}

func (m *MockModulePolicy) Assign(ctx context.Context, msg domain.UserMessage) (domain.ModuleAssignment, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(domain.ModuleAssignment), args.Error(1)
}

// MockSurveyPolicy mocks policy.SurveyPolicy
type MockSurveyPolicy struct {
	mock.Mock
}

func (m *MockSurveyPolicy) IsRequired(ctx context.Context, user string) (bool, error) {
	args := m.Called(ctx, user)
	return args.Bool(0), args.Error(1)
}

func (m *MockSurveyPolicy) QuestionsFor(ctx context.Context, user string) ([]policy.SurveyQuestion, error) {
	args := m.Called(ctx, user)
	return args.Get(0).([]policy.SurveyQuestion), args.Error(1)
}

// MockEnrolment mocks policy.Enrolment
type MockEnrolment struct {
	mock.Mock
}

func (m *MockEnrolment) SupervisorSpace(ctx context.Context, email string) (string, error) {
	args := m.Called(ctx, email)
	return args.String(0), args.Error(1)
}

func (m *MockEnrolment) OfficeRegions(ctx context.Context, email string) ([]string, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockEnrolment) Register(ctx context.Context, email, role, supervisorSpaceID string) error {
	args := m.Called(ctx, email, role, supervisorSpaceID)
	return args.Error(0)
}

func (m *MockEnrolment) Remove(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

func (m *MockEnrolment) ListSpaceUsers(ctx context.Context, supervisorSpaceID string) ([]domain.UserSession, error) {
	args := m.Called(ctx, supervisorSpaceID)
	return args.Get(0).([]domain.UserSession), args.Error(1)
}

// MockSleeper mocks Sleeper, recording waits instead of sleeping.
type MockSleeper struct {
	mock.Mock
}

func (m *MockSleeper) Sleep(ctx context.Context, d time.Duration) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

// fragmentStream replays a scripted fragment sequence as an llm.Stream.
type fragmentStream struct {
	fragments []llm.Fragment
	errs      []error
	pos       int
	closed    bool
}

func (s *fragmentStream) Next() (llm.Fragment, error) {
	if s.pos < len(s.errs) && s.errs[s.pos] != nil {
		err := s.errs[s.pos]
		s.pos++
		return nil, err
	}
	if s.pos >= len(s.fragments) {
		return nil, io.EOF
	}
	f := s.fragments[s.pos]
	s.pos++
	return f, nil
}

func (s *fragmentStream) Close() error {
	s.closed = true
	return nil
}

// recordingSink captures interim answer callbacks in order.
type recordingSink struct {
	started  []string
	progress []string
	err      error
}

func (s *recordingSink) AnswerStarted(_ context.Context, answer string) error {
	s.started = append(s.started, answer)
	return s.err
}

func (s *recordingSink) AnswerProgress(_ context.Context, answer string) error {
	s.progress = append(s.progress, answer)
	return s.err
}

// recordingNotifier counts retry notifications.
type recordingNotifier struct {
	retries int
	failed  int
}

func (n *recordingNotifier) Retrying(context.Context) error {
	n.retries++
	return nil
}

func (n *recordingNotifier) Failed(context.Context) error {
	n.failed++
	return nil
}
