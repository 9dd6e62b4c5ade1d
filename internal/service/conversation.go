package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/advicehub/counsel/internal/chat"
	"github.com/advicehub/counsel/internal/domain"
	"github.com/advicehub/counsel/internal/llm"
	"github.com/advicehub/counsel/internal/policy"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const chatHistoryLimit = 10

// ConversationService runs the per-message pipeline: admission, answer
// generation under retry, and hand-off to supervision. Each thread is an
// independent unit of work; the only shared state is the keyed store rows.
type ConversationService struct {
	gate       *EvaluationGate
	aggregator *StreamAggregator
	retry      RetryPolicy
	sleeper    Sleeper
	messages   domain.MessageRepository
	responses  domain.ResponseRepository
	llmRouter  *llm.Router
	enrolment  policy.Enrolment
	user       chat.Surface
	supervisor chat.Surface
	survey     *SurveyGate
	now        func() time.Time
}

// NewConversationService creates a new conversation service
func NewConversationService(
	gate *EvaluationGate,
	aggregator *StreamAggregator,
	retry RetryPolicy,
	sleeper Sleeper,
	messages domain.MessageRepository,
	responses domain.ResponseRepository,
	llmRouter *llm.Router,
	enrolment policy.Enrolment,
	user chat.Surface,
	supervisor chat.Surface,
	survey *SurveyGate,
) *ConversationService {
	return &ConversationService{
		gate:       gate,
		aggregator: aggregator,
		retry:      retry,
		sleeper:    sleeper,
		messages:   messages,
		responses:  responses,
		llmRouter:  llmRouter,
		enrolment:  enrolment,
		user:       user,
		supervisor: supervisor,
		survey:     survey,
		now:        time.Now,
	}
}

// HandleMessage processes one inbound adviser message end to end, up to the
// point where the answer awaits a supervisor decision.
func (s *ConversationService) HandleMessage(ctx context.Context, msg domain.UserMessage) error {
	admission, err := s.gate.Admit(ctx, msg)
	if err != nil {
		return err
	}

	if admission.Decision == DecisionSurveyComplete {
		// Closed call: notify and stop. The message is not stored and no
		// answer is generated.
		if err := s.user.Update(ctx, msg.SpaceID, msg.MessageID, chat.SurveyAlreadyCompleted()); err != nil {
			log.Error().Err(err).Msg("failed to send survey-complete notice")
		}
		return nil
	}

	if admission.RemindSurvey {
		// The open call lives on another thread; nudge the adviser to close
		// it, then carry on with its assignment here.
		if _, _, err := s.user.SendNew(ctx, msg.SpaceID, msg.ThreadID, chat.ExistingCallReminder()); err != nil {
			log.Error().Err(err).Msg("failed to send existing-call reminder")
		}
	}

	if err := s.messages.Create(ctx, &msg); err != nil {
		// Message storage is best-effort; the conversation continues.
		log.Error().Err(err).Msg("failed to store user message")
	}

	if !admission.Assignment.ContinueConversation {
		if err := s.user.Update(ctx, msg.SpaceID, msg.MessageID, chat.ControlGroup(admission.Assignment.ControlGroupMessage)); err != nil {
			log.Error().Err(err).Msg("failed to send control-group notice")
		}
		return s.survey.OfferCompletion(ctx, msg.SpaceID, msg.ThreadID)
	}

	if admission.Assignment.EndsInteraction() {
		log.Info().Str("thread_id", msg.ThreadID).Msg("module ended interaction")
		return nil
	}

	if err := s.user.Update(ctx, msg.SpaceID, msg.MessageID, chat.Composing()); err != nil {
		log.Error().Err(err).Msg("failed to send composing notice")
	}

	return s.generate(ctx, msg)
}

// generate streams an answer under the retry policy and hands the finalized
// result to the supervision surfaces.
func (s *ConversationService) generate(ctx context.Context, msg domain.UserMessage) error {
	// Resolve the supervisor space before anything is generated; an adviser
	// without one is a policy violation and never retried.
	space, err := s.enrolment.SupervisorSpace(ctx, msg.UserEmail)
	if err != nil {
		return err
	}

	provider, err := s.llmRouter.GetProvider("")
	if err != nil {
		return err
	}

	history := s.chatHistory(ctx, msg.ThreadID)

	regions, err := s.enrolment.OfficeRegions(ctx, msg.UserEmail)
	if err != nil {
		log.Warn().Err(err).Str("user", msg.UserEmail).Msg("failed to resolve office regions")
	}

	promptAt := s.now()
	prompt := llm.BuildPrompt(llm.PromptInput{
		Question:      msg.Text,
		OfficeRegions: regions,
		Now:           promptAt,
	})

	supThread, requestMessageID, err := s.supervisor.SendNew(ctx, space, "", chat.SupervisorRequestPending(msg.UserEmail, msg.Text))
	if err != nil {
		return fmt.Errorf("failed to open supervision request: %w", err)
	}

	pipeline := &answerPipeline{
		svc:              s,
		msg:              msg,
		space:            space,
		supThread:        supThread,
		requestMessageID: requestMessageID,
	}

	result, err := s.retry.Run(ctx, s.sleeper, pipeline, func(ctx context.Context) (*StreamResult, error) {
		stream, err := provider.Stream(ctx, llm.Request{Prompt: prompt, History: history})
		if err != nil {
			return nil, err
		}
		defer stream.Close()
		return s.aggregator.Consume(ctx, stream, pipeline)
	})
	if err != nil {
		return err
	}
	answerAt := s.now()

	card := chat.AnswerCard(result.Answer)
	rendered, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("failed to serialize answer card: %w", err)
	}

	// Settle the supervisor-side answer card to its final form, without the
	// streaming marker.
	if pipeline.answerMessageID == "" {
		_, id, err := s.supervisor.SendNew(ctx, space, supThread, chat.CardContent(card))
		if err != nil {
			return fmt.Errorf("failed to send answer to supervisor: %w", err)
		}
		pipeline.answerMessageID = id
	} else if err := s.supervisor.Update(ctx, space, pipeline.answerMessageID, chat.CardContent(card)); err != nil {
		log.Error().Err(err).Msg("failed to finalize supervisor answer card")
	}

	response := &domain.AnswerResponse{
		ID:           uuid.New(),
		MessageID:    msg.MessageID,
		ThreadID:     msg.ThreadID,
		Prompt:       msg.Text,
		Answer:       result.Answer,
		RenderedCard: string(rendered),
		PromptAt:     promptAt,
		AnswerAt:     answerAt,
	}
	if err := s.responses.Create(ctx, response); err != nil {
		return fmt.Errorf("failed to store response: %w", err)
	}

	if err := s.user.Update(ctx, msg.SpaceID, msg.MessageID, chat.AwaitingApproval()); err != nil {
		log.Error().Err(err).Msg("failed to send awaiting-approval notice")
	}
	if err := s.responses.SetUserThanked(ctx, msg.ThreadID, s.now()); err != nil {
		log.Error().Err(err).Msg("failed to record thanked timestamp")
	}

	if err := s.supervisor.Update(ctx, space, requestMessageID, chat.SupervisorRequestAwaiting(msg.UserEmail, msg.Text)); err != nil {
		log.Error().Err(err).Msg("failed to update supervisor request status")
	}

	parameters := map[string]string{
		chat.ParamThreadID:         msg.ThreadID,
		chat.ParamUserSpaceID:      msg.SpaceID,
		chat.ParamUserMessageID:    msg.MessageID,
		chat.ParamRequestMessageID: requestMessageID,
		chat.ParamUserEmail:        msg.UserEmail,
	}
	supervisionCard := card.Append(chat.ApprovalButtonsSection(parameters))
	if err := s.supervisor.Update(ctx, space, pipeline.answerMessageID, chat.CardContent(supervisionCard)); err != nil {
		return fmt.Errorf("failed to send supervision card: %w", err)
	}

	if err := s.responses.SetApproverReceived(ctx, msg.ThreadID, s.now()); err != nil {
		log.Error().Err(err).Msg("failed to record approver-received timestamp")
	}

	log.Info().
		Str("thread_id", msg.ThreadID).
		Str("user", msg.UserEmail).
		Bool("truncated", result.Truncated).
		Msg("answer awaiting supervisor approval")

	return nil
}

// chatHistory returns past prompt/answer pairs for the thread, oldest first.
// History is advisory; a storage failure degrades to an empty history.
func (s *ConversationService) chatHistory(ctx context.Context, threadID string) []llm.Exchange {
	responses, err := s.responses.ListByThread(ctx, threadID, chatHistoryLimit)
	if err != nil {
		log.Error().Err(err).Str("thread_id", threadID).Msg("failed to fetch chat history")
		return nil
	}
	history := make([]llm.Exchange, 0, len(responses))
	for _, r := range responses {
		history = append(history, llm.Exchange{Prompt: r.Prompt, Answer: r.Answer})
	}
	return history
}

// answerPipeline carries the per-message surface state across the stream
// sink and retry notifier callbacks.
type answerPipeline struct {
	svc              *ConversationService
	msg              domain.UserMessage
	space            string
	supThread        string
	requestMessageID string
	answerMessageID  string
}

// AnswerStarted posts the streaming answer card into the supervisor thread
// and tells the adviser a supervisor is now reviewing.
func (p *answerPipeline) AnswerStarted(ctx context.Context, answer string) error {
	card := chat.AnswerCard(answer).Append(chat.StreamingSection())
	if p.answerMessageID == "" {
		_, id, err := p.svc.supervisor.SendNew(ctx, p.space, p.supThread, chat.CardContent(card))
		if err != nil {
			return err
		}
		p.answerMessageID = id
	} else if err := p.svc.supervisor.Update(ctx, p.space, p.answerMessageID, chat.CardContent(card)); err != nil {
		return err
	}
	return p.svc.user.Update(ctx, p.msg.SpaceID, p.msg.MessageID, chat.SupervisorReviewing())
}

// AnswerProgress refreshes the streaming answer card with the accumulated
// text.
func (p *answerPipeline) AnswerProgress(ctx context.Context, answer string) error {
	card := chat.AnswerCard(answer).Append(chat.StreamingSection())
	return p.svc.supervisor.Update(ctx, p.space, p.answerMessageID, chat.CardContent(card))
}

// Retrying tells the adviser the answer is taking longer than usual.
func (p *answerPipeline) Retrying(ctx context.Context) error {
	return p.svc.user.Update(ctx, p.msg.SpaceID, p.msg.MessageID, chat.ComposingRetry())
}

// Failed replaces both pending notices with terminal failure messages.
func (p *answerPipeline) Failed(ctx context.Context) error {
	if err := p.svc.user.Update(ctx, p.msg.SpaceID, p.msg.MessageID, chat.RequestFailed()); err != nil {
		return err
	}
	return p.svc.supervisor.Update(ctx, p.space, p.requestMessageID, chat.SupervisorRequestFailed(p.msg.UserEmail, p.msg.Text))
}
