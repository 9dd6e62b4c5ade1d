package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/advicehub/counsel/internal/api/response"
	"github.com/advicehub/counsel/internal/chat"
	"github.com/advicehub/counsel/internal/domain"
	"github.com/advicehub/counsel/internal/policy"
	"github.com/advicehub/counsel/internal/repository/redis"
	"github.com/advicehub/counsel/internal/service"
	"github.com/rs/zerolog/log"
)

// chatEvent is the subset of a Google Chat event the webhook acts on.
type chatEvent struct {
	Type      string       `json:"type"`
	EventTime string       `json:"eventTime"`
	Message   eventMessage `json:"message"`
	User      eventUser    `json:"user"`
	Space     eventSpace   `json:"space"`
	Common    eventCommon  `json:"common"`
}

type eventMessage struct {
	Name       string      `json:"name"`
	Text       string      `json:"text"`
	CreateTime string      `json:"createTime"`
	Sender     eventUser   `json:"sender"`
	Thread     eventThread `json:"thread"`
}

type eventUser struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

type eventThread struct {
	Name string `json:"name"`
}

type eventSpace struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type eventCommon struct {
	InvokedFunction string               `json:"invokedFunction"`
	Parameters      map[string]string    `json:"parameters"`
	FormInputs      map[string]formInput `json:"formInputs"`
}

type formInput struct {
	StringInputs struct {
		Value []string `json:"value"`
	} `json:"stringInputs"`
}

// WebhookHandler receives Google Chat events from both the adviser-facing
// and supervisor-facing apps and routes them to the services.
type WebhookHandler struct {
	conversation *service.ConversationService
	supervision  *service.SupervisionWorkflow
	survey       *service.SurveyGate
	pii          policy.PIIDetector
	limiter      *redis.RateLimiter
	user         chat.Surface
	timeout      time.Duration
}

// NewWebhookHandler creates a new webhook handler. limiter may be nil when
// Redis is disabled; rate limiting is then skipped.
func NewWebhookHandler(conversation *service.ConversationService, supervision *service.SupervisionWorkflow, survey *service.SurveyGate, pii policy.PIIDetector, limiter *redis.RateLimiter, user chat.Surface, timeout time.Duration) *WebhookHandler {
	return &WebhookHandler{
		conversation: conversation,
		supervision:  supervision,
		survey:       survey,
		pii:          pii,
		limiter:      limiter,
		user:         user,
		timeout:      timeout,
	}
}

// Handle dispatches one Google Chat event.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		response.BadRequest(w, "invalid event payload")
		return
	}

	var ev chatEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		response.BadRequest(w, "invalid event payload")
		return
	}

	switch ev.Type {
	case "ADDED_TO_SPACE":
		chatReply(w, map[string]any{"text": "Thank you for adding me. Send a client question to get started."})
	case "REMOVED_FROM_SPACE":
		chatReply(w, map[string]any{})
	case "MESSAGE":
		h.handleMessage(r.Context(), w, ev, raw)
	case "CARD_CLICKED":
		h.handleCardClick(r.Context(), w, ev)
	default:
		log.Warn().Str("type", ev.Type).Msg("ignoring unknown chat event type")
		chatReply(w, map[string]any{})
	}
}

func (h *WebhookHandler) handleMessage(ctx context.Context, w http.ResponseWriter, ev chatEvent, raw json.RawMessage) {
	sender := ev.Message.Sender.Email
	if sender == "" {
		response.BadRequest(w, "event carries no sender")
		return
	}

	if h.limiter != nil {
		allowed, _, resetTime, err := h.limiter.Allow(ctx, sender)
		if err != nil {
			log.Error().Err(err).Msg("rate limiter unavailable, allowing request")
		} else if !allowed {
			chatReply(w, map[string]any{
				"text": "You have sent too many messages. Please wait until " + resetTime.Format("15:04:05") + " and try again.",
			})
			return
		}
	}

	if h.pii.Detect(ev.Message.Text) {
		spaceID := lastSegment(ev.Space.Name)
		threadID := lastSegment(ev.Message.Thread.Name)
		if _, _, err := h.user.SendNew(ctx, spaceID, threadID, chat.PIIWarning(string(raw))); err != nil {
			log.Error().Err(err).Msg("failed to send pii warning")
			response.InternalError(w, "failed to respond")
			return
		}
		chatReply(w, map[string]any{})
		return
	}

	h.startConversation(ctx, w, ev)
}

// startConversation posts the placeholder the pipeline will keep updating,
// then hands the message off without holding the webhook open.
func (h *WebhookHandler) startConversation(ctx context.Context, w http.ResponseWriter, ev chatEvent) {
	spaceID := lastSegment(ev.Space.Name)
	threadID := lastSegment(ev.Message.Thread.Name)

	placeholderThread, placeholderID, err := h.user.SendNew(ctx, spaceID, threadID, chat.Processing())
	if err != nil {
		log.Error().Err(err).Msg("failed to send processing placeholder")
		response.InternalError(w, "failed to respond")
		return
	}
	if threadID == "" {
		threadID = placeholderThread
	}

	msg := domain.UserMessage{
		MessageID:  placeholderID,
		SpaceID:    spaceID,
		ThreadID:   threadID,
		Client:     ev.Space.Type,
		UserEmail:  ev.Message.Sender.Email,
		Text:       ev.Message.Text,
		SentAt:     eventTime(ev.Message.CreateTime),
		ReceivedAt: time.Now(),
	}

	go h.process(msg)
	chatReply(w, map[string]any{})
}

func (h *WebhookHandler) process(msg domain.UserMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if err := h.conversation.HandleMessage(ctx, msg); err != nil {
		log.Error().Err(err).
			Str("thread_id", msg.ThreadID).
			Str("user", msg.UserEmail).
			Msg("conversation pipeline failed")
	}
}

func (h *WebhookHandler) handleCardClick(ctx context.Context, w http.ResponseWriter, ev chatEvent) {
	params := ev.Common.Parameters

	switch ev.Common.InvokedFunction {
	case chat.FuncApprove:
		err := h.supervision.Approve(ctx, h.decisionAction(ev))
		if errors.Is(err, domain.ErrAlreadyDecided) {
			log.Warn().Str("thread_id", params[chat.ParamThreadID]).Msg("duplicate approval click ignored")
			chatReply(w, map[string]any{})
			return
		}
		if err != nil {
			log.Error().Err(err).Msg("approval failed")
			response.InternalError(w, "approval failed")
			return
		}
		chatReply(w, map[string]any{})

	case chat.FuncRejectDialog:
		chatReply(w, chat.RejectionDialog(params))

	case chat.FuncSubmitRejection:
		feedback := formInputValue(ev.Common.FormInputs, chat.ParamRejectionFeedback)
		if strings.TrimSpace(feedback) == "" {
			chatReply(w, chat.RejectionDialog(params))
			return
		}
		err := h.supervision.Reject(ctx, h.decisionAction(ev), feedback)
		if errors.Is(err, domain.ErrAlreadyDecided) {
			log.Warn().Str("thread_id", params[chat.ParamThreadID]).Msg("duplicate rejection click ignored")
			chatReply(w, dialogClosed())
			return
		}
		if err != nil {
			log.Error().Err(err).Msg("rejection failed")
			response.InternalError(w, "rejection failed")
			return
		}
		chatReply(w, dialogClosed())

	case chat.FuncCallComplete:
		_, err := h.survey.CompleteCall(ctx,
			ev.User.Email,
			lastSegment(ev.Space.Name),
			params[chat.ParamThreadID],
			lastSegment(ev.Message.Name),
		)
		if err != nil {
			log.Error().Err(err).Msg("call completion failed")
			response.InternalError(w, "call completion failed")
			return
		}
		chatReply(w, map[string]any{})

	case chat.FuncSurveyResponse:
		_, err := h.survey.RecordAnswer(ctx,
			ev.User.Email,
			lastSegment(ev.Space.Name),
			lastSegment(ev.Message.Thread.Name),
			lastSegment(ev.Message.Name),
			params[chat.ParamQuestion],
			params[chat.ParamResponse],
		)
		if err != nil {
			log.Error().Err(err).Msg("survey answer failed")
			response.InternalError(w, "survey answer failed")
			return
		}
		chatReply(w, map[string]any{})

	case chat.FuncProceedUnredacted:
		h.resumeHeldMessage(ctx, w, ev, "")

	case chat.FuncEditQueryDialog:
		var original chatEvent
		if err := json.Unmarshal([]byte(params[chat.ParamMessageEvent]), &original); err != nil {
			log.Error().Err(err).Msg("failed to decode held-back message event")
			response.BadRequest(w, "invalid message event")
			return
		}
		chatReply(w, chat.EditQueryDialog(original.Message.Text, params))

	case chat.FuncSubmitEditedQuery:
		edited := strings.TrimSpace(formInputValue(ev.Common.FormInputs, chat.ParamEditedQuery))
		if edited == "" {
			var original chatEvent
			if err := json.Unmarshal([]byte(params[chat.ParamMessageEvent]), &original); err != nil {
				response.BadRequest(w, "invalid message event")
				return
			}
			chatReply(w, chat.EditQueryDialog(original.Message.Text, params))
			return
		}
		h.resumeHeldMessage(ctx, w, ev, edited)

	default:
		log.Warn().Str("function", ev.Common.InvokedFunction).Msg("ignoring unknown card action")
		chatReply(w, map[string]any{})
	}
}

// resumeHeldMessage resumes a message that was held back by the PII check,
// either unchanged or with the adviser's edited text. The warning card
// itself becomes the processing placeholder.
func (h *WebhookHandler) resumeHeldMessage(ctx context.Context, w http.ResponseWriter, ev chatEvent, editedText string) {
	var original chatEvent
	if err := json.Unmarshal([]byte(ev.Common.Parameters[chat.ParamMessageEvent]), &original); err != nil {
		log.Error().Err(err).Msg("failed to decode held-back message event")
		response.BadRequest(w, "invalid message event")
		return
	}

	text := original.Message.Text
	if editedText != "" {
		text = editedText
	}

	spaceID := lastSegment(ev.Space.Name)
	placeholderID := lastSegment(ev.Message.Name)
	if err := h.user.Update(ctx, spaceID, placeholderID, chat.Processing()); err != nil {
		log.Error().Err(err).Msg("failed to reuse pii warning as placeholder")
		response.InternalError(w, "failed to respond")
		return
	}

	msg := domain.UserMessage{
		MessageID:  placeholderID,
		SpaceID:    spaceID,
		ThreadID:   lastSegment(original.Message.Thread.Name),
		Client:     original.Space.Type,
		UserEmail:  original.Message.Sender.Email,
		Text:       text,
		SentAt:     eventTime(original.Message.CreateTime),
		ReceivedAt: time.Now(),
	}

	go h.process(msg)
	if editedText != "" {
		chatReply(w, dialogClosed())
		return
	}
	chatReply(w, map[string]any{})
}

func (h *WebhookHandler) decisionAction(ev chatEvent) service.DecisionAction {
	params := ev.Common.Parameters
	return service.DecisionAction{
		ThreadID:             params[chat.ParamThreadID],
		SupervisorSpaceID:    lastSegment(ev.Space.Name),
		SupervisionMessageID: lastSegment(ev.Message.Name),
		RequestMessageID:     params[chat.ParamRequestMessageID],
		UserSpaceID:          params[chat.ParamUserSpaceID],
		UserMessageID:        params[chat.ParamUserMessageID],
		UserEmail:            params[chat.ParamUserEmail],
		ApproverEmail:        ev.User.Email,
		OccurredAt:           eventTime(ev.EventTime),
	}
}

func dialogClosed() map[string]any {
	return map[string]any{
		"action_response": map[string]any{
			"type": "DIALOG",
			"dialog_action": map[string]any{
				"action_status": map[string]any{"status_code": "OK"},
			},
		},
	}
}

// chatReply writes a synchronous Google Chat response. Unlike the REST
// helpers it must not wrap the payload, Chat parses the body directly.
func chatReply(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(payload)
}

func formInputValue(inputs map[string]formInput, name string) string {
	in, ok := inputs[name]
	if !ok || len(in.StringInputs.Value) == 0 {
		return ""
	}
	return in.StringInputs.Value[0]
}

func lastSegment(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}

func eventTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Now()
	}
	return t
}
