package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/advicehub/counsel/internal/chat"
	"github.com/advicehub/counsel/internal/domain"
	"github.com/rs/zerolog/log"
)

// DecisionAction carries the routing details of a supervisor decision click.
type DecisionAction struct {
	ThreadID             string
	SupervisorSpaceID    string
	SupervisionMessageID string // the approvable card carrying the buttons
	RequestMessageID     string // the status message in the supervisor thread
	UserSpaceID          string
	UserMessageID        string // the adviser's placeholder message
	UserEmail            string
	ApproverEmail        string
	OccurredAt           time.Time
}

// SupervisionWorkflow drives an answer from awaiting-approval to delivered.
// A given answer is decided exactly once; the decision record is written
// before any surface is touched, so a duplicate click cannot re-deliver.
type SupervisionWorkflow struct {
	responses  domain.ResponseRepository
	user       chat.Surface
	supervisor chat.Surface
	survey     *SurveyGate
	now        func() time.Time
}

// NewSupervisionWorkflow creates a new workflow
func NewSupervisionWorkflow(responses domain.ResponseRepository, user, supervisor chat.Surface, survey *SurveyGate) *SupervisionWorkflow {
	return &SupervisionWorkflow{
		responses:  responses,
		user:       user,
		supervisor: supervisor,
		survey:     survey,
		now:        time.Now,
	}
}

// Approve records an approval and delivers the decorated answer to the
// adviser. Returns domain.ErrAlreadyDecided if the answer was already
// decided.
func (w *SupervisionWorkflow) Approve(ctx context.Context, act DecisionAction) error {
	response, err := w.responses.GetLatestByThread(ctx, act.ThreadID)
	if err != nil {
		return fmt.Errorf("failed to load response for approval: %w", err)
	}

	decision := domain.ApprovalDecision{
		ThreadID:       act.ThreadID,
		ApproverEmail:  act.ApproverEmail,
		Approved:       true,
		ApprovalAt:     act.OccurredAt,
		UserResponseAt: w.now(),
	}
	if err := w.responses.RecordDecision(ctx, decision); err != nil {
		return err
	}

	artifact := w.artifact(response)
	approved := artifact.Append(chat.ApprovalSection(act.ApproverEmail))

	if err := w.user.Update(ctx, act.UserSpaceID, act.UserMessageID, chat.CardContent(approved)); err != nil {
		return fmt.Errorf("failed to deliver approved answer: %w", err)
	}
	if err := w.supervisor.Update(ctx, act.SupervisorSpaceID, act.RequestMessageID, chat.SupervisorRequestApproved(act.UserEmail, response.Prompt)); err != nil {
		log.Error().Err(err).Msg("failed to update supervisor request status")
	}
	if err := w.supervisor.Update(ctx, act.SupervisorSpaceID, act.SupervisionMessageID, chat.CardContent(approved)); err != nil {
		log.Error().Err(err).Msg("failed to update supervision card")
	}

	log.Info().Str("thread_id", act.ThreadID).Str("approver", act.ApproverEmail).Msg("answer approved")

	return w.survey.OfferCompletion(ctx, act.UserSpaceID, act.ThreadID)
}

// Reject records a rejection with the supervisor's mandatory feedback and
// delivers the rejection notice in place of the answer.
func (w *SupervisionWorkflow) Reject(ctx context.Context, act DecisionAction, feedback string) error {
	if feedback == "" {
		return fmt.Errorf("rejection requires supervisor feedback")
	}

	response, err := w.responses.GetLatestByThread(ctx, act.ThreadID)
	if err != nil {
		return fmt.Errorf("failed to load response for rejection: %w", err)
	}

	decision := domain.ApprovalDecision{
		ThreadID:          act.ThreadID,
		ApproverEmail:     act.ApproverEmail,
		Approved:          false,
		ApprovalAt:        act.OccurredAt,
		UserResponseAt:    w.now(),
		SupervisorMessage: feedback,
	}
	if err := w.responses.RecordDecision(ctx, decision); err != nil {
		return err
	}

	if err := w.user.Update(ctx, act.UserSpaceID, act.UserMessageID, chat.RejectionNotice(act.ApproverEmail, feedback)); err != nil {
		return fmt.Errorf("failed to deliver rejection notice: %w", err)
	}
	if err := w.supervisor.Update(ctx, act.SupervisorSpaceID, act.RequestMessageID, chat.SupervisorRequestRejected(act.UserEmail, response.Prompt)); err != nil {
		log.Error().Err(err).Msg("failed to update supervisor request status")
	}
	rejected := w.artifact(response).Append(chat.RejectionSection(act.ApproverEmail, feedback))
	if err := w.supervisor.Update(ctx, act.SupervisorSpaceID, act.SupervisionMessageID, chat.CardContent(rejected)); err != nil {
		log.Error().Err(err).Msg("failed to update supervision card")
	}

	log.Info().Str("thread_id", act.ThreadID).Str("approver", act.ApproverEmail).Msg("answer rejected")

	return w.survey.OfferCompletion(ctx, act.UserSpaceID, act.ThreadID)
}

// artifact reconstructs the approvable card stored with the response,
// falling back to a fresh render of the answer text.
func (w *SupervisionWorkflow) artifact(response *domain.AnswerResponse) chat.Card {
	if response.RenderedCard != "" {
		var card chat.Card
		if err := json.Unmarshal([]byte(response.RenderedCard), &card); err == nil {
			return card
		}
	}
	return chat.AnswerCard(response.Answer)
}
