package service

import (
	"context"
	"fmt"

	"github.com/advicehub/counsel/internal/chat"
	"github.com/advicehub/counsel/internal/domain"
	"github.com/advicehub/counsel/internal/policy"
	"github.com/rs/zerolog/log"
)

// SurveyGate owns call completion and the post-call survey: it is the only
// writer of callComplete and surveyResponses.
type SurveyGate struct {
	sessions    domain.SessionRepository
	evaluations domain.EvaluationRepository
	policy      policy.SurveyPolicy
	user        chat.Surface
}

// NewSurveyGate creates a new gate
func NewSurveyGate(sessions domain.SessionRepository, evaluations domain.EvaluationRepository, surveyPolicy policy.SurveyPolicy, user chat.Surface) *SurveyGate {
	return &SurveyGate{
		sessions:    sessions,
		evaluations: evaluations,
		policy:      surveyPolicy,
		user:        user,
	}
}

// OfferCompletion sends the adviser the option to mark the call complete.
func (g *SurveyGate) OfferCompletion(ctx context.Context, spaceID, threadID string) error {
	if _, _, err := g.user.SendNew(ctx, spaceID, threadID, chat.CallCompleteConfirm(threadID)); err != nil {
		return fmt.Errorf("failed to send call-completion prompt: %w", err)
	}
	return nil
}

// CompleteCall marks the call complete and, when the survey policy requires
// it, starts the post-call survey. Returns whether a survey was started.
func (g *SurveyGate) CompleteCall(ctx context.Context, userEmail, spaceID, threadID, confirmMessageID string) (bool, error) {
	if err := g.evaluations.MarkCallComplete(ctx, threadID); err != nil {
		return false, fmt.Errorf("failed to mark call complete: %w", err)
	}
	if err := g.sessions.EndCall(ctx, userEmail); err != nil {
		return false, fmt.Errorf("failed to end call: %w", err)
	}

	log.Info().Str("user", userEmail).Str("thread_id", threadID).Msg("call marked complete")

	if err := g.user.Update(ctx, spaceID, confirmMessageID, chat.CallMarkedComplete()); err != nil {
		log.Error().Err(err).Msg("failed to update completion confirmation")
	}

	required, err := g.policy.IsRequired(ctx, userEmail)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate survey policy: %w", err)
	}
	if !required {
		return false, nil
	}

	questions, err := g.policy.QuestionsFor(ctx, userEmail)
	if err != nil {
		return false, fmt.Errorf("failed to load survey questions: %w", err)
	}
	if len(questions) == 0 {
		return false, nil
	}

	card := chat.SurveyCard(toChatQuestions(questions))
	if _, _, err := g.user.SendNew(ctx, spaceID, threadID, chat.CardContent(card)); err != nil {
		return true, fmt.Errorf("failed to send survey: %w", err)
	}
	return true, nil
}

// RecordAnswer appends one survey response and refreshes the survey card to
// show only the remaining questions. Returns how many questions remain; at
// zero the card gains the survey-complete marker.
func (g *SurveyGate) RecordAnswer(ctx context.Context, userEmail, spaceID, threadID, surveyMessageID, question, response string) (int, error) {
	answer := domain.SurveyAnswer{Question: question, Response: response}
	if err := g.evaluations.AppendSurveyAnswer(ctx, threadID, answer); err != nil {
		return 0, fmt.Errorf("failed to record survey answer: %w", err)
	}

	record, err := g.evaluations.Get(ctx, threadID)
	if err != nil {
		return 0, fmt.Errorf("failed to load evaluation record: %w", err)
	}
	all, err := g.policy.QuestionsFor(ctx, userEmail)
	if err != nil {
		return 0, fmt.Errorf("failed to load survey questions: %w", err)
	}

	answered := make(map[string]bool, len(record.SurveyResponses))
	for _, a := range record.SurveyResponses {
		answered[a.Question] = true
	}
	var pending []policy.SurveyQuestion
	for _, q := range all {
		if !answered[q.Question] {
			pending = append(pending, q)
		}
	}

	card := chat.SurveyCard(toChatQuestions(pending))
	if len(pending) == 0 {
		card = card.Append(chat.SurveyCompleteSection())
	}
	if err := g.user.Update(ctx, spaceID, surveyMessageID, chat.CardContent(card)); err != nil {
		return len(pending), fmt.Errorf("failed to update survey card: %w", err)
	}

	return len(pending), nil
}

func toChatQuestions(questions []policy.SurveyQuestion) []chat.SurveyQuestion {
	out := make([]chat.SurveyQuestion, len(questions))
	for i, q := range questions {
		out[i] = chat.SurveyQuestion{Question: q.Question, Values: q.Values}
	}
	return out
}
