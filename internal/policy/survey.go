package policy

import (
	"context"
	"hash/fnv"
)

// SurveyQuestion is one post-call question with its allowed responses.
type SurveyQuestion struct {
	Question string
	Values   []string
}

// SurveyPolicy decides whether a completed call requires a post-call survey
// and which questions to ask.
type SurveyPolicy interface {
	IsRequired(ctx context.Context, user string) (bool, error)
	QuestionsFor(ctx context.Context, user string) ([]SurveyQuestion, error)
}

// SampledSurveyPolicy asks a fixed question set for a deterministic sample of
// users. Sampling hashes the email so a given user is consistently in or out.
type SampledSurveyPolicy struct {
	sample    float64
	questions []SurveyQuestion
}

// NewSampledSurveyPolicy creates a policy surveying roughly the given
// fraction of users.
func NewSampledSurveyPolicy(sample float64, questions []SurveyQuestion) *SampledSurveyPolicy {
	return &SampledSurveyPolicy{sample: sample, questions: questions}
}

// IsRequired reports whether the user falls in the survey sample
func (p *SampledSurveyPolicy) IsRequired(ctx context.Context, user string) (bool, error) {
	if p.sample >= 1 {
		return true, nil
	}
	if p.sample <= 0 {
		return false, nil
	}
	h := fnv.New32a()
	h.Write([]byte(user))
	bucket := float64(h.Sum32()%1000) / 1000
	return bucket < p.sample, nil
}

// QuestionsFor returns the survey questions for a user
func (p *SampledSurveyPolicy) QuestionsFor(ctx context.Context, user string) ([]SurveyQuestion, error) {
	out := make([]SurveyQuestion, len(p.questions))
	copy(out, p.questions)
	return out, nil
}

// DefaultSurveyQuestions is the standard post-call questionnaire.
func DefaultSurveyQuestions() []SurveyQuestion {
	scale := []string{"Strongly agree", "Agree", "Neutral", "Disagree", "Strongly disagree"}
	return []SurveyQuestion{
		{Question: "The assistant's answer helped me resolve my client's query", Values: scale},
		{Question: "The answer was clear and easy to relay to my client", Values: scale},
		{Question: "I would use the assistant again for a similar query", Values: scale},
	}
}
