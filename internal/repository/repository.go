package repository

import "github.com/advicehub/counsel/internal/domain"

// Stores bundles the storage interfaces one backend provides. Both the
// postgres and sqlite backends fill every field.
type Stores struct {
	Sessions    domain.SessionRepository
	Messages    domain.MessageRepository
	Responses   domain.ResponseRepository
	Evaluations domain.EvaluationRepository
	Offices     domain.OfficeRepository
}
