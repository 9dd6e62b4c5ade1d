package policy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/advicehub/counsel/internal/domain"
	"github.com/advicehub/counsel/internal/repository/redis"
)

// Enrolment resolves which supervisor space covers an adviser and which
// office regions their email domain belongs to, and manages registrations.
type Enrolment interface {
	SupervisorSpace(ctx context.Context, email string) (string, error)
	OfficeRegions(ctx context.Context, email string) ([]string, error)
	Register(ctx context.Context, email, role, supervisorSpaceID string) error
	Remove(ctx context.Context, email string) error
	ListSpaceUsers(ctx context.Context, supervisorSpaceID string) ([]domain.UserSession, error)
}

// EnrolmentService resolves enrolment from the session store, with an
// optional Redis cache in front of supervisor-space lookups.
type EnrolmentService struct {
	sessions domain.SessionRepository
	offices  domain.OfficeRepository
	cache    *redis.SpaceCache
}

// NewEnrolmentService creates a new enrolment service; cache may be nil.
func NewEnrolmentService(sessions domain.SessionRepository, offices domain.OfficeRepository, cache *redis.SpaceCache) *EnrolmentService {
	return &EnrolmentService{sessions: sessions, offices: offices, cache: cache}
}

// SupervisorSpace returns the designated supervisor space for an adviser.
// An adviser without one cannot receive answers; that is a policy violation,
// not a transient condition.
func (s *EnrolmentService) SupervisorSpace(ctx context.Context, email string) (string, error) {
	if s.cache != nil {
		if space, ok := s.cache.Get(ctx, email); ok {
			return space, nil
		}
	}

	session, err := s.sessions.Get(ctx, email)
	if err != nil {
		if err == domain.ErrNotFound {
			return "", domain.ErrUnknownSupervisorSpace
		}
		return "", fmt.Errorf("failed to look up adviser: %w", err)
	}
	if session.SupervisorSpaceID == "" {
		return "", domain.ErrUnknownSupervisorSpace
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, email, session.SupervisorSpaceID)
	}
	return session.SupervisorSpaceID, nil
}

// OfficeRegions returns the coverage regions for the adviser's office,
// resolved from the email domain.
func (s *EnrolmentService) OfficeRegions(ctx context.Context, email string) ([]string, error) {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return nil, fmt.Errorf("invalid adviser email: %s", email)
	}
	return s.offices.RegionsFor(ctx, email[at+1:])
}

// Register enrols an adviser under a supervisor space
func (s *EnrolmentService) Register(ctx context.Context, email, role, supervisorSpaceID string) error {
	now := time.Now()
	session := &domain.UserSession{
		Email:             email,
		Role:              role,
		SupervisorSpaceID: supervisorSpaceID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.sessions.Register(ctx, session); err != nil {
		return fmt.Errorf("failed to register adviser: %w", err)
	}
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, email)
	}
	return nil
}

// Remove withdraws an adviser's enrolment
func (s *EnrolmentService) Remove(ctx context.Context, email string) error {
	if err := s.sessions.Remove(ctx, email); err != nil {
		return fmt.Errorf("failed to remove adviser: %w", err)
	}
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, email)
	}
	return nil
}

// ListSpaceUsers lists advisers enrolled under a supervisor space
func (s *EnrolmentService) ListSpaceUsers(ctx context.Context, supervisorSpaceID string) ([]domain.UserSession, error) {
	return s.sessions.ListBySpace(ctx, supervisorSpaceID)
}
