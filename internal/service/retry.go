package service

import (
	"context"
	"time"

	"github.com/advicehub/counsel/internal/domain"
	"github.com/rs/zerolog/log"
)

// Sleeper abstracts backoff waits so retry timing is testable without real
// delays.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// ClockSleeper waits on the wall clock, honouring context cancellation.
type ClockSleeper struct{}

// Sleep waits for d or until the context is done
func (ClockSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryNotifier receives user/supervisor surface updates on retry and
// terminal failure. Notification errors are logged, never escalated: a
// failed notice must not mask the generation outcome.
type RetryNotifier interface {
	// Retrying fires before each backoff wait.
	Retrying(ctx context.Context) error
	// Failed fires exactly once, when the last attempt has failed.
	Failed(ctx context.Context) error
}

// RetryPolicy bounds answer generation: at most MaxAttempts attempts with
// Backoff(i) between attempt i and i+1.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
}

// DefaultRetryPolicy is 4 attempts with attempt-squared backoff in seconds:
// waits of 0s, 1s and 4s between attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		Backoff: func(attempt int) time.Duration {
			return time.Duration(attempt*attempt) * time.Second
		},
	}
}

// Run executes attempts until one succeeds or the budget is exhausted. Each
// attempt opens entirely fresh state; there is no resume. On exhaustion the
// notifier's Failed fires and a TerminalGenerationError propagates.
func (p RetryPolicy) Run(ctx context.Context, sleeper Sleeper, notifier RetryNotifier, attempt func(ctx context.Context) (*StreamResult, error)) (*StreamResult, error) {
	var lastErr error

	for i := 0; i < p.MaxAttempts; i++ {
		result, err := attempt(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		log.Warn().Err(err).Int("attempt", i+1).Int("max_attempts", p.MaxAttempts).Msg("answer generation attempt failed")

		if i == p.MaxAttempts-1 {
			break
		}

		if nerr := notifier.Retrying(ctx); nerr != nil {
			log.Error().Err(nerr).Msg("failed to send retry notice")
		}
		if serr := sleeper.Sleep(ctx, p.Backoff(i)); serr != nil {
			return nil, serr
		}
	}

	if nerr := notifier.Failed(ctx); nerr != nil {
		log.Error().Err(nerr).Msg("failed to send terminal failure notice")
	}

	return nil, &domain.TerminalGenerationError{Attempts: p.MaxAttempts, Err: lastErr}
}
