package external

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/kidney-genetics/ingestion-core/internal/domain"
)

// CircuitBreaker wraps a gobreaker.CircuitBreaker for one source
// instance. States are closed/open/half-open per spec.md §4.1:
// closed -> open at failure_threshold consecutive failures; open ->
// half-open after recovery_timeout; half-open -> closed on success or
// back to open on failure. Calls made while open fail fast in O(1)
// without a network call.
type CircuitBreaker struct {
	source string
	cb     *gobreaker.CircuitBreaker
	log    *logrus.Logger
}

// NewCircuitBreaker builds a breaker from a source's declarative config.
func NewCircuitBreaker(sourceName string, sc domain.SourceConfig, log *logrus.Logger) *CircuitBreaker {
	threshold := sc.CircuitBreakerThreshold
	if threshold == 0 {
		threshold = 5
	}
	timeout := sc.CircuitBreakerTimeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        sourceName,
		MaxRequests: 1, // one trial call while half-open
		Interval:    0, // never reset closed-state counts on a timer; only on success
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if log != nil {
				log.WithFields(logrus.Fields{
					"source": name, "from": from.String(), "to": to.String(),
				}).Warn("circuit breaker state changed")
			}
		},
	}

	return &CircuitBreaker{
		source: sourceName,
		cb:     gobreaker.NewCircuitBreaker(settings),
		log:    log,
	}
}

// Execute runs fn through the breaker. A CircuitOpenError is returned
// in place of gobreaker's own open-state errors so callers only need to
// understand the domain taxonomy from spec.md §7.
func (b *CircuitBreaker) Execute(_ context.Context, fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(fn)
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, &domain.CircuitOpenError{Source: b.source}
	}
	return result, err
}

// State returns the current breaker state name, for health/status
// reporting on the admin surface.
func (b *CircuitBreaker) State() string {
	return b.cb.State().String()
}
