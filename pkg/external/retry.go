package external

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/kidney-genetics/ingestion-core/internal/domain"
)

// retryAfterOverride wraps an *backoff.ExponentialBackOff so a server's
// Retry-After header can short-circuit the computed interval for exactly
// one NextBackOff() call, per spec.md §4.1's tie-break rule: when both a
// computed backoff and a Retry-After value are available, Retry-After
// wins.
type retryAfterOverride struct {
	inner    backoff.BackOff
	override time.Duration
}

func (r *retryAfterOverride) NextBackOff() time.Duration {
	if r.override > 0 {
		d := r.override
		r.override = 0
		return d
	}
	return r.inner.NextBackOff()
}

func (r *retryAfterOverride) Reset() {
	r.inner.Reset()
	r.override = 0
}

// Retrier executes HTTP calls with exponential backoff, honoring a
// source's declarative retry budget and any Retry-After header the
// remote returns on a 429/503.
type Retrier struct {
	source string
	sc     domain.SourceConfig
	log    *logrus.Logger
}

// NewRetrier builds a Retrier from a source's config.
func NewRetrier(sourceName string, sc domain.SourceConfig, log *logrus.Logger) *Retrier {
	return &Retrier{source: sourceName, sc: sc, log: log}
}

func (r *Retrier) newBackOff() *retryAfterOverride {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.sc.InitialDelay
	if eb.InitialInterval <= 0 {
		eb.InitialInterval = 500 * time.Millisecond
	}
	eb.MaxInterval = r.sc.MaxDelay
	if eb.MaxInterval <= 0 {
		eb.MaxInterval = 30 * time.Second
	}
	eb.Multiplier = r.sc.ExponentialBase
	if eb.Multiplier <= 1 {
		eb.Multiplier = 2.0
	}
	if r.sc.Jitter {
		eb.RandomizationFactor = 0.5
	} else {
		eb.RandomizationFactor = 0
	}
	eb.Reset()
	return &retryAfterOverride{inner: eb}
}

// Do runs fn, retrying on errors satisfying domain.RetryableStatusError
// or a plain transport error, up to the source's MaxRetries. A
// domain.PermanentStatusError short-circuits the loop immediately.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	maxRetries := r.sc.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	bo := r.newBackOff()
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		var permErr *domain.PermanentStatusError
		if errors.As(err, &permErr) {
			return err
		}

		if attempt == maxRetries {
			break
		}

		bo.override = 0
		var retryable *domain.RetryableStatusError
		if errors.As(err, &retryable) && retryable.RetryAfter > 0 {
			bo.override = retryable.RetryAfter
		}

		wait := bo.NextBackOff()
		if r.log != nil {
			r.log.WithFields(logrus.Fields{
				"source": r.source, "attempt": attempt + 1, "wait": wait, "err": err,
			}).Warn("retrying after transient failure")
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}
