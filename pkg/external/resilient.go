package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/coi-compliance-server/internal/domain"
)

// ResilientVisionClient wraps a vision extractor with a circuit breaker, a rate limiter,
// a per-attempt timeout and at most one retry for transient failures.
type ResilientVisionClient struct {
	next    domain.VisionExtractor
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	timeout time.Duration
	retries int
	backoff time.Duration
	logger  *logrus.Logger
}

// NewResilientVisionClient creates a resilient wrapper around next.
func NewResilientVisionClient(next domain.VisionExtractor, config domain.VisionConfig, logger *logrus.Logger) *ResilientVisionClient {
	if config.Timeout == 0 {
		config.Timeout = defaultVisionTimeout
	}
	if config.RateLimit <= 0 {
		config.RateLimit = 2
	}
	retries := config.RetryCount
	if retries < 0 {
		retries = 0
	}
	if retries > 1 {
		retries = 1
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "vision",
		MaxRequests: 2,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		// Only provider-side failures count against the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil || !IsTransient(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return &ResilientVisionClient{
		next:    next,
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		timeout: config.Timeout,
		retries: retries,
		backoff: 500 * time.Millisecond,
		logger:  logger,
	}
}

// Extract calls the wrapped extractor, retrying once on a transient failure.
func (r *ResilientVisionClient) Extract(ctx context.Context, input domain.VisionInput) (json.RawMessage, error) {
	var lastErr error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.backoff):
			}
		}

		raw, err := r.attempt(ctx, input)
		if err == nil {
			return raw, nil
		}
		lastErr = err

		if !IsTransient(err) {
			break
		}
		r.logger.WithError(err).WithField("attempt", attempt+1).Warn("Vision extraction attempt failed")
	}
	return nil, lastErr
}

func (r *ResilientVisionClient) attempt(ctx context.Context, input domain.VisionInput) (json.RawMessage, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.next.Extract(attemptCtx, input)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("vision provider unavailable: %w", err)
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &TransientError{Err: err}
		}
		return nil, err
	}
	return result.(json.RawMessage), nil
}
