package history

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

const (
	appendMaxRetries     = 3
	appendInitialBackoff = 200 * time.Millisecond
	appendMaxBackoff     = 5 * time.Second
)

// RetryingSink wraps a Sink with capped exponential backoff, giving the
// boundary write its at-least-once behavior on transient failures.
type RetryingSink struct {
	inner  Sink
	logger zerolog.Logger
}

// NewRetryingSink wraps the inner sink.
func NewRetryingSink(inner Sink, logger zerolog.Logger) *RetryingSink {
	return &RetryingSink{
		inner:  inner,
		logger: logger.With().Str("subsystem", "history_retry").Logger(),
	}
}

// Append retries the inner append on failure. The final error, if any, keeps
// the SinkError type so callers can surface the loss.
func (r *RetryingSink) Append(ctx context.Context, rec *Record) error {
	operation := func() error {
		return r.inner.Append(ctx, rec)
	}

	strategy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(appendInitialBackoff),
				backoff.WithMaxInterval(appendMaxBackoff),
			),
			appendMaxRetries,
		),
		ctx,
	)

	return backoff.RetryNotify(operation, strategy, func(err error, d time.Duration) {
		r.logger.Warn().Err(err).
			Str("account_id", rec.AccountID).
			Dur("next_attempt_in", d).
			Msg("retrying history append")
	})
}
