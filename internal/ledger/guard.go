package ledger

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/attendance/internal/domain"
)

// Guard enforces single-writer semantics on a record key through optimistic
// concurrency: read current version, compute new state, write conditioned on
// the version still matching. A lost race retries the whole cycle up to
// MaxAttempts; exceeding the bound surfaces domain.ErrWriteConflict, never a
// silent drop.
type Guard struct {
	// MaxAttempts bounds the read-compute-write cycles. Zero means the
	// default of 5.
	MaxAttempts int
	// Backoff is the base delay between attempts, growing linearly with
	// the attempt number. Zero means the default of 20ms.
	Backoff time.Duration
}

const (
	defaultMaxAttempts = 5
	defaultBackoff     = 20 * time.Millisecond
)

// retryable reports whether err is a lost-race signal worth another attempt.
// Logical-state and validation errors pass through untouched.
func retryable(err error) bool {
	return errors.Is(err, domain.ErrVersionMismatch) || errors.Is(err, domain.ErrDuplicateKey)
}

// Do runs one read-compute-write cycle, retrying lost races within the
// bound. A context deadline aborts the loop between attempts and surfaces as
// a write conflict rather than a partially-applied write; partial writes are
// already prevented by the conditional-write discipline.
func (g Guard) Do(ctx context.Context, recordID string, fn func(ctx context.Context) error) error {
	maxAttempts := g.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	backoff := g.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err

		log.Debug().
			Str("record_id", recordID).
			Int("attempt", attempt).
			Msg("Conditional write lost race, retrying")

		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Wrapf(domain.ErrWriteConflict, "aborted by caller deadline: %v", ctx.Err())
		case <-time.After(backoff * time.Duration(attempt)):
		}
	}

	return errors.Wrapf(domain.ErrWriteConflict, "record %s after %d attempts: %v", recordID, maxAttempts, lastErr)
}
