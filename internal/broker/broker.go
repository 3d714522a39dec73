// Package broker owns the shared session cache and service client
// construction for the multi-account sweep. All session reads, inserts and
// clears across concurrent collection tasks go through the broker's locking
// discipline: read-shared, write-exclusive, create-once-per-key.
package broker

import (
	"context"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/dbsweep/dbsweep/internal/auth"
	"github.com/rs/zerolog"
)

// Validator performs the blocking identity check on a candidate session
// before it may enter the cache.
type Validator interface {
	Validate(ctx context.Context, sess *auth.Session) error
}

// STSValidator validates sessions with sts:GetCallerIdentity under a bounded
// timeout, so a single unreachable account cannot stall the whole sweep.
type STSValidator struct {
	Timeout time.Duration
	Logger  zerolog.Logger
}

func (v *STSValidator) Validate(ctx context.Context, sess *auth.Session) error {
	timeout := v.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := sts.NewFromConfig(sess.Config())
	out, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return err
	}
	v.Logger.Info().
		Str("account_id", sess.AccountID).
		Str("arn", aws.ToString(out.Arn)).
		Msg("session validated")
	return nil
}

type cacheEntry struct {
	session    *auth.Session
	insertedAt time.Time
}

// inflight tracks a creation round-trip in progress for one account so
// concurrent callers of the same key share its outcome instead of issuing
// duplicate STS calls.
type inflight struct {
	done    chan struct{}
	session *auth.Session // nil when creation or validation failed
}

// SessionBroker caches validated sessions per account id with lazy TTL
// expiry. Entries older than the TTL are treated as absent; there is no
// eviction goroutine, checking the timestamp on read is sufficient.
type SessionBroker struct {
	strategy  auth.Strategy
	validator Validator
	ttl       time.Duration
	logger    zerolog.Logger

	mu         sync.RWMutex
	generation uint64
	entries    map[string]*cacheEntry
	creating   map[string]*inflight
}

// NewSessionBroker creates a broker over the given credential strategy.
func NewSessionBroker(strategy auth.Strategy, validator Validator, ttl time.Duration, logger zerolog.Logger) *SessionBroker {
	return &SessionBroker{
		strategy:  strategy,
		validator: validator,
		ttl:       ttl,
		logger:    logger.With().Str("subsystem", "session_broker").Logger(),
		entries:   make(map[string]*cacheEntry),
		creating:  make(map[string]*inflight),
	}
}

// GetSession returns a validated session for the account, or nil when the
// account must be skipped. Creation and validation failures are logged and
// reported as nil, never raised; one bad account must not abort the sweep.
//
// For a cold key, exactly one creation/validation round trip happens per
// cache generation regardless of how many callers arrive concurrently; the
// others block on the first and share its result.
func (b *SessionBroker) GetSession(ctx context.Context, accountID string) *auth.Session {
	if sess := b.cached(accountID); sess != nil {
		b.logger.Debug().Str("account_id", accountID).Msg("session cache hit")
		return sess
	}

	b.mu.Lock()
	// Re-check under the write lock; another caller may have finished
	// between our read miss and acquiring the lock.
	if entry, ok := b.entries[accountID]; ok && !b.expired(entry) {
		b.mu.Unlock()
		return entry.session
	}
	if fl, ok := b.creating[accountID]; ok {
		b.mu.Unlock()
		select {
		case <-fl.done:
			return fl.session
		case <-ctx.Done():
			return nil
		}
	}
	fl := &inflight{done: make(chan struct{})}
	b.creating[accountID] = fl
	gen := b.generation
	b.mu.Unlock()

	sess := b.createAndValidate(ctx, accountID)

	b.mu.Lock()
	delete(b.creating, accountID)
	// A ClearCache between miss and completion invalidates this round
	// trip's generation; the session is still handed to waiters but must
	// not repopulate the emptied cache.
	if sess != nil && gen == b.generation {
		b.entries[accountID] = &cacheEntry{session: sess, insertedAt: time.Now()}
	}
	b.mu.Unlock()

	fl.session = sess
	close(fl.done)
	return sess
}

func (b *SessionBroker) cached(accountID string) *auth.Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entry, ok := b.entries[accountID]
	if !ok || b.expired(entry) {
		return nil
	}
	return entry.session
}

func (b *SessionBroker) expired(entry *cacheEntry) bool {
	return time.Since(entry.insertedAt) >= b.ttl
}

func (b *SessionBroker) createAndValidate(ctx context.Context, accountID string) *auth.Session {
	b.logger.Info().Str("account_id", accountID).Msg("creating new session")

	sess, err := b.strategy.CreateSession(ctx, accountID)
	if err != nil {
		b.logger.Error().Err(err).Str("account_id", accountID).Msg("session creation failed")
		return nil
	}

	if err := b.validator.Validate(ctx, sess); err != nil {
		b.logger.Error().Err(err).Str("account_id", accountID).Msg("session validation failed")
		return nil
	}
	return sess
}

// ValidateAccess runs the strategy's global identity check.
func (b *SessionBroker) ValidateAccess(ctx context.Context) bool {
	return b.strategy.ValidateAccess(ctx)
}

// ClearCache synchronously empties all entries and starts a new cache
// generation, forcing re-authentication on the next request per account.
func (b *SessionBroker) ClearCache() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.generation++
	b.entries = make(map[string]*cacheEntry)
	b.logger.Info().Msg("session cache cleared")
}
