package auth

import (
	"context"
	"fmt"

	"github.com/dbsweep/dbsweep/internal/config"
	"github.com/rs/zerolog"
)

// Strategy produces a usable AWS session for a given account id. The variant
// is selected once at startup from configuration, never per call.
type Strategy interface {
	// CreateSession builds a candidate session for the account. Failures
	// are returned as *Error; callers are expected to treat them as
	// per-account skips, not fatal faults.
	CreateSession(ctx context.Context, accountID string) (*Session, error)

	// ValidateAccess performs a lightweight identity check against the
	// strategy's reference principal and reports success without raising
	// for expected denial cases.
	ValidateAccess(ctx context.Context) bool
}

// Error reports a failed session creation or validation for one account.
type Error struct {
	AccountID string
	Op        string
	Err       error
}

func (e *Error) Error() string {
	if e.AccountID == "" {
		return fmt.Sprintf("auth: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("auth: %s for account %s: %v", e.Op, e.AccountID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ForMode constructs the strategy selected by the configuration's auth mode.
func ForMode(ctx context.Context, cfg config.Config, logger zerolog.Logger) (Strategy, error) {
	switch cfg.AuthMode() {
	case config.AuthModeSSO:
		return NewSSOStrategy(cfg, logger), nil
	case config.AuthModeIAMRole:
		return NewAssumeRoleStrategy(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported auth mode: %s", cfg.AuthMode())
	}
}
