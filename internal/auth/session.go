// Package auth implements credential acquisition for the multi-account sweep:
// two interchangeable strategies (SSO profile, IAM role assumption) that
// produce usable per-account AWS sessions.
package auth

import (
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// Session is a bound set of credentials plus a default region, ready to mint
// region-scoped service clients. Sessions are shared by all concurrent
// callers for the same account; the credential material backing a session is
// never persisted.
type Session struct {
	AccountID string
	Region    string
	// Expiry is set for temporary credentials (role assumption) and zero
	// for profile-backed sessions, whose refresh is handled by the SDK.
	Expiry time.Time

	cfg aws.Config
}

// NewSession wraps an SDK config as an account-bound session.
func NewSession(accountID string, cfg aws.Config, expiry time.Time) *Session {
	return &Session{
		AccountID: accountID,
		Region:    cfg.Region,
		Expiry:    expiry,
		cfg:       cfg,
	}
}

// Config returns the SDK config bound to the session's default region.
func (s *Session) Config() aws.Config {
	return s.cfg
}

// ConfigForRegion returns a copy of the session config scoped to another
// region. The credential provider is shared; only the region differs.
func (s *Session) ConfigForRegion(region string) aws.Config {
	cfg := s.cfg.Copy()
	cfg.Region = region
	return cfg
}
