package auth

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/dbsweep/dbsweep/internal/config"
	"github.com/rs/zerolog"
)

// SSOStrategy resolves locally configured SSO profiles named by convention
// from the account id (profile prefix + account id). Building the session
// makes no network calls; credential resolution is deferred to first use.
type SSOStrategy struct {
	profilePrefix       string
	validationAccountID string
	defaultRegion       string
	logger              zerolog.Logger
}

// NewSSOStrategy creates the SSO-profile strategy from configuration.
func NewSSOStrategy(cfg config.Config, logger zerolog.Logger) *SSOStrategy {
	return &SSOStrategy{
		profilePrefix:       cfg.SSOProfilePrefix,
		validationAccountID: cfg.ValidationAccountID,
		defaultRegion:       cfg.DefaultRegion,
		logger:              logger.With().Str("strategy", "sso").Logger(),
	}
}

// ProfileName returns the shared-config profile used for an account.
func (s *SSOStrategy) ProfileName(accountID string) string {
	return s.profilePrefix + accountID
}

// CreateSession wraps the account's SSO profile as a session.
func (s *SSOStrategy) CreateSession(ctx context.Context, accountID string) (*Session, error) {
	profile := s.ProfileName(accountID)
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithSharedConfigProfile(profile),
		awsconfig.WithRegion(s.defaultRegion),
	)
	if err != nil {
		s.logger.Error().Err(err).
			Str("account_id", accountID).
			Str("profile", profile).
			Msg("failed to create SSO session")
		return nil, &Error{AccountID: accountID, Op: "load sso profile", Err: err}
	}
	return NewSession(accountID, cfg, time.Time{}), nil
}

// ValidateAccess checks the configured reference account with an STS
// identity call. The reference account id is explicit configuration rather
// than something recovered from the profile string.
func (s *SSOStrategy) ValidateAccess(ctx context.Context) bool {
	if s.validationAccountID == "" {
		s.logger.Error().Msg("sso validation failed: validation_account_id is not configured")
		return false
	}

	sess, err := s.CreateSession(ctx, s.validationAccountID)
	if err != nil {
		return false
	}

	client := sts.NewFromConfig(sess.Config())
	out, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		s.logger.Error().Err(err).Msg("sso validation failed")
		return false
	}

	s.logger.Info().
		Str("arn", aws.ToString(out.Arn)).
		Msg("sso access validated")
	return true
}
