package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/dbsweep/dbsweep/internal/config"
	"github.com/dbsweep/dbsweep/internal/logging"
	"github.com/rs/zerolog"
)

// assumeRoleDuration is requested for each temporary credential set. The
// session cache TTL is longer than this on purpose: the static provider
// holds the issued triple, and a sweep finishes well inside one hour.
const assumeRoleDuration = int32(3600)

// STSAPI is the slice of the STS client the role-assumption strategy uses.
type STSAPI interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// AssumeRoleStrategy holds one base session (the caller's ambient
// credentials) and assumes a deterministic per-account role for every
// requested account id.
type AssumeRoleStrategy struct {
	roleName      string
	defaultRegion string
	baseSTS       STSAPI
	logger        zerolog.Logger
}

// NewAssumeRoleStrategy loads the ambient base configuration once and wires
// an STS client against it.
func NewAssumeRoleStrategy(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*AssumeRoleStrategy, error) {
	base, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.DefaultRegion))
	if err != nil {
		return nil, fmt.Errorf("loading base AWS config: %w", err)
	}
	return &AssumeRoleStrategy{
		roleName:      cfg.RoleName,
		defaultRegion: cfg.DefaultRegion,
		baseSTS:       sts.NewFromConfig(base),
		logger:        logger.With().Str("strategy", "iam_role").Logger(),
	}, nil
}

// NewAssumeRoleStrategyWithClient injects an STS client; used by tests.
func NewAssumeRoleStrategyWithClient(client STSAPI, roleName, defaultRegion string, logger zerolog.Logger) *AssumeRoleStrategy {
	return &AssumeRoleStrategy{
		roleName:      roleName,
		defaultRegion: defaultRegion,
		baseSTS:       client,
		logger:        logger.With().Str("strategy", "iam_role").Logger(),
	}
}

// RoleARN returns the deterministic role ARN for an account.
func (s *AssumeRoleStrategy) RoleARN(accountID string) string {
	return fmt.Sprintf("arn:aws:iam::%s:role/%s", accountID, s.roleName)
}

// CreateSession assumes the account's monitoring role and wraps the returned
// temporary credentials as a new session bound to the default region.
func (s *AssumeRoleStrategy) CreateSession(ctx context.Context, accountID string) (*Session, error) {
	roleARN := s.RoleARN(accountID)
	sessionName := "monitoring-" + accountID
	duration := assumeRoleDuration

	out, err := s.baseSTS.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         &roleARN,
		RoleSessionName: &sessionName,
		DurationSeconds: &duration,
	})
	if err != nil {
		s.logger.Error().Err(err).
			Str("account_id", accountID).
			Str("role_arn", roleARN).
			Msg("failed to assume role")
		return nil, &Error{AccountID: accountID, Op: "assume role", Err: err}
	}

	creds := out.Credentials
	var expiry time.Time
	if creds.Expiration != nil {
		expiry = *creds.Expiration
	}

	cfg := aws.Config{
		Region: s.defaultRegion,
		Credentials: credentials.NewStaticCredentialsProvider(
			aws.ToString(creds.AccessKeyId),
			aws.ToString(creds.SecretAccessKey),
			aws.ToString(creds.SessionToken),
		),
		RetryMaxAttempts: 5,
	}

	s.logger.Debug().
		Str("account_id", accountID).
		Str("access_key_id", logging.RedactValue(aws.ToString(creds.AccessKeyId))).
		Time("expiry", expiry).
		Msg("assumed monitoring role")

	return NewSession(accountID, cfg, expiry), nil
}

// ValidateAccess checks that the base session's ambient credentials are
// usable at all. A failure here fails the whole run, not one account.
func (s *AssumeRoleStrategy) ValidateAccess(ctx context.Context) bool {
	out, err := s.baseSTS.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		s.logger.Error().Err(err).Msg("base credential validation failed")
		return false
	}
	s.logger.Info().
		Str("arn", aws.ToString(out.Arn)).
		Str("account_id", aws.ToString(out.Account)).
		Msg("base access validated")
	return true
}
