package broker

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
)

// smokeTestMaxRecords caps the page size of the client smoke test. The AWS
// API rejects values under 20.
const smokeTestMaxRecords = int32(20)

// RDSAPI is the slice of the RDS client the collector consumes. It matches
// rds.DescribeDBInstancesAPIClient so the SDK paginator works over fakes.
type RDSAPI interface {
	DescribeDBInstances(ctx context.Context, params *rds.DescribeDBInstancesInput, optFns ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error)
}

// ClientFactory mints region-scoped service clients from brokered sessions
// and smoke-tests them before handing them out.
type ClientFactory struct {
	broker *SessionBroker
	logger zerolog.Logger

	// newRDS is replaceable in tests.
	newRDS func(cfg aws.Config) RDSAPI
}

// NewClientFactory creates a factory over the given session broker.
func NewClientFactory(b *SessionBroker, logger zerolog.Logger) *ClientFactory {
	return &ClientFactory{
		broker: b,
		logger: logger.With().Str("subsystem", "client_factory").Logger(),
		newRDS: func(cfg aws.Config) RDSAPI { return rds.NewFromConfig(cfg) },
	}
}

// NewClientFactoryWithRDS creates a factory that mints clients through the
// given constructor instead of the real SDK. For tests.
func NewClientFactoryWithRDS(b *SessionBroker, logger zerolog.Logger, newRDS func(cfg aws.Config) RDSAPI) *ClientFactory {
	f := NewClientFactory(b, logger)
	f.newRDS = newRDS
	return f
}

// Broker exposes the underlying session broker.
func (f *ClientFactory) Broker() *SessionBroker { return f.broker }

// ValidateAccess runs the broker-level global identity check once per run.
func (f *ClientFactory) ValidateAccess(ctx context.Context) bool {
	return f.broker.ValidateAccess(ctx)
}

// RDSClient returns a region-scoped RDS client for the account, or nil when
// the account or region must be skipped. A smoke test lists at most one
// bounded page; an account with no instances is a success, not an error.
func (f *ClientFactory) RDSClient(ctx context.Context, accountID, region string) RDSAPI {
	sess := f.broker.GetSession(ctx, accountID)
	if sess == nil {
		return nil
	}

	client := f.newRDS(sess.ConfigForRegion(region))

	maxRecords := smokeTestMaxRecords
	_, err := client.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{
		MaxRecords: &maxRecords,
	})
	if err != nil && !isInstanceNotFound(err) {
		evt := f.logger.Error().Err(err).
			Str("account_id", accountID).
			Str("region", region)
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			evt = evt.Str("error_code", apiErr.ErrorCode())
		}
		evt.Msg("rds client smoke test failed")
		return nil
	}

	return client
}

// isInstanceNotFound reports the deliberate empty-account allowance.
func isInstanceNotFound(err error) bool {
	var notFound *rdstypes.DBInstanceNotFoundFault
	return errors.As(err, &notFound)
}
