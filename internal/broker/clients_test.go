package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/rs/zerolog"
)

type fakeRDS struct {
	calls    int
	err      error
	regions  []string
	lastMax  int32
	describe func(*rds.DescribeDBInstancesInput) (*rds.DescribeDBInstancesOutput, error)
}

func (f *fakeRDS) DescribeDBInstances(ctx context.Context, params *rds.DescribeDBInstancesInput, optFns ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error) {
	f.calls++
	if params.MaxRecords != nil {
		f.lastMax = *params.MaxRecords
	}
	if f.describe != nil {
		return f.describe(params)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &rds.DescribeDBInstancesOutput{}, nil
}

func newTestFactory(strategy *stubStrategy, fake *fakeRDS) *ClientFactory {
	b := newTestBroker(strategy, &countingValidator{}, time.Hour)
	f := NewClientFactory(b, zerolog.Nop())
	f.newRDS = func(cfg aws.Config) RDSAPI {
		fake.regions = append(fake.regions, cfg.Region)
		return fake
	}
	return f
}

func TestRDSClientSmokeTest(t *testing.T) {
	fake := &fakeRDS{}
	f := newTestFactory(&stubStrategy{}, fake)

	client := f.RDSClient(context.Background(), "111", "us-east-1")
	if client == nil {
		t.Fatal("expected a client")
	}
	if fake.calls != 1 {
		t.Errorf("expected 1 smoke-test call, got %d", fake.calls)
	}
	if fake.lastMax != 20 {
		t.Errorf("expected bounded page size 20, got %d", fake.lastMax)
	}
	if len(fake.regions) != 1 || fake.regions[0] != "us-east-1" {
		t.Errorf("expected region-scoped config, got %v", fake.regions)
	}
}

func TestRDSClientEmptyAccountIsSuccess(t *testing.T) {
	fake := &fakeRDS{err: &rdstypes.DBInstanceNotFoundFault{}}
	f := newTestFactory(&stubStrategy{}, fake)

	if client := f.RDSClient(context.Background(), "111", "us-east-1"); client == nil {
		t.Error("instance-not-found must be treated as an empty account, not a failure")
	}
}

func TestRDSClientAPIErrorIsSoftFailure(t *testing.T) {
	fake := &fakeRDS{err: errors.New("UnauthorizedOperation")}
	f := newTestFactory(&stubStrategy{}, fake)

	if client := f.RDSClient(context.Background(), "111", "us-east-1"); client != nil {
		t.Error("expected nil client on smoke-test failure")
	}
}

func TestRDSClientPropagatesMissingSession(t *testing.T) {
	fake := &fakeRDS{}
	f := newTestFactory(&stubStrategy{failFor: map[string]bool{"111": true}}, fake)

	if client := f.RDSClient(context.Background(), "111", "us-east-1"); client != nil {
		t.Error("expected nil client when no session is available")
	}
	if fake.calls != 0 {
		t.Error("no API call should happen without a session")
	}
}
