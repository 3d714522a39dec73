package collector

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/dbsweep/dbsweep/internal/broker"
	"github.com/dbsweep/dbsweep/internal/config"
	"github.com/dbsweep/dbsweep/internal/history"
	"github.com/rs/zerolog"
)

// stubRDS serves a fixed instance list in one page, or fails.
type stubRDS struct {
	instances []rdstypes.DBInstance
	err       error

	mu         sync.Mutex
	active     int
	maxActive  int
	callsDelay time.Duration
}

func (s *stubRDS) DescribeDBInstances(ctx context.Context, params *rds.DescribeDBInstancesInput, optFns ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error) {
	s.mu.Lock()
	s.active++
	if s.active > s.maxActive {
		s.maxActive = s.active
	}
	s.mu.Unlock()

	if s.callsDelay > 0 {
		time.Sleep(s.callsDelay)
	}

	s.mu.Lock()
	s.active--
	s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	return &rds.DescribeDBInstancesOutput{DBInstances: s.instances}, nil
}

// stubClients maps (account, region) to a client; missing pairs yield nil,
// mirroring the factory's soft-failure contract.
type stubClients struct {
	validateOK bool
	clients    map[string]broker.RDSAPI // key: account + "/" + region
}

func (s *stubClients) ValidateAccess(ctx context.Context) bool { return s.validateOK }

func (s *stubClients) RDSClient(ctx context.Context, accountID, region string) broker.RDSAPI {
	return s.clients[accountID+"/"+region]
}

// memorySink records appended history entries.
type memorySink struct {
	mu      sync.Mutex
	records []*history.Record
	err     error
}

func (m *memorySink) Append(ctx context.Context, rec *history.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, rec)
	return nil
}

func testConfig(accounts, regions []string) config.Config {
	cfg := config.Default()
	cfg.Accounts = accounts
	cfg.Regions = regions
	cfg.LocalTimezone = "UTC"
	return cfg
}

func instance(id string) rdstypes.DBInstance {
	return rdstypes.DBInstance{
		DBInstanceIdentifier: aws.String(id),
		DBInstanceStatus:     aws.String("available"),
		Engine:               aws.String("mysql"),
		EngineVersion:        aws.String("8.0.36"),
		DBInstanceClass:      aws.String("db.r6g.large"),
	}
}

func newOrchestrator(cfg config.Config, clients ClientProvider, sink history.Sink) *Orchestrator {
	return New(cfg, clients, sink, zerolog.Nop())
}

func TestCollectAllRegionFailureIsolated(t *testing.T) {
	cfg := testConfig([]string{"111"}, []string{"r1", "r2", "r3"})
	clients := &stubClients{
		validateOK: true,
		clients: map[string]broker.RDSAPI{
			"111/r1": &stubRDS{instances: []rdstypes.DBInstance{instance("db-1")}},
			// r2 missing: soft failure
			"111/r3": &stubRDS{instances: []rdstypes.DBInstance{instance("db-3"), instance("db-4")}},
		},
	}
	sink := &memorySink{}

	results, err := newOrchestrator(cfg, clients, sink).CollectAll(context.Background())
	if err != nil {
		t.Fatalf("collecting: %v", err)
	}

	res, ok := results["111"]
	if !ok {
		t.Fatal("expected a result for account 111")
	}
	if res.Total != 3 {
		t.Errorf("expected 3 instances from the surviving regions, got %d", res.Total)
	}
	if len(sink.records) != 1 {
		t.Errorf("expected 1 history append, got %d", len(sink.records))
	}
}

func TestCollectAllAuthFailedAccountSkipped(t *testing.T) {
	cfg := testConfig([]string{"111", "222"}, []string{"us-east-1"})
	clients := &stubClients{
		validateOK: true,
		clients: map[string]broker.RDSAPI{
			// "111" has no client anywhere: auth failed
			"222/us-east-1": &stubRDS{instances: []rdstypes.DBInstance{
				instance("db-a"), instance("db-b"), instance("db-c"),
			}},
		},
	}
	sink := &memorySink{}

	results, err := newOrchestrator(cfg, clients, sink).CollectAll(context.Background())
	if err != nil {
		t.Fatalf("collecting: %v", err)
	}

	if _, ok := results["111"]; ok {
		t.Error("auth-failed account must have no result entry")
	}
	res, ok := results["222"]
	if !ok {
		t.Fatal("expected a result for account 222")
	}
	if res.Total != 3 {
		t.Errorf("expected total=3, got %d", res.Total)
	}
	if len(sink.records) != 1 || sink.records[0].AccountID != "222" {
		t.Errorf("expected exactly one append for 222, got %+v", sink.records)
	}
}

func TestCollectAllEmptyAccountSkipsPersistence(t *testing.T) {
	cfg := testConfig([]string{"111"}, []string{"r1", "r2"})
	clients := &stubClients{
		validateOK: true,
		clients: map[string]broker.RDSAPI{
			"111/r1": &stubRDS{},
			"111/r2": &stubRDS{},
		},
	}
	sink := &memorySink{}

	results, err := newOrchestrator(cfg, clients, sink).CollectAll(context.Background())
	if err != nil {
		t.Fatalf("collecting: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("empty account should produce no result, got %v", results)
	}
	if len(sink.records) != 0 {
		t.Errorf("empty account must not reach the sink, got %d appends", len(sink.records))
	}
}

func TestCollectAllGlobalValidationFailureAborts(t *testing.T) {
	cfg := testConfig([]string{"111"}, []string{"r1"})
	clients := &stubClients{validateOK: false}
	sink := &memorySink{}

	_, err := newOrchestrator(cfg, clients, sink).CollectAll(context.Background())
	if err == nil {
		t.Fatal("expected error when broker-level validation fails")
	}
	if len(sink.records) != 0 {
		t.Error("nothing must be persisted after a failed global check")
	}
}

func TestCollectAllSinkErrorPropagates(t *testing.T) {
	cfg := testConfig([]string{"111"}, []string{"r1"})
	clients := &stubClients{
		validateOK: true,
		clients: map[string]broker.RDSAPI{
			"111/r1": &stubRDS{instances: []rdstypes.DBInstance{instance("db-1")}},
		},
	}
	sink := &memorySink{err: fmt.Errorf("disk full")}

	results, err := newOrchestrator(cfg, clients, sink).CollectAll(context.Background())
	if err == nil {
		t.Fatal("sink failure must surface to the caller")
	}
	// The collection itself succeeded; only persistence failed.
	if _, ok := results["111"]; !ok {
		t.Error("collected result should still be returned alongside the sink error")
	}
}

func TestCollectAllIdempotentShapeDistinctTimestamps(t *testing.T) {
	cfg := testConfig([]string{"111"}, []string{"r1"})
	backing := &stubRDS{instances: []rdstypes.DBInstance{
		instance("db-1"), instance("db-2"),
	}}
	clients := &stubClients{validateOK: true, clients: map[string]broker.RDSAPI{"111/r1": backing}}
	sink := &memorySink{}
	o := newOrchestrator(cfg, clients, sink)

	first, err := o.CollectAll(context.Background())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	second, err := o.CollectAll(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	a, b := first["111"], second["111"]
	if a.Total != b.Total {
		t.Fatalf("totals differ: %d vs %d", a.Total, b.Total)
	}
	for i := range a.Instances {
		x, y := a.Instances[i], b.Instances[i]
		// Identical except for the per-record collection timestamp.
		x.CollectedAt, y.CollectedAt = "", ""
		if fmt.Sprintf("%+v", x) != fmt.Sprintf("%+v", y) {
			t.Errorf("record %d differs between runs:\n%+v\n%+v", i, x, y)
		}
	}
	if !b.CollectedAt.After(a.CollectedAt) {
		t.Error("expected a fresh collection timestamp on the second run")
	}
	// Two runs, two appended history entries: append-only, never upsert.
	if len(sink.records) != 2 {
		t.Errorf("expected 2 history entries, got %d", len(sink.records))
	}
	if sink.records[0].RunUUID == sink.records[1].RunUUID {
		t.Error("each run must carry its own run id")
	}
}

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	regions := []string{"r1", "r2", "r3", "r4", "r5", "r6"}
	cfg := testConfig([]string{"111"}, regions)
	cfg.WorkerPoolSize = 2

	backing := &stubRDS{callsDelay: 20 * time.Millisecond}
	clients := &stubClients{validateOK: true, clients: map[string]broker.RDSAPI{}}
	for _, r := range regions {
		clients.clients["111/"+r] = backing
	}

	if _, err := newOrchestrator(cfg, clients, &memorySink{}).CollectAll(context.Background()); err != nil {
		t.Fatalf("collecting: %v", err)
	}
	if backing.maxActive > 2 {
		t.Errorf("worker pool exceeded its bound: %d concurrent calls", backing.maxActive)
	}
}
