// Package collector drives the account×region collection fan-out. Accounts
// are swept sequentially; regions within an account run concurrently on a
// bounded worker pool, and no single task failure aborts its siblings.
package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/dbsweep/dbsweep/internal/broker"
	"github.com/dbsweep/dbsweep/internal/config"
	"github.com/dbsweep/dbsweep/internal/history"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Result is the per-account aggregate of one collection run.
type Result struct {
	AccountID      string
	CollectedAt    time.Time // UTC
	LocalTimestamp string
	Total          int
	Instances      []InstanceRecord
}

// ClientProvider is the slice of the broker layer the orchestrator consumes.
// *broker.ClientFactory satisfies it.
type ClientProvider interface {
	ValidateAccess(ctx context.Context) bool
	RDSClient(ctx context.Context, accountID, region string) broker.RDSAPI
}

// Orchestrator coordinates session acquisition, the region fan-out, and
// persistence for every configured account.
type Orchestrator struct {
	cfg     config.Config
	clients ClientProvider
	sink    history.Sink
	loc     *time.Location
	logger  zerolog.Logger

	// workers bounds concurrent collection tasks across the whole run;
	// excess tasks queue on the channel instead of spawning unbounded work.
	workers chan struct{}
}

// New creates an orchestrator over the given client factory and sink.
func New(cfg config.Config, clients ClientProvider, sink history.Sink, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		clients: clients,
		sink:    sink,
		loc:     cfg.Location(),
		logger:  logger.With().Str("subsystem", "collector").Logger(),
		workers: make(chan struct{}, cfg.WorkerPoolSize),
	}
}

// CollectAll sweeps every configured account and region, appending one
// history record per account that produced instances. Per-account and
// per-region failures degrade to skips; only an unusable broker (global
// validation failure) or persistence failures surface as errors. Even with
// a returned sink error, every account that saved successfully stays saved.
func (o *Orchestrator) CollectAll(ctx context.Context) (map[string]*Result, error) {
	if !o.clients.ValidateAccess(ctx) {
		return nil, fmt.Errorf("access validation failed; aborting collection run")
	}

	runID := uuid.New().String()
	logger := o.logger.With().Str("run_id", runID).Logger()

	results := make(map[string]*Result)
	var sinkErrs []error
	var saved, empty, degraded []string

	for _, accountID := range o.cfg.Accounts {
		records, failedRegions := o.collectAccount(ctx, logger, accountID)

		if len(records) == 0 {
			if failedRegions == len(o.cfg.Regions) {
				degraded = append(degraded, accountID)
				logger.Warn().Str("account_id", accountID).Msg("every region failed; nothing collected")
			} else {
				empty = append(empty, accountID)
				logger.Info().Str("account_id", accountID).Msg("no instances found; skipping persistence")
			}
			continue
		}

		now := time.Now().UTC()
		result := &Result{
			AccountID:      accountID,
			CollectedAt:    now,
			LocalTimestamp: o.localStamp(now),
			Total:          len(records),
			Instances:      records,
		}
		results[accountID] = result

		payload, err := json.Marshal(records)
		if err != nil {
			sinkErrs = append(sinkErrs, fmt.Errorf("encoding records for account %s: %w", accountID, err))
			continue
		}
		rec := &history.Record{
			RunUUID:        runID,
			AccountID:      accountID,
			CollectedAt:    now,
			LocalTimestamp: result.LocalTimestamp,
			Total:          result.Total,
			Instances:      payload,
		}
		if err := o.sink.Append(ctx, rec); err != nil {
			sinkErrs = append(sinkErrs, err)
			logger.Error().Err(err).Str("account_id", accountID).Msg("failed to persist snapshot")
			continue
		}
		saved = append(saved, accountID)
		logger.Info().
			Str("account_id", accountID).
			Int("total_instances", result.Total).
			Msg("account collected")
	}

	logger.Info().
		Strs("saved", saved).
		Strs("empty", empty).
		Strs("degraded", degraded).
		Str("finished_at", o.localStamp(time.Now().UTC())).
		Msg("collection run complete")

	return results, errors.Join(sinkErrs...)
}

// collectAccount fans out one task per region and merges the successes.
// Returns the merged records and how many regions failed.
func (o *Orchestrator) collectAccount(ctx context.Context, logger zerolog.Logger, accountID string) ([]InstanceRecord, int) {
	type regionResult struct {
		region  string
		records []InstanceRecord
		err     error
	}

	out := make(chan regionResult, len(o.cfg.Regions))
	var wg sync.WaitGroup
	for _, region := range o.cfg.Regions {
		wg.Add(1)
		go func(region string) {
			defer wg.Done()
			o.workers <- struct{}{}
			defer func() { <-o.workers }()

			records, err := o.collectRegion(ctx, accountID, region)
			out <- regionResult{region: region, records: records, err: err}
		}(region)
	}
	wg.Wait()
	close(out)

	// Merge by concatenation; region order is irrelevant.
	var merged []InstanceRecord
	failed := 0
	for res := range out {
		if res.err != nil {
			failed++
			logger.Error().Err(res.err).
				Str("account_id", accountID).
				Str("region", res.region).
				Msg("region collection failed")
			continue
		}
		merged = append(merged, res.records...)
	}
	return merged, failed
}

// collectRegion paginates the full instance listing for one (account, region)
// pair and normalizes every descriptor.
func (o *Orchestrator) collectRegion(ctx context.Context, accountID, region string) ([]InstanceRecord, error) {
	client := o.clients.RDSClient(ctx, accountID, region)
	if client == nil {
		return nil, fmt.Errorf("no usable rds client for account %s in %s", accountID, region)
	}

	now := time.Now().UTC()
	var records []InstanceRecord
	paginator := rds.NewDescribeDBInstancesPaginator(client, &rds.DescribeDBInstancesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("DescribeDBInstances: %w", err)
		}
		for _, db := range page.DBInstances {
			records = append(records, normalizeInstance(db, accountID, region, now, o.loc))
		}
	}

	o.logger.Debug().
		Str("account_id", accountID).
		Str("region", region).
		Int("count", len(records)).
		Msg("region collected")
	return records, nil
}

func (o *Orchestrator) localStamp(t time.Time) string {
	return t.In(o.loc).Format(localTimeLayout)
}
