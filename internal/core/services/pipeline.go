package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tidewater-labs/siphon-cli/internal/core/domain"
	"github.com/tidewater-labs/siphon-cli/internal/core/ports/driven"
	"github.com/tidewater-labs/siphon-cli/internal/core/ports/driving"
	"github.com/tidewater-labs/siphon-cli/internal/logger"
)

// keepRunHistory caps per-dataset run records; older runs are pruned
// after every run.
const keepRunHistory = 100

// defaultPreviewLimit is how many records Preview fetches when the
// caller passes no limit.
const defaultPreviewLimit = 10

var _ driving.PipelineService = (*Pipeline)(nil)

// Pipeline executes ingestion runs: count, fetch, stage, promote. One
// instance serves every dataset; overlapping runs of the same dataset
// are rejected in-process and, across processes, by the destination
// run lock.
type Pipeline struct {
	datasets driven.DatasetStore
	runs     driven.RunStore
	sources  driven.SourceClientFactory
	dests    driven.DestinationOpener

	mu         sync.RWMutex
	activeRuns map[string]*domain.RunStatus
}

// NewPipeline creates a pipeline service with the given stores and
// factories.
func NewPipeline(
	datasets driven.DatasetStore,
	runs driven.RunStore,
	sources driven.SourceClientFactory,
	dests driven.DestinationOpener,
) *Pipeline {
	return &Pipeline{
		datasets:   datasets,
		runs:       runs,
		sources:    sources,
		dests:      dests,
		activeRuns: make(map[string]*domain.RunStatus),
	}
}

// Run executes the full pipeline for one dataset. The returned run
// carries the final state and is persisted to run history whether the
// run succeeded or failed.
//
//nolint:gocyclo // pipeline orchestration reads better as one sequence
func (p *Pipeline) Run(ctx context.Context, datasetID string) (*domain.Run, error) {
	// 1. Resolve the dataset
	ds, err := p.datasets.GetDataset(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("loading dataset %q: %w", datasetID, err)
	}
	if err := ds.Validate(); err != nil {
		return nil, fmt.Errorf("dataset %q: %w", datasetID, err)
	}

	startedAt := time.Now().UTC().Truncate(time.Second)
	run := &domain.Run{
		ID:        uuid.NewString(),
		DatasetID: ds.ID,
		State:     domain.RunStateRunning,
		StartedAt: startedAt,
	}

	// 2. Claim the in-process status slot; overlap across processes is
	// caught by the destination lock below.
	claimed := p.claimStatus(ds.ID, &domain.RunStatus{
		RunID:     run.ID,
		DatasetID: ds.ID,
		Phase:     domain.PhaseCounting,
		StartedAt: startedAt,
	})
	if !claimed {
		return nil, fmt.Errorf("dataset %q: %w", datasetID, domain.ErrRunInProgress)
	}
	defer p.clearStatus(ds.ID)

	logger.Info("run %s: refreshing dataset %s", run.ID, ds.ID)

	// 3. Build the source client
	client, err := p.sources.NewClient(ds.Source, ds.Retry)
	if err != nil {
		return p.finish(ctx, run, fmt.Errorf("source client: %w", err))
	}
	defer client.Close() //nolint:errcheck

	// 4. Open the destination and take the run lock
	dest, err := p.dests.Open(ctx, ds)
	if err != nil {
		return p.finish(ctx, run, fmt.Errorf("destination: %w", err))
	}
	defer dest.Close() //nolint:errcheck

	if err := dest.AcquireLock(ctx, run.ID); err != nil {
		return p.finish(ctx, run, err)
	}
	defer func() {
		if err := dest.ReleaseLock(context.WithoutCancel(ctx), run.ID); err != nil {
			logger.Warn("run %s: releasing lock: %v", run.ID, err)
		}
	}()

	// 5. Probe auth and capture the expected total
	var expected int64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return client.Validate(gctx) })
	g.Go(func() error {
		var err error
		expected, err = client.Count(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return p.finish(ctx, run, fmt.Errorf("source probe: %w", err))
	}
	run.Expected = expected
	p.updateStatus(ds.ID, func(st *domain.RunStatus) { st.Expected = expected })
	logger.Info("run %s: source reports %d records", run.ID, expected)

	// 6. Open a staging batch; residue from aborted runs is cleared here
	batch, err := dest.BeginBatch(ctx, startedAt)
	if err != nil {
		return p.finish(ctx, run, fmt.Errorf("begin batch: %w", err))
	}
	batch.Expected = expected
	run.BatchID = batch.BatchID

	// 7. Fetch every page and stage it
	p.updateStatus(ds.ID, func(st *domain.RunStatus) { st.Phase = domain.PhaseFetching })
	if _, err := p.stageRecords(ctx, ds, client, dest, batch.BatchID, startedAt); err != nil {
		return p.finish(ctx, run, err)
	}

	// 8. Completeness gate, re-counted from the staging store. An
	// incomplete batch is discarded; the destination stays as it was.
	observed, err := dest.ObservedCount(ctx, batch.BatchID)
	if err != nil {
		return p.finish(ctx, run, fmt.Errorf("observed count: %w", err))
	}
	batch.Observed = observed
	run.Staged = observed
	if observed != expected {
		if derr := dest.DiscardBatch(context.WithoutCancel(ctx), batch.BatchID); derr != nil {
			logger.Warn("run %s: discarding batch %d: %v", run.ID, batch.BatchID, derr)
		}
		return p.finish(ctx, run, fmt.Errorf("%w: staged %d of %d records",
			domain.ErrBatchIncomplete, observed, expected))
	}

	// 9. Promote: the swap re-verifies the copied count inside its
	// transaction and reinstalls the typed view over the new table.
	p.updateStatus(ds.ID, func(st *domain.RunStatus) { st.Phase = domain.PhasePromoting })
	if err := dest.Promote(ctx, batch); err != nil {
		return p.finish(ctx, run, fmt.Errorf("promote batch %d: %w", batch.BatchID, err))
	}

	logger.Info("run %s: promoted %d records into %s", run.ID, observed, ds.Destination.Table)
	return p.finish(ctx, run, nil)
}

// stageRecords consumes the fetch stream and writes payloads to
// staging one page at a time. Sequence numbers follow fetch order and
// never reset at page boundaries.
func (p *Pipeline) stageRecords(
	ctx context.Context,
	ds *domain.Dataset,
	client driven.SourceClient,
	staging driven.StagingStore,
	batchID int64,
	ingestedAt time.Time,
) (int64, error) {
	records, errs := client.Fetch(ctx)

	pageSize := ds.EffectivePageSize()
	page := make([]domain.StagedPayload, 0, pageSize)
	var seq int64

	flush := func() error {
		if len(page) == 0 {
			return nil
		}
		if err := staging.AppendPayloads(ctx, batchID, page); err != nil {
			return fmt.Errorf("staging page: %w", err)
		}
		p.updateStatus(ds.ID, func(st *domain.RunStatus) {
			st.PagesFetched++
			st.RecordsStaged = seq
		})
		logger.Debug("staged %d records for dataset %s", seq, ds.ID)
		page = page[:0]
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return seq, ctx.Err()

		case err, ok := <-errs:
			if ok && err != nil {
				return seq, fmt.Errorf("fetching records: %w", err)
			}
			errs = nil

		case rec, ok := <-records:
			if !ok {
				// The record channel closes after any terminal error
				// has been queued, so drain errs before declaring the
				// stream complete.
				if errs != nil {
					if err := <-errs; err != nil {
						return seq, fmt.Errorf("fetching records: %w", err)
					}
				}
				if err := flush(); err != nil {
					return seq, err
				}
				return seq, nil
			}
			seq++
			payload, err := domain.EncodeCanonical(rec)
			if err != nil {
				return seq, fmt.Errorf("record %d: %w", seq, err)
			}
			page = append(page, domain.StagedPayload{
				BatchID:    batchID,
				Sequence:   seq,
				Payload:    payload,
				IngestedAt: ingestedAt,
			})
			if len(page) >= pageSize {
				if err := flush(); err != nil {
					return seq, err
				}
			}
		}
	}
}

// Preview fetches up to limit records from the source without touching
// any store.
func (p *Pipeline) Preview(ctx context.Context, datasetID string, limit int) ([]domain.Record, error) {
	ds, err := p.datasets.GetDataset(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("loading dataset %q: %w", datasetID, err)
	}
	if limit <= 0 {
		limit = defaultPreviewLimit
	}

	client, err := p.sources.NewClient(ds.Source, ds.Retry)
	if err != nil {
		return nil, fmt.Errorf("source client: %w", err)
	}
	defer client.Close() //nolint:errcheck

	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	records, errs := client.Fetch(fetchCtx)
	out := make([]domain.Record, 0, limit)
	for rec := range records {
		out = append(out, rec)
		if len(out) == limit {
			cancel()
			break
		}
	}
	for range records {
		// drain so the fetch goroutine can exit
	}
	if err := <-errs; err != nil && len(out) < limit {
		return nil, fmt.Errorf("fetching records: %w", err)
	}
	return out, nil
}

// RefreshView reinstalls the typed view from the dataset's current
// view spec without running the pipeline.
func (p *Pipeline) RefreshView(ctx context.Context, datasetID string) error {
	ds, err := p.datasets.GetDataset(ctx, datasetID)
	if err != nil {
		return fmt.Errorf("loading dataset %q: %w", datasetID, err)
	}
	dest, err := p.dests.Open(ctx, ds)
	if err != nil {
		return fmt.Errorf("destination: %w", err)
	}
	defer dest.Close() //nolint:errcheck

	if err := dest.InstallView(ctx); err != nil {
		return fmt.Errorf("installing view %s: %w", ds.EffectiveViewName(), err)
	}
	logger.Info("view %s reinstalled over %s", ds.EffectiveViewName(), ds.Destination.Table)
	return nil
}

// BreakLock force-releases the dataset's destination run lock. Meant
// for operator recovery after a crashed process left the lock behind.
func (p *Pipeline) BreakLock(ctx context.Context, datasetID string) error {
	ds, err := p.datasets.GetDataset(ctx, datasetID)
	if err != nil {
		return fmt.Errorf("loading dataset %q: %w", datasetID, err)
	}
	dest, err := p.dests.Open(ctx, ds)
	if err != nil {
		return fmt.Errorf("destination: %w", err)
	}
	defer dest.Close() //nolint:errcheck

	if err := dest.BreakLock(ctx); err != nil {
		return fmt.Errorf("breaking run lock for %q: %w", datasetID, err)
	}
	logger.Info("run lock for %s cleared", datasetID)
	return nil
}

// ActiveRuns returns snapshots of in-flight runs, ordered by dataset.
func (p *Pipeline) ActiveRuns() []domain.RunStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]domain.RunStatus, 0, len(p.activeRuns))
	for _, st := range p.activeRuns {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DatasetID < out[j].DatasetID })
	return out
}

// RunHistory returns a dataset's recent runs, most recent first.
func (p *Pipeline) RunHistory(ctx context.Context, datasetID string, limit int) ([]domain.Run, error) {
	return p.runs.ListRuns(ctx, datasetID, limit)
}

// finish seals the run record, persists it, and passes the pipeline
// error through so callers see the original failure.
func (p *Pipeline) finish(ctx context.Context, run *domain.Run, runErr error) (*domain.Run, error) {
	run.FinishedAt = time.Now().UTC().Truncate(time.Second)
	if runErr != nil {
		run.State = domain.RunStateFailed
		run.Error = runErr.Error()
		logger.Warn("run %s: %v", run.ID, runErr)
	} else {
		run.State = domain.RunStateSucceeded
	}

	// History writes still happen when the run was cancelled.
	saveCtx := context.WithoutCancel(ctx)
	if err := p.runs.SaveRun(saveCtx, run); err != nil {
		logger.Warn("run %s: saving run record: %v", run.ID, err)
	}
	if err := p.runs.PruneRuns(saveCtx, run.DatasetID, keepRunHistory); err != nil {
		logger.Warn("run %s: pruning run history: %v", run.ID, err)
	}
	return run, runErr
}

func (p *Pipeline) claimStatus(datasetID string, st *domain.RunStatus) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.activeRuns[datasetID]; exists {
		return false
	}
	p.activeRuns[datasetID] = st
	return true
}

func (p *Pipeline) updateStatus(datasetID string, fn func(*domain.RunStatus)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if st, ok := p.activeRuns[datasetID]; ok {
		fn(st)
	}
}

func (p *Pipeline) clearStatus(datasetID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.activeRuns, datasetID)
}
