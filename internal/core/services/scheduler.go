package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tidewater-labs/siphon-cli/internal/core/domain"
	"github.com/tidewater-labs/siphon-cli/internal/core/ports/driven"
	"github.com/tidewater-labs/siphon-cli/internal/core/ports/driving"
)

// schedulerTick is how often due schedules are checked.
const schedulerTick = time.Minute

var _ driving.Scheduler = (*Scheduler)(nil)

// Scheduler triggers pipeline runs on dataset cron schedules. It polls
// once a minute instead of sleeping until the next fire so Reload and
// clock changes take effect promptly. Due datasets run sequentially;
// a run that outlives its slot simply fires again at the next one.
type Scheduler struct {
	pipeline driving.PipelineService
	datasets driven.DatasetStore

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	entries map[string]*scheduleEntry
}

// scheduleEntry tracks one dataset's parsed schedule and next fire.
type scheduleEntry struct {
	schedule cron.Schedule
	next     time.Time
}

// NewScheduler creates a scheduler over the pipeline service.
func NewScheduler(pipeline driving.PipelineService, datasets driven.DatasetStore) *Scheduler {
	return &Scheduler{
		pipeline: pipeline,
		datasets: datasets,
		entries:  make(map[string]*scheduleEntry),
	}
}

// Start loads schedules and blocks running them until the context is
// cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	s.wg.Add(1)
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if err := s.Reload(ctx); err != nil {
		return err
	}

	log.Printf("scheduler: started, checking every %s", schedulerTick)
	ticker := time.NewTicker(schedulerTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("scheduler: stopping: %v", ctx.Err())
			return ctx.Err()
		case <-stopCh:
			log.Printf("scheduler: stopped")
			return nil
		case <-ticker.C:
			s.checkDue(ctx)
		}
	}
}

// Stop ends the loop and waits for an in-flight run to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// Reload re-reads dataset schedules from the store. Datasets without a
// schedule are ignored; a malformed schedule is logged and skipped so
// one bad record cannot take the daemon down.
func (s *Scheduler) Reload(ctx context.Context) error {
	datasets, err := s.datasets.ListDatasets(ctx)
	if err != nil {
		return fmt.Errorf("listing datasets: %w", err)
	}

	now := time.Now()
	entries := make(map[string]*scheduleEntry)
	for i := range datasets {
		ds := &datasets[i]
		if ds.Schedule == "" {
			continue
		}
		schedule, err := cron.ParseStandard(ds.Schedule)
		if err != nil {
			log.Printf("scheduler: dataset %s: bad schedule %q: %v", ds.ID, ds.Schedule, err)
			continue
		}
		entries[ds.ID] = &scheduleEntry{schedule: schedule, next: schedule.Next(now)}
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()

	log.Printf("scheduler: tracking %d scheduled dataset(s)", len(entries))
	return nil
}

// checkDue runs every dataset whose next fire time has passed.
func (s *Scheduler) checkDue(ctx context.Context) {
	for _, id := range s.takeDue(time.Now()) {
		log.Printf("scheduler: running dataset %s", id)
		run, err := s.pipeline.Run(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrRunInProgress) {
				log.Printf("scheduler: dataset %s already running, skipped", id)
				continue
			}
			log.Printf("scheduler: dataset %s failed: %v", id, err)
			continue
		}
		log.Printf("scheduler: dataset %s refreshed, %d records in %s",
			id, run.Staged, run.Duration().Round(time.Second))
	}
}

// takeDue returns due dataset ids and advances their next fire times.
func (s *Scheduler) takeDue(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []string
	for id, e := range s.entries {
		if !e.next.After(now) {
			due = append(due, id)
			e.next = e.schedule.Next(now)
		}
	}
	sort.Strings(due)
	return due
}
