// Package workers runs background jobs on cron schedules.
package workers

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/dtorcivia/calmerge/internal/util"
)

// Job is a unit of background work.
type Job interface {
	Name() string
	Run(ctx context.Context)
}

// Scheduler runs jobs on cron schedules. A job is never run concurrently
// with itself; a tick that arrives while it is still running is skipped.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler. Schedules use the standard five-field
// syntax plus descriptors such as "@every 30m" and "@hourly".
func NewScheduler() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add schedules job.
func (s *Scheduler) Add(schedule string, job Job) error {
	var mu sync.Mutex
	_, err := s.cron.AddFunc(schedule, func() {
		if !mu.TryLock() {
			util.Warn("Skipping job run, previous run still active", "job", job.Name())
			return
		}
		defer mu.Unlock()
		s.run(job)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", schedule, job.Name(), err)
	}
	util.Info("Scheduled job", "job", job.Name(), "schedule", schedule)
	return nil
}

// RunNow runs job once in the background, outside its schedule.
func (s *Scheduler) RunNow(job Job) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(job)
	}()
}

func (s *Scheduler) run(job Job) {
	defer func() {
		if r := recover(); r != nil {
			util.Error("Job panicked", "job", job.Name(), "error", fmt.Sprintf("%v", r))
		}
	}()
	if s.ctx.Err() != nil {
		return
	}
	util.Debug("Running job", "job", job.Name())
	job.Run(s.ctx)
}

// Start begins running scheduled jobs. Jobs see ctx cancellation.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			s.cancel()
		case <-s.ctx.Done():
		}
	}()
	s.cron.Start()
}

// Stop stops the schedule and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
}
