package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"waitlist-engine/core/logger"
)

// Clock abstracts wall time so due-time logic is testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func SystemClock() Clock { return systemClock{} }

// Job is one unit of periodic work. Run receives the tick time and is
// expected to process everything currently due and return; it must not block
// between ticks.
type Job interface {
	Name() string
	Run(ctx context.Context, now time.Time) error
}

// Scheduler drives all registered jobs from a single shared ticker. A job
// still running when its next tick fires is skipped for that tick, so a slow
// outbound call can delay its own job but never stack executions.
type Scheduler struct {
	interval time.Duration
	clock    Clock
	jobs     []*jobState
}

type jobState struct {
	job     Job
	running atomic.Bool
}

func New(interval time.Duration, clock Clock) *Scheduler {
	if clock == nil {
		clock = SystemClock()
	}
	return &Scheduler{interval: interval, clock: clock}
}

func (s *Scheduler) Register(j Job) {
	s.jobs = append(s.jobs, &jobState{job: j})
}

// Run blocks until ctx is cancelled. Each tick dispatches every registered
// job on its own goroutine; in-flight jobs are waited for on shutdown.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	logger.Info("Scheduler:Run:Start", "interval", s.interval.String(), "jobs", len(s.jobs))

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			logger.Info("Scheduler:Run:Stopped")
			return
		case <-ticker.C:
			now := s.clock.Now()
			for _, js := range s.jobs {
				if !js.running.CompareAndSwap(false, true) {
					logger.Warn("Scheduler:Run:TickSkipped", "job", js.job.Name())
					continue
				}
				wg.Add(1)
				go func(js *jobState) {
					defer wg.Done()
					defer js.running.Store(false)
					if err := js.job.Run(ctx, now); err != nil {
						logger.Error("Scheduler:Run:JobError", "job", js.job.Name(), "error", err)
					}
				}(js)
			}
		}
	}
}
