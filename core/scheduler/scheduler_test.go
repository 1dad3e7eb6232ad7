package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingJob struct {
	name  string
	runs  atomic.Int32
	block time.Duration
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(ctx context.Context, now time.Time) error {
	j.runs.Add(1)
	if j.block > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(j.block):
		}
	}
	return nil
}

func TestSchedulerRunsRegisteredJobs(t *testing.T) {
	s := New(10*time.Millisecond, SystemClock())
	a := &countingJob{name: "a"}
	b := &countingJob{name: "b"}
	s.Register(a)
	s.Register(b)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	assert.GreaterOrEqual(t, a.runs.Load(), int32(3))
	assert.GreaterOrEqual(t, b.runs.Load(), int32(3))
}

func TestSchedulerSkipsTickWhileJobRuns(t *testing.T) {
	s := New(10*time.Millisecond, SystemClock())
	slow := &countingJob{name: "slow", block: time.Second}
	s.Register(slow)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	// The job blocks past every subsequent tick, so it runs exactly once.
	assert.Equal(t, int32(1), slow.runs.Load())
}

func TestSchedulerWaitsForInFlightJobs(t *testing.T) {
	s := New(10*time.Millisecond, SystemClock())
	slow := &countingJob{name: "slow", block: 30 * time.Millisecond}
	s.Register(slow)

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.GreaterOrEqual(t, slow.runs.Load(), int32(1))
}
