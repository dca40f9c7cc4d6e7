package scheduler

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AbdouB/memoryd/internal/models"
)

type fakeSampler struct {
	cpu, mem float64
}

func (f fakeSampler) Sample() (float64, float64, error) { return f.cpu, f.mem, nil }

func TestSubmitRunsCriticalTask(t *testing.T) {
	s := New(2, WithResourceSampler(fakeSampler{cpu: 10, mem: 10}))
	s.Start()
	defer s.Stop(time.Second)

	var ran sync.WaitGroup
	ran.Add(1)
	task := models.NewTask("t1", "critical-task", func(rc *models.RunContext) (any, error) {
		ran.Done()
		return "ok", nil
	}, models.PriorityCritical)

	s.Submit(task)
	waitOrFail(t, &ran, 2*time.Second)

	status, ok := s.Status("t1")
	require.True(t, ok)
	assert.Equal(t, models.TaskCompleted, status.State)
	assert.Equal(t, "ok", status.Result)
}

func TestDependencyUnmetGoesToDeferredUntilDependencySatisfied(t *testing.T) {
	s := New(1, WithResourceSampler(fakeSampler{cpu: 10, mem: 10}))
	s.Start()
	defer s.Stop(time.Second)

	var depRan, followerRan sync.WaitGroup
	depRan.Add(1)
	followerRan.Add(1)

	dep := models.NewTask("dep", "dep", func(rc *models.RunContext) (any, error) {
		depRan.Done()
		return nil, nil
	}, models.PriorityNormal)

	follower := models.NewTask("follower", "follower", func(rc *models.RunContext) (any, error) {
		followerRan.Done()
		return nil, nil
	}, models.PriorityNormal)
	follower.Dependencies["dep"] = struct{}{}

	s.Submit(follower)
	s.Submit(dep)

	waitOrFail(t, &depRan, 2*time.Second)
	waitOrFail(t, &followerRan, 2*time.Second)
}

func TestRetryDowngradesToLowPriorityThenTerminates(t *testing.T) {
	s := New(1, WithResourceSampler(fakeSampler{cpu: 10, mem: 10}))
	s.Start()
	defer s.Stop(time.Second)

	var attempts sync.WaitGroup
	attempts.Add(3)
	task := models.NewTask("flaky", "flaky", func(rc *models.RunContext) (any, error) {
		attempts.Done()
		return nil, errors.New("boom")
	}, models.PriorityNormal)
	task.MaxRetries = 3

	s.Submit(task)
	waitOrFail(t, &attempts, 3*time.Second)

	assert.Eventually(t, func() bool {
		status, ok := s.Status("flaky")
		return ok && status.State == models.TaskFailedTerminal
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCancelQueuedTaskNeverRuns(t *testing.T) {
	s := New(1, WithResourceSampler(fakeSampler{cpu: 95, mem: 95})) // starve via high load
	s.Start()
	defer s.Stop(time.Second)

	ran := false
	task := models.NewTask("never", "never", func(rc *models.RunContext) (any, error) {
		ran = true
		return nil, nil
	}, models.PriorityNormal) // regular queue, starved while load is high

	s.Submit(task)
	ok := s.Cancel("never")
	assert.True(t, ok)

	time.Sleep(100 * time.Millisecond)
	assert.False(t, ran)
	status, _ := s.Status("never")
	assert.Equal(t, models.TaskCancelled, status.State)
}

func TestWorkerCountStaysWithinBounds(t *testing.T) {
	s := New(4, WithResourceSampler(fakeSampler{cpu: 10, mem: 10}))
	s.Start()
	defer s.Stop(time.Second)
	assert.GreaterOrEqual(t, s.WorkerCount(), 1)
	assert.LessOrEqual(t, s.WorkerCount(), 4)
}

func waitOrFail(t *testing.T, wg *sync.WaitGroup, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for task to run")
	}
}
