package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTask struct {
	mu       sync.Mutex
	name     string
	sleep    time.Duration
	interval time.Duration
	runs     []time.Time
	nextRun  time.Time
}

func newFakeTask(name string, firstRun time.Time, interval, sleep time.Duration) *fakeTask {
	return &fakeTask{name: name, interval: interval, sleep: sleep, nextRun: firstRun}
}

func (f *fakeTask) Name() string { return f.name }

func (f *fakeTask) Do(ctx context.Context, environment, taskSettings string) (string, error) {
	f.mu.Lock()
	f.runs = append(f.runs, time.Now())
	f.mu.Unlock()
	if f.sleep > 0 {
		time.Sleep(f.sleep)
	}
	return "ok", nil
}

func (f *fakeTask) GetNextExecutionTime(after time.Time) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.runs) == 0 {
		return f.nextRun
	}
	return after.Add(f.interval)
}

func (f *fakeTask) OnRequestExit() {}

func (f *fakeTask) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runs)
}

func (f *fakeTask) firstRunAt() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs[0]
}

func TestSchedulerRunsTaskAtScheduledTime(t *testing.T) {
	s := New()
	s.Start()
	defer s.Stop()

	task := newFakeTask("t1", time.Now().Add(30*time.Millisecond), time.Hour, 0)
	s.AddTask(task)

	require.Eventually(t, func() bool { return task.runCount() >= 1 }, time.Second, 5*time.Millisecond)
}

func TestSchedulerSerializesOverlappingTasks(t *testing.T) {
	s := New()
	s.Start()
	defer s.Stop()

	now := time.Now()
	t1 := newFakeTask("t1", now.Add(20*time.Millisecond), time.Hour, 150*time.Millisecond)
	t2 := newFakeTask("t2", now.Add(30*time.Millisecond), time.Hour, 0)

	s.AddTask(t1)
	s.AddTask(t2)

	require.Eventually(t, func() bool { return t2.runCount() >= 1 }, time.Second, 5*time.Millisecond)

	// t2 was scheduled for +30ms but t1 (at +20ms) sleeps 150ms; since
	// the executor is cooperative (one task at a time via isTaskWorking),
	// t2 cannot start until t1's Do returns.
	t2At := t2.firstRunAt()
	t1At := t1.firstRunAt()
	assert.True(t, t2At.Sub(t1At) >= 100*time.Millisecond, "t2 ran at %v, t1 at %v", t2At, t1At)
}

func TestDeleteTaskRemovesFromQueue(t *testing.T) {
	s := New()
	task := newFakeTask("t1", time.Now().Add(time.Hour), time.Hour, 0)
	s.AddTask(task)

	require.NoError(t, s.DeleteTask("t1"))
	assert.Equal(t, 0, s.queue.Len())

	err := s.DeleteTask("t1")
	assert.Error(t, err)
}

func TestUpdateConfigDoesNotDisturbQueue(t *testing.T) {
	s := New()
	task := newFakeTask("t1", time.Now().Add(time.Hour), time.Hour, 0)
	s.AddTask(task)

	s.UpdateConfig(`{"env":1}`, `{"settings":1}`)
	assert.Equal(t, 1, s.queue.Len())
}

func TestLastExecutionRecordsOutcome(t *testing.T) {
	s := New()
	s.Start()
	defer s.Stop()

	task := newFakeTask("t1", time.Now().Add(10*time.Millisecond), time.Hour, 0)
	s.AddTask(task)

	require.Eventually(t, func() bool {
		_, ok := s.LastExecution("t1")
		return ok
	}, time.Second, 5*time.Millisecond)

	exec, ok := s.LastExecution("t1")
	require.True(t, ok)
	assert.Equal(t, "ok", exec.Result)
	assert.NoError(t, exec.Err)
}
