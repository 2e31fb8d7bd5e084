package apqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piggyclaim/piggyclaim/core/testutil"
	"github.com/piggyclaim/piggyclaim/storage"
)

func newQueue(t *testing.T, db storage.Storage) *Queue {
	t.Helper()
	q := New(db, nil, &QueueOption{Prefix: "test"})
	require.NoError(t, q.MustStart())
	return q
}

func TestEnqueueDequeueOrder(t *testing.T) {
	q := newQueue(t, testutil.MustDB(t))
	defer q.Stop()

	first, err := q.Enqueue("notify", "a", []byte("1"))
	require.NoError(t, err)
	second, err := q.Enqueue("notify", "b", []byte("2"))
	require.NoError(t, err)
	assert.Less(t, first.ID, second.ID)
	assert.NotEmpty(t, first.ExternalID)

	job, err := q.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, "a", job.Name)
	assert.Equal(t, []byte("1"), job.Data)

	job, err = q.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, "b", job.Name)

	job, err = q.Dequeue()
	require.NoError(t, err)
	assert.Nil(t, job)

	counts, err := q.Counts()
	require.NoError(t, err)
	assert.EqualValues(t, 2, counts["in_progress"])
}

func TestRecoverMovesStuckJobsBack(t *testing.T) {
	db := testutil.MustDB(t)
	q := newQueue(t, db)

	_, err := q.Enqueue("notify", "stuck", nil)
	require.NoError(t, err)
	job, err := q.Dequeue()
	require.NoError(t, err)
	require.NotNil(t, job)
	require.NoError(t, q.Stop())

	// a fresh queue on the same store, as after a crash
	restarted := newQueue(t, db)
	defer restarted.Stop()

	n, err := restarted.Recover()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	again, err := restarted.Dequeue()
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, job.ID, again.ID)
}

type recordingProcessor struct {
	mu    sync.Mutex
	names []string
	fail  map[string]bool
}

func (p *recordingProcessor) Perform(ctx context.Context, j *Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.names = append(p.names, j.Name)
	if p.fail[j.Name] {
		return errors.New("delivery failed")
	}
	if j.Name == "panic" {
		panic("processor bug")
	}
	return nil
}

func TestWorkerProcessesJobs(t *testing.T) {
	q := newQueue(t, testutil.MustDB(t))
	defer q.Stop()

	processor := &recordingProcessor{fail: map[string]bool{"bad": true}}
	worker := NewWorker(q)
	require.NoError(t, worker.RegisterProcessor("notify", processor))
	assert.Error(t, worker.RegisterProcessor("notify", processor))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.MustStart(ctx)

	for _, name := range []string{"ok", "bad", "panic"} {
		_, err := q.Enqueue("notify", name, nil)
		require.NoError(t, err)
	}
	_, err := q.Enqueue("unknown", "orphan", nil)
	require.NoError(t, err)

	waitCtx, waitCancel := context.WithTimeout(ctx, 5*time.Second)
	defer waitCancel()
	require.NoError(t, worker.Wait(waitCtx))

	counts, err := q.Counts()
	require.NoError(t, err)
	assert.EqualValues(t, 0, counts["pending"])
	assert.EqualValues(t, 0, counts["in_progress"])
	assert.EqualValues(t, 1, counts["complete"])
	assert.EqualValues(t, 3, counts["failed"])

	processor.mu.Lock()
	assert.Equal(t, []string{"ok", "bad", "panic"}, processor.names)
	processor.mu.Unlock()

	cancel()
	select {
	case <-worker.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestCleanupOrphanedJobs(t *testing.T) {
	q := newQueue(t, testutil.MustDB(t))
	defer q.Stop()

	_, err := q.Enqueue("notify", "done", nil)
	require.NoError(t, err)
	job, err := q.Dequeue()
	require.NoError(t, err)
	require.NoError(t, q.markJobDone(job, jobComplete))

	_, err = q.Enqueue("notify", "keep", nil)
	require.NoError(t, err)
	_, err = q.Enqueue("notify", "gone", nil)
	require.NoError(t, err)

	stats, err := q.CleanupOrphanedJobs(func(job *Job) bool { return job.Name != "gone" })
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalJobs)
	assert.Equal(t, 1, stats.OrphanedJobs)
	assert.Equal(t, 2, stats.RemovedJobs)

	counts, err := q.Counts()
	require.NoError(t, err)
	assert.EqualValues(t, 1, counts["pending"])
	assert.EqualValues(t, 0, counts["complete"])
}

func TestPeriodicCleanupRunsUntilStop(t *testing.T) {
	q := newQueue(t, testutil.MustDB(t))

	_, err := q.Enqueue("notify", "keep", nil)
	require.NoError(t, err)
	_, err = q.Enqueue("notify", "gone", nil)
	require.NoError(t, err)

	q.SchedulePeriodicCleanup(10*time.Millisecond, func(job *Job) bool { return job.Name != "gone" })

	assert.Eventually(t, func() bool {
		counts, err := q.Counts()
		return err == nil && counts["pending"] == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, q.Stop())
}

func TestEnqueueBeforeStart(t *testing.T) {
	q := New(testutil.MustDB(t), nil, nil)
	_, err := q.Enqueue("notify", "x", nil)
	assert.Error(t, err)
}
