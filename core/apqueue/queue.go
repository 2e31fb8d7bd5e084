package apqueue

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/piggyclaim/piggyclaim/pkg/logger"
	"github.com/piggyclaim/piggyclaim/storage"
)

// Queue is a durable FIFO of jobs stored in badger under
// q:<prefix>:<status>:<zero padded id>.
type Queue struct {
	db storage.Storage

	seq    storage.Sequence
	dbLock sync.Mutex

	eventCh   chan uint64
	closeCh   chan struct{}
	closeOnce sync.Once

	prefix string
	logger logger.Logger
}

type QueueOption struct {
	Prefix string
}

// New creates a queue, call MustStart before use
func New(db storage.Storage, log logger.Logger, opts *QueueOption) *Queue {
	q := Queue{
		db:     db,
		dbLock: sync.Mutex{},

		eventCh: make(chan uint64, 1000),
		closeCh: make(chan struct{}),

		prefix: "d",
		logger: logger.EnsureLogger(log),
	}

	if opts != nil && opts.Prefix != "" {
		q.prefix = opts.Prefix
	}

	return &q
}

// start Queue, panic if there is any error
func (q *Queue) MustStart() error {
	var err error
	q.seq, err = q.db.GetSequence([]byte("q:seq:"+q.prefix), 1000)

	if err != nil {
		panic(err)
	}

	return err
}

// When a queue is killed abruptly, jobs can be left in progress.
// Recover moves them back to pending and fires them off again.
func (q *Queue) Recover() (int, error) {
	q.dbLock.Lock()
	kvs, err := q.db.GetByPrefix(q.getQueueKeyPrefix(jobInProgress))
	if err != nil {
		q.dbLock.Unlock()
		return 0, err
	}

	recovered := make([]uint64, 0, len(kvs))
	for _, kv := range kvs {
		job, err := decodeJob(kv.Value)
		if err != nil {
			q.logger.Error("cannot decode stuck job", "key", string(kv.Key), "error", err)
			continue
		}

		if err := q.db.Move(kv.Key, q.getJobKey(jobPending, job.ID)); err != nil {
			q.dbLock.Unlock()
			return len(recovered), err
		}
		recovered = append(recovered, job.ID)
	}
	q.dbLock.Unlock()

	for _, id := range recovered {
		q.notify(id)
	}

	if len(recovered) > 0 {
		q.logger.Info("recovered in progress jobs", "prefix", q.prefix, "count", len(recovered))
	}
	return len(recovered), nil
}

// stop Queue and Release resources
func (q *Queue) Stop() error {
	q.closeOnce.Do(func() {
		close(q.closeCh)
	})

	if q.seq == nil {
		return nil
	}
	// release sequence to avoid wasting counter
	return q.seq.Release()
}

func getNextSeq(seq storage.Sequence) (num uint64, err error) {
	defer func() {
		r := recover()
		if r != nil {
			// recover from panic and send err instead
			err = fmt.Errorf("sequence failure: %v", r)
		}
	}()

	num, err = seq.Next()
	return num, err
}

// notify wakes the worker without blocking. A full channel is fine, the
// worker also polls.
func (q *Queue) notify(id uint64) {
	select {
	case q.eventCh <- id:
	default:
	}
}

// Enqueue adds a new Job to the Pending queue
func (q *Queue) Enqueue(jobType string, name string, data []byte) (*Job, error) {
	if q.seq == nil {
		return nil, errors.New("queue is not started")
	}

	num, err := getNextSeq(q.seq)
	if err != nil {
		return nil, err
	}

	j := &Job{
		Type:       jobType,
		Name:       name,
		Data:       data,
		ExternalID: ulid.Make().String(),
		CreatedAt:  time.Now().UnixMilli(),

		ID: num + 1,
	}

	b, err := encodeJob(j)
	if err != nil {
		return nil, err
	}

	if err := q.db.Set(q.getJobKey(jobPending, j.ID), b); err != nil {
		return nil, err
	}
	q.notify(j.ID)

	return j, nil
}

// Dequeue moves the next pending job from the pending status to inprogress.
// It returns nil when there is no pending job.
func (q *Queue) Dequeue() (*Job, error) {
	q.dbLock.Lock()
	defer q.dbLock.Unlock()

	prefix := q.getQueueKeyPrefix(jobPending)
	k, v, err := q.db.FirstKVHasPrefix(prefix)

	if err != nil {
		return nil, err
	}

	// there is no more job
	if k == nil {
		return nil, nil
	}

	j, err := decodeJob(v)
	if err != nil {
		// park it so it does not block the head of the queue
		_ = q.db.Move(k, append(q.getQueueKeyPrefix(jobFailed), k[len(prefix):]...))
		return nil, fmt.Errorf("corrupted job %s: %w", k, err)
	}

	// Move from from Pending queue to InProgress queue
	err = q.db.Move(k, q.getJobKey(jobInProgress, j.ID))

	return j, err
}

// markJobDone moves a job from the inprogress status to complete/failed
func (q *Queue) markJobDone(job *Job, status jobStatus) error {
	id := job.ID
	if status != jobComplete && status != jobFailed {
		return errors.New("Can only move to Complete or Failed Status")
	}

	src := q.getJobKey(jobInProgress, id)
	dest := q.getJobKey(status, id)
	q.dbLock.Lock()
	defer q.dbLock.Unlock()

	err := q.db.Move(src, dest)
	return err
}

// Counts returns the number of jobs per status.
func (q *Queue) Counts() (map[string]int64, error) {
	out := make(map[string]int64, 4)
	for _, status := range []jobStatus{jobPending, jobInProgress, jobComplete, jobFailed} {
		n, err := q.db.CountKeysByPrefix(q.getQueueKeyPrefix(status))
		if err != nil {
			return nil, err
		}
		out[status.HumanReadable()] = n
	}
	return out, nil
}

func (q *Queue) pendingOrActive() (int64, error) {
	pending, err := q.db.CountKeysByPrefix(q.getQueueKeyPrefix(jobPending))
	if err != nil {
		return 0, err
	}
	active, err := q.db.CountKeysByPrefix(q.getQueueKeyPrefix(jobInProgress))
	if err != nil {
		return 0, err
	}
	return pending + active, nil
}

func (q *Queue) getQueueKeyPrefix(status jobStatus) []byte {
	return []byte(fmt.Sprintf("q:%s:%v:", q.prefix, uint8(status)))
}

func (q *Queue) getJobKey(status jobStatus, jID uint64) []byte {
	return append(q.getQueueKeyPrefix(status), []byte(fmt.Sprintf("%020d", jID))...)
}
