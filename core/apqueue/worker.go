package apqueue

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/piggyclaim/piggyclaim/pkg/logger"
	"github.com/piggyclaim/piggyclaim/pkg/timekeeper"
)

const defaultPollInterval = time.Second

type JobProcessor interface {
	Perform(ctx context.Context, j *Job) error
}

type Worker struct {
	q *Queue

	processorRegistry map[string]JobProcessor
	logger            logger.Logger

	pollInterval time.Duration
	done         chan struct{}
}

func (w *Worker) RegisterProcessor(jobType string, processor JobProcessor) error {
	if _, exists := w.processorRegistry[jobType]; exists {
		return fmt.Errorf("processor for %s already registered", jobType)
	}
	w.processorRegistry[jobType] = processor

	return nil
}

// A worker monitors queue, and use a processor to perform job
func NewWorker(q *Queue) *Worker {
	w := &Worker{
		q:      q,
		logger: q.logger,

		processorRegistry: make(map[string]JobProcessor),
		pollInterval:      defaultPollInterval,
		done:              make(chan struct{}),
	}

	return w
}

// drain processes pending jobs until the queue is empty
func (w *Worker) drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := w.q.Dequeue()
		if err != nil {
			w.logger.Error("failed to dequeue", "error", err)
			return
		}
		if job == nil {
			return
		}

		w.perform(ctx, job)
	}
}

func (w *Worker) perform(ctx context.Context, job *Job) {
	err := w.safePerform(ctx, job)
	w.logger.Debug("processed job", "job_id", job.ID, "external_id", job.ExternalID, "job_name", job.Name)

	if err == nil {
		if err := w.q.markJobDone(job, jobComplete); err != nil {
			w.logger.Error("cannot mark job complete", "job_id", job.ID, "error", err)
		}
		w.logger.Debug("succesfully perform job", "job_id", job.ID, "job_name", job.Name)
		return
	}

	if err := w.q.markJobDone(job, jobFailed); err != nil {
		w.logger.Error("cannot mark job failed", "job_id", job.ID, "error", err)
	}
	w.logger.Error("failed to perform job", "error", err, "job_id", job.ID, "job_name", job.Name)
}

func (w *Worker) safePerform(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panic: %v\n%s", r, debug.Stack())
		}
	}()

	processor, ok := w.processorRegistry[job.Type]
	if !ok {
		return fmt.Errorf("unsupported job type %q", job.Type)
	}
	return processor.Perform(ctx, job)
}

func (w *Worker) loop(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.q.eventCh:
			w.drain(ctx)
		case <-ticker.C:
			w.drain(ctx)
		case <-ctx.Done():
			return
		case <-w.q.closeCh: // loop was stopped
			return
		}
	}
}

// MustStart runs the worker loop until ctx is done or the queue is stopped.
func (w *Worker) MustStart(ctx context.Context) {
	go func() {
		w.loop(ctx)
	}()
}

// Wait blocks until every pending and in progress job is handled or ctx is
// done. Call it before stopping the queue to flush outstanding jobs.
func (w *Worker) Wait(ctx context.Context) error {
	for {
		remaining, err := w.q.pendingOrActive()
		if err != nil {
			return err
		}
		// in progress jobs are counted until marked done
		if remaining == 0 {
			return nil
		}

		w.q.notify(0)
		if err := timekeeper.Sleep(ctx, 50*time.Millisecond); err != nil {
			return fmt.Errorf("%d jobs left in queue: %w", remaining, err)
		}
	}
}

// Done is closed when the worker loop has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}
