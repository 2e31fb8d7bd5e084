package apqueue

import (
	"time"
)

// CleanupStats holds statistics about the cleanup operation
type CleanupStats struct {
	TotalJobs     int
	OrphanedJobs  int
	RemovedJobs   int
	FailedCleanup int
	Duration      time.Duration
}

// CleanupOrphanedJobs removes finished jobs, and queued jobs for which exists
// returns false. A notification for a wallet dropped by a regenerated
// database is such an orphan.
func (q *Queue) CleanupOrphanedJobs(exists func(job *Job) bool) (*CleanupStats, error) {
	startTime := time.Now()
	stats := &CleanupStats{}

	q.logger.Debug("starting orphaned jobs cleanup")

	for _, status := range []jobStatus{jobPending, jobComplete, jobFailed} {
		prefix := q.getQueueKeyPrefix(status)

		// Get all jobs with this status
		kvs, err := q.db.GetByPrefix(prefix)
		if err != nil {
			q.logger.Error("failed to get jobs for cleanup", "status", status.HumanReadable(), "error", err)
			stats.FailedCleanup++
			continue
		}

		for _, kv := range kvs {
			stats.TotalJobs++

			job, err := decodeJob(kv.Value)
			if err != nil {
				q.logger.Error("failed to decode job during cleanup", "key", string(kv.Key), "error", err)
				stats.FailedCleanup++
				continue
			}

			// finished jobs only serve as a log, pending ones are kept while they still have a target
			if status == jobPending && (exists == nil || exists(job)) {
				continue
			}
			if status == jobPending {
				stats.OrphanedJobs++
			}

			q.dbLock.Lock()
			if delErr := q.db.Delete(kv.Key); delErr != nil {
				q.logger.Error("failed to remove job", "job_id", job.ID, "job_name", job.Name, "error", delErr)
				stats.FailedCleanup++
			} else {
				stats.RemovedJobs++
				q.logger.Debug("removed job",
					"job_id", job.ID,
					"job_name", job.Name,
					"status", status.HumanReadable())
			}
			q.dbLock.Unlock()
		}
	}

	stats.Duration = time.Since(startTime)

	q.logger.Info("jobs cleanup completed",
		"total_jobs", stats.TotalJobs,
		"orphaned_jobs", stats.OrphanedJobs,
		"removed_jobs", stats.RemovedJobs,
		"failed_cleanup", stats.FailedCleanup,
		"duration_ms", stats.Duration.Milliseconds())

	return stats, nil
}

// SchedulePeriodicCleanup runs cleanup every interval until the queue stops
func (q *Queue) SchedulePeriodicCleanup(interval time.Duration, exists func(job *Job) bool) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				if stats, err := q.CleanupOrphanedJobs(exists); err != nil {
					q.logger.Error("periodic cleanup failed", "error", err)
				} else if stats.RemovedJobs > 0 {
					q.logger.Info("periodic cleanup removed jobs",
						"removed_jobs", stats.RemovedJobs)
				}
			case <-q.closeCh:
				ticker.Stop()
				return
			}
		}
	}()
}
