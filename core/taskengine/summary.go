package taskengine

import (
	"time"

	"github.com/piggyclaim/piggyclaim/pkg/logger"
)

// Summary describes a finished Run.
type Summary struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	Routes         int `json:"routes"`
	Launched       int `json:"launched"`
	Finished       int `json:"finished"`
	TasksCompleted int `json:"tasks_completed"`
	TasksFailed    int `json:"tasks_failed"`
}

func newSummary(runID string, started, ended time.Time, routes, launched int, results []routeResult) *Summary {
	s := &Summary{
		RunID:     runID,
		StartedAt: started,
		Duration:  ended.Sub(started),
		Routes:    routes,
		Launched:  launched,
	}

	for _, r := range results {
		s.TasksCompleted += r.completed
		s.TasksFailed += r.failed
		if r.finished {
			s.Finished++
		}
	}
	return s
}

// Incomplete is the number of routes that did not get through their tasks.
func (s *Summary) Incomplete() int {
	return s.Routes - s.Finished
}

func (s *Summary) Log(log logger.Logger) {
	kv := []interface{}{
		"routes", s.Routes,
		"finished", s.Finished,
		"tasks_completed", s.TasksCompleted,
		"tasks_failed", s.TasksFailed,
		"duration", s.Duration.Round(time.Millisecond),
	}

	if s.Incomplete() > 0 {
		log.Warn("run finished with incomplete routes", append(kv, "incomplete", s.Incomplete())...)
		return
	}
	logger.Success(log, "all routes finished", kv...)
}
