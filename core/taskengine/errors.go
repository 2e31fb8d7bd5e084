package taskengine

import "errors"

var (
	ErrUnknownTask = errors.New("unknown task")
	ErrNoTracker   = errors.New("engine has no progress tracker")
)

const (
	TaskStatusCompleted  = "completed"
	TaskStatusIncomplete = "incomplete"
	TaskStatusError      = "error"
	TaskStatusUnknown    = "unknown"
)
