package apqueue

import (
	"encoding/json"
	"fmt"
)

// jobStatus Enum Type
type jobStatus uint8

const (
	// jobPending : waiting to be processed
	jobPending jobStatus = iota
	// jobInProgress : processing in progress
	jobInProgress
	// jobComplete : processing complete
	jobComplete
	// jobFailed : processing errored out
	jobFailed
)

func (s jobStatus) HumanReadable() string {
	switch s {
	case jobPending:
		return "pending"
	case jobInProgress:
		return "in_progress"
	case jobComplete:
		return "complete"
	case jobFailed:
		return "failed"
	}
	return fmt.Sprintf("unknown(%d)", s)
}

type Job struct {
	// external reference id, lets a caller correlate log lines without
	// decoding the job data
	ExternalID string `json:"external_id"`
	Name       string `json:"name"`
	Data       []byte `json:"data"`
	Type       string `json:"type"`
	CreatedAt  int64  `json:"created_at"`

	// id of the job in the queue system
	// This ID is generate by this package in a sequence and is unique per queue
	ID uint64 `json:"id"`
}

func encodeJob(j *Job) ([]byte, error) {
	return json.Marshal(j)
}

func decodeJob(b []byte) (*Job, error) {
	j := &Job{}
	err := json.Unmarshal(b, j)
	return j, err
}
