package model

import (
	"fmt"
	"strings"
)

// TaskName identifies a handler. Names are stored in the progress database,
// do not rename existing ones.
type TaskName string

const (
	TaskClaim       TaskName = "CLAIM"
	TaskSwap        TaskName = "SWAP"
	TaskCheckTokens TaskName = "CHECK_TOKENS"
)

var KnownTasks = []TaskName{TaskClaim, TaskSwap, TaskCheckTokens}

func ParseTaskName(s string) (TaskName, error) {
	name := TaskName(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range KnownTasks {
		if name == known {
			return name, nil
		}
	}
	return "", fmt.Errorf("unknown task %q", s)
}

func (t TaskName) String() string {
	return string(t)
}
