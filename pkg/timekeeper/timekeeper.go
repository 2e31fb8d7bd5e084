package timekeeper

import (
	"fmt"
	"time"
)

type ElapsingStatus int

const (
	Running ElapsingStatus = 1
	Pause   ElapsingStatus = 2
)

// Elapsing measures wall time on a Clock. Pausing stops the count until
// Resume. Since is non destructive, Report resets the checkpoint.
type Elapsing struct {
	clock      Clock
	checkpoint time.Time

	carryOn time.Duration

	status ElapsingStatus
}

func NewElapsing(clock Clock) *Elapsing {
	if clock == nil {
		clock = RealClock()
	}

	return &Elapsing{
		clock:      clock,
		checkpoint: clock.Now(),
		status:     Running,
	}
}

func (e *Elapsing) Pause() error {
	if e.status == Pause {
		return fmt.Errorf("elapsing is pause already")
	}

	e.carryOn = e.Report()
	e.status = Pause

	return nil
}

func (e *Elapsing) Resume() error {
	if e.status != Pause {
		return fmt.Errorf("elapsing is not pause")
	}

	e.checkpoint = e.clock.Now()
	e.status = Running

	return nil
}

func (e *Elapsing) Reset() {
	e.status = Running
	e.carryOn = 0
	e.checkpoint = e.clock.Now()
}

// Since returns the running total without moving the checkpoint.
func (e *Elapsing) Since() time.Duration {
	if e.status == Pause {
		return e.carryOn
	}

	return e.clock.Now().Sub(e.checkpoint) + e.carryOn
}

func (e *Elapsing) Report() time.Duration {
	if e.status == Pause {
		return time.Duration(0)
	}

	now := e.clock.Now()
	total := now.Sub(e.checkpoint) + e.carryOn

	e.carryOn = time.Duration(0)
	e.checkpoint = now

	return total
}
