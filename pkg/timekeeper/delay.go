package timekeeper

import (
	"fmt"
	"math/rand"
	"time"
)

// Delay is a pause bound in seconds. In yaml it is either a single number
// (fixed pause) or a [min, max] pair (uniformly random pause).
type Delay struct {
	Min float64
	Max float64
}

func Fixed(seconds float64) Delay {
	return Delay{Min: seconds, Max: seconds}
}

func Between(min, max float64) Delay {
	return Delay{Min: min, Max: max}
}

func (d *Delay) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var pair []float64
	if err := unmarshal(&pair); err == nil {
		if len(pair) != 2 {
			return fmt.Errorf("delay range must have exactly 2 values, got %d", len(pair))
		}
		d.Min, d.Max = pair[0], pair[1]
		return d.Validate()
	}

	var single float64
	if err := unmarshal(&single); err != nil {
		return fmt.Errorf("delay must be a number or a [min, max] pair: %w", err)
	}
	d.Min, d.Max = single, single
	return d.Validate()
}

func (d Delay) Validate() error {
	if d.Min < 0 || d.Max < 0 {
		return fmt.Errorf("delay cannot be negative: %v", d)
	}
	if d.Min > d.Max {
		return fmt.Errorf("delay min %v is greater than max %v", d.Min, d.Max)
	}
	return nil
}

func (d Delay) IsFixed() bool {
	return d.Min == d.Max
}

// Pick draws a duration from the bound.
func (d Delay) Pick() time.Duration {
	if d.IsFixed() {
		return seconds(d.Min)
	}
	return seconds(d.Min + rand.Float64()*(d.Max-d.Min))
}

func (d Delay) String() string {
	if d.IsFixed() {
		return fmt.Sprintf("%gs", d.Min)
	}
	return fmt.Sprintf("[%gs, %gs]", d.Min, d.Max)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
