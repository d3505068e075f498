package pose

import "fmt"

// Reason explains why no angle could be measured for a sample.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonNoBody          Reason = "no_body_detected"
	ReasonLowConfidence   Reason = "low_confidence"
	ReasonEstimationError Reason = "estimation_error"
)

// Signal is the outcome of one estimation attempt: a measured elbow angle
// in degrees, or an indeterminate result carrying its reason. It is the only
// thing the repetition state machine sees of a frame.
type Signal struct {
	Angle  float64 `json:"angle,omitempty"`
	Reason Reason  `json:"reason,omitempty"`
}

func Measured(angle float64) Signal {
	return Signal{Angle: angle}
}

func Indeterminate(reason Reason) Signal {
	return Signal{Reason: reason}
}

func (s Signal) IsMeasured() bool {
	return s.Reason == ReasonNone
}

func (s Signal) String() string {
	if s.IsMeasured() {
		return fmt.Sprintf("measured(%.1f)", s.Angle)
	}
	return fmt.Sprintf("indeterminate(%s)", s.Reason)
}
