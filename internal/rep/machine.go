// Package rep counts push-up repetitions from a stream of elbow angle
// signals using a two-threshold hysteresis state machine.
package rep

import (
	"errors"
	"fmt"
	"math"

	"backend-pushup/internal/pose"
)

type State int

const (
	Up State = iota
	Down
)

func (s State) String() string {
	if s == Down {
		return "down"
	}
	return "up"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	*s = ParseState(string(text))
	return nil
}

// ParseState maps "down" to Down and anything else to Up.
func ParseState(s string) State {
	if s == "down" {
		return Down
	}
	return Up
}

const (
	DefaultDownThreshold = 90.0
	DefaultUpThreshold   = 145.0

	StatusDetecting = "Detecting…"
)

var ErrInvalidThresholds = errors.New("down threshold must be below up threshold")

// Thresholds bound the hysteresis band in degrees. Angles strictly below
// Down mark the bottom of a repetition; angles strictly above Up complete it.
type Thresholds struct {
	Down float64 `json:"down"`
	Up   float64 `json:"up"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{Down: DefaultDownThreshold, Up: DefaultUpThreshold}
}

func (t Thresholds) Validate() error {
	if math.IsNaN(t.Down) || math.IsNaN(t.Up) {
		return fmt.Errorf("%w: thresholds must be numbers", ErrInvalidThresholds)
	}
	if t.Down >= t.Up {
		return fmt.Errorf("%w: down=%.1f up=%.1f", ErrInvalidThresholds, t.Down, t.Up)
	}
	if t.Down < 0 || t.Up > 180 {
		return fmt.Errorf("%w: thresholds must lie within [0,180]", ErrInvalidThresholds)
	}
	return nil
}

// Session is the mutable counting state of one exercise session. Count only
// grows between resets. Status is for display and never read by Transition.
type Session struct {
	State  State  `json:"state"`
	Count  uint64 `json:"count"`
	Status string `json:"status"`
}

func NewSession() Session {
	var s Session
	s.Reset()
	return s
}

func (s *Session) Reset() {
	s.State = Up
	s.Count = 0
	s.Status = StatusDetecting
}

// Transition applies one signal to s and returns the resulting status.
// Indeterminate signals never change State or Count.
func Transition(sig pose.Signal, s *Session, th Thresholds) string {
	s.Status = step(sig, s, th)
	return s.Status
}

func step(sig pose.Signal, s *Session, th Thresholds) string {
	if !sig.IsMeasured() {
		return IndeterminateStatus(sig.Reason)
	}

	// displayed degrees are truncated; comparisons use the raw angle
	deg := int(sig.Angle)
	switch {
	case sig.Angle < th.Down:
		s.State = Down
		return fmt.Sprintf("DOWN (%d°)", deg)
	case sig.Angle > th.Up:
		if s.State == Down {
			s.State = Up
			s.Count++
			return fmt.Sprintf("UP (%d°) • Rep +1", deg)
		}
		return fmt.Sprintf("UP (%d°)", deg)
	default:
		return fmt.Sprintf("Moving (%d°)", deg)
	}
}

func IndeterminateStatus(reason pose.Reason) string {
	switch reason {
	case pose.ReasonNoBody:
		return "No body detected"
	case pose.ReasonLowConfidence:
		return "Body not fully visible"
	default:
		return "Pose estimation failed"
	}
}
