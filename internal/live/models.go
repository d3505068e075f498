package live

import (
	"time"

	"backend-pushup/internal/rep"
	"backend-pushup/internal/session"
)

const StatusEnded = "Session ended"

// StartRequest optionally overrides the server's detection settings for one
// session.
type StartRequest struct {
	Thresholds    *rep.Thresholds `json:"thresholds,omitempty"`
	MinConfidence *float64        `json:"min_confidence,omitempty"`
}

type Started struct {
	ID        string           `json:"id"`
	AthleteID string           `json:"athlete_id"`
	Snapshot  session.Snapshot `json:"snapshot"`
}

type FrameResult struct {
	SessionID string           `json:"session_id"`
	Decision  session.Decision `json:"decision"`
}

type StopResult struct {
	SessionID  string    `json:"session_id"`
	FinalCount uint64    `json:"final_count"`
	StoppedAt  time.Time `json:"stopped_at"`
}
