package workout

import (
	"context"
	"time"
)

// Recorder persists the final count of a live session for one athlete.
type Recorder struct {
	svc       *Service
	athleteID string
	sessionID string
}

func (s *Service) Recorder(athleteID, sessionID string) *Recorder {
	return &Recorder{svc: s, athleteID: athleteID, sessionID: sessionID}
}

func (r *Recorder) RecordWorkout(ctx context.Context, reps uint64, at time.Time) error {
	_, err := r.svc.Create(ctx, Workout{
		AthleteID:   r.athleteID,
		SessionID:   r.sessionID,
		Reps:        int(reps),
		PerformedAt: at,
	})
	return err
}
