package workout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backend-pushup/internal/db"

	"github.com/google/uuid"
)

var ErrInvalidReps = errors.New("reps must be positive")

var weekdays = [7]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

func (s *Service) Create(ctx context.Context, input Workout) (Workout, error) {
	if input.Reps <= 0 {
		return Workout{}, ErrInvalidReps
	}
	if input.PerformedAt.IsZero() {
		input.PerformedAt = time.Now()
	}
	input.ID = uuid.NewString()
	row := s.db.QueryRow(ctx, `
		INSERT INTO workouts (id, athlete_id, session_id, reps, performed_at)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at
	`, input.ID, input.AthleteID, input.SessionID, input.Reps, input.PerformedAt)
	if err := row.Scan(&input.CreatedAt); err != nil {
		return Workout{}, fmt.Errorf("insert workout: %w", err)
	}
	return input, nil
}

func (s *Service) List(ctx context.Context, athleteID string) ([]Workout, error) {
	return s.query(ctx, `
		SELECT id, athlete_id, session_id, reps, performed_at, created_at
		FROM workouts WHERE athlete_id=$1
		ORDER BY performed_at DESC
	`, athleteID)
}

// ListRange returns workouts performed in [from, to).
func (s *Service) ListRange(ctx context.Context, athleteID string, from, to time.Time) ([]Workout, error) {
	return s.query(ctx, `
		SELECT id, athlete_id, session_id, reps, performed_at, created_at
		FROM workouts WHERE athlete_id=$1 AND performed_at >= $2 AND performed_at < $3
		ORDER BY performed_at
	`, athleteID, from, to)
}

func (s *Service) DeleteAll(ctx context.Context, athleteID string) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM workouts WHERE athlete_id=$1`, athleteID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Week sums reps per day for the Monday-based week containing now, in
// now's location.
func (s *Service) Week(ctx context.Context, athleteID string, now time.Time) (Week, error) {
	start := StartOfWeek(now)
	end := start.AddDate(0, 0, 7)

	list, err := s.ListRange(ctx, athleteID, start, end)
	if err != nil {
		return Week{}, err
	}

	week := Week{Start: start, Days: make([]DayTotal, 7)}
	for i := range week.Days {
		week.Days[i] = DayTotal{Weekday: weekdays[i], Date: start.AddDate(0, 0, i)}
	}
	for _, w := range list {
		idx := dayIndex(w.PerformedAt.In(now.Location()))
		week.Days[idx].Reps += w.Reps
		week.Total += w.Reps
	}

	peak := 0
	for _, d := range week.Days {
		peak = max(peak, d.Reps)
	}
	week.ChartMax = ChartCeiling(peak)
	return week, nil
}

func (s *Service) query(ctx context.Context, sql string, args ...any) ([]Workout, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	workouts := []Workout{}
	for rows.Next() {
		var w Workout
		if err := rows.Scan(&w.ID, &w.AthleteID, &w.SessionID, &w.Reps, &w.PerformedAt, &w.CreatedAt); err != nil {
			return nil, err
		}
		workouts = append(workouts, w)
	}
	return workouts, rows.Err()
}

// StartOfWeek returns local midnight of the Monday on or before t.
func StartOfWeek(t time.Time) time.Time {
	y, m, d := t.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return midnight.AddDate(0, 0, -dayIndex(t))
}

// ChartCeiling rounds peak up to the next multiple of 10.
func ChartCeiling(peak int) int {
	if peak <= 0 {
		return 0
	}
	return (peak + 9) / 10 * 10
}

func dayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
