package workout

import "time"

type Workout struct {
	ID          string    `json:"id"`
	AthleteID   string    `json:"athlete_id"`
	SessionID   string    `json:"session_id,omitempty"`
	Reps        int       `json:"reps"`
	PerformedAt time.Time `json:"performed_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// DayTotal is the rep sum for one calendar day of a week.
type DayTotal struct {
	Weekday string    `json:"weekday"`
	Date    time.Time `json:"date"`
	Reps    int       `json:"reps"`
}

type Week struct {
	Start    time.Time  `json:"start"`
	Days     []DayTotal `json:"days"`
	Total    int        `json:"total"`
	ChartMax int        `json:"chart_max"`
}
