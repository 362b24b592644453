package model

import "time"

// HealthSummary is the aggregate returned by the summary query endpoint.
type HealthSummary struct {
	UserID              string     `json:"user_id"`
	From                time.Time  `json:"from"`
	To                  time.Time  `json:"to"`
	HeartRateCount      int64      `json:"heart_rate_count"`
	AvgHeartRate        *float64   `json:"avg_heart_rate,omitempty"`
	SleepSessionCount   int64      `json:"sleep_session_count"`
	TotalSleepMinutes   int64      `json:"total_sleep_minutes"`
	ActivityDayCount    int64      `json:"activity_day_count"`
	TotalSteps          int64      `json:"total_steps"`
	WorkoutCount        int64      `json:"workout_count"`
	TotalWorkoutMinutes int64      `json:"total_workout_minutes"`
	LastIngestAt        *time.Time `json:"last_ingest_at,omitempty"`
}
