package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/vitalsd/vitalsd/internal/model"
)

// --- Queries ---
type queries struct{ db *sql.DB }

func (q *queries) HeartRateSeries(ctx context.Context, userID string, from, to time.Time, limit int) ([]*model.HeartRateMetric, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := q.db.QueryContext(ctx, `
        SELECT recorded_at, heart_rate, resting_heart_rate, heart_rate_variability_ms, context, source_device
        FROM heart_rate_metrics
        WHERE user_id=$1 AND recorded_at >= $2 AND recorded_at < $3
        ORDER BY recorded_at DESC
        LIMIT $4
    `, userID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*model.HeartRateMetric
	for rows.Next() {
		var m model.HeartRateMetric
		if err := rows.Scan(&m.RecordedAt, &m.HeartRate, &m.RestingHeartRate,
			&m.HRVMillis, &m.Context, &m.SourceDevice); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (q *queries) Summary(ctx context.Context, userID string, from, to time.Time) (*model.HealthSummary, error) {
	out := &model.HealthSummary{UserID: userID, From: from, To: to}

	row := q.db.QueryRowContext(ctx, `
        SELECT count(*), avg(heart_rate)
        FROM heart_rate_metrics
        WHERE user_id=$1 AND recorded_at >= $2 AND recorded_at < $3
    `, userID, from, to)
	if err := row.Scan(&out.HeartRateCount, &out.AvgHeartRate); err != nil {
		return nil, err
	}

	row = q.db.QueryRowContext(ctx, `
        SELECT count(*), COALESCE(sum(duration_minutes), 0)
        FROM sleep_metrics
        WHERE user_id=$1 AND sleep_start >= $2 AND sleep_start < $3
    `, userID, from, to)
	if err := row.Scan(&out.SleepSessionCount, &out.TotalSleepMinutes); err != nil {
		return nil, err
	}

	row = q.db.QueryRowContext(ctx, `
        SELECT count(*), COALESCE(sum(step_count), 0)
        FROM activity_metrics
        WHERE user_id=$1 AND recorded_at >= $2 AND recorded_at < $3
    `, userID, from, to)
	if err := row.Scan(&out.ActivityDayCount, &out.TotalSteps); err != nil {
		return nil, err
	}

	row = q.db.QueryRowContext(ctx, `
        SELECT count(*), COALESCE(sum(EXTRACT(EPOCH FROM (ended_at - started_at)) / 60)::bigint, 0)
        FROM workouts
        WHERE user_id=$1 AND started_at >= $2 AND started_at < $3
    `, userID, from, to)
	if err := row.Scan(&out.WorkoutCount, &out.TotalWorkoutMinutes); err != nil {
		return nil, err
	}

	row = q.db.QueryRowContext(ctx, `
        SELECT max(received_at) FROM raw_ingestions WHERE user_id=$1
    `, userID)
	if err := row.Scan(&out.LastIngestAt); err != nil {
		return nil, err
	}

	return out, nil
}
