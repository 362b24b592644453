package legacy

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalsd/vitalsd/internal/model"
)

func TestParseDate_AcceptedLayouts(t *testing.T) {
	cases := []string{
		"2025-09-08T00:48:21Z",
		"2025-09-08T00:48:21-05:00",
		"2025-09-08 00:48:21 -0500",
		"2025-09-08 00:48:21",
		"2025-09-08T00:48:21-0500",
		"2025-09-08",
	}
	for _, c := range cases {
		got, err := ParseDate(c)
		require.NoErrorf(t, err, "layout %q", c)
		assert.Equal(t, time.UTC, got.Location())
	}

	_, err := ParseDate("08/09/2025")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestNormalize_ListShape(t *testing.T) {
	n := New(zerolog.Nop())
	body := []byte(`{"data":{"metrics":[
		{"name":"heart_rate","units":"bpm","data":[
			{"date":"2025-09-08 00:48:21 -0500","qty":72,"source":"Apple Watch"},
			{"date":"2025-09-08 00:49:21 -0500","qty":74,"source":"Apple Watch"}
		]},
		{"name":"sleep_analysis","data":[
			{"date":"2025-09-08","start":"2025-09-07 23:00:00","end":"2025-09-08 07:00:00"}
		]}
	]}}`)

	res, err := n.Normalize(body)
	require.NoError(t, err)
	require.Len(t, res.Payload.Data.Metrics, 3)
	assert.Zero(t, res.Dropped)

	hr, ok := res.Payload.Data.Metrics[0].Payload.(*model.HeartRateMetric)
	require.True(t, ok)
	require.NotNil(t, hr.HeartRate)
	assert.Equal(t, int16(72), *hr.HeartRate)
	require.NotNil(t, hr.SourceDevice)
	assert.Equal(t, "Apple Watch", *hr.SourceDevice)

	sleep, ok := res.Payload.Data.Metrics[2].Payload.(*model.SleepMetric)
	require.True(t, ok)
	assert.Equal(t, int32(480), sleep.DurationMinutes)
}

func TestNormalize_MapShapeWithHKIdentifiers(t *testing.T) {
	n := New(zerolog.Nop())
	body := []byte(`{"data":{"metrics":{
		"HKQuantityTypeIdentifierStepCount":[
			{"date":"2025-09-08","qty":11423,"units":"count","source":"iPhone"}
		],
		"HKQuantityTypeIdentifierOxygenSaturation":[
			{"date":"2025-09-08T08:00:00Z","qty":0.97}
		]
	}}}`)

	res, err := n.Normalize(body)
	require.NoError(t, err)
	require.Len(t, res.Payload.Data.Metrics, 2)

	var sawSteps, sawSpO2 bool
	for _, m := range res.Payload.Data.Metrics {
		switch p := m.Payload.(type) {
		case *model.ActivityMetric:
			sawSteps = true
			require.NotNil(t, p.StepCount)
			assert.Equal(t, int32(11423), *p.StepCount)
		case *model.RespiratoryMetric:
			sawSpO2 = true
			require.NotNil(t, p.OxygenSaturation)
			// fraction scaled to percent
			assert.InDelta(t, 97.0, *p.OxygenSaturation, 0.001)
		}
	}
	assert.True(t, sawSteps)
	assert.True(t, sawSpO2)
}

func TestNormalize_UnmappedMetricsAreCounted(t *testing.T) {
	n := New(zerolog.Nop())
	body := []byte(`{"data":{"metrics":[
		{"name":"quantum_flux","data":[{"date":"2025-09-08","qty":1},{"date":"2025-09-09","qty":2}]},
		{"name":"heart_rate","data":[{"date":"2025-09-08","qty":70}]}
	]}}`)

	res, err := n.Normalize(body)
	require.NoError(t, err)
	assert.Len(t, res.Payload.Data.Metrics, 1)
	assert.Equal(t, 2, res.Dropped)
}

func TestNormalize_Workouts(t *testing.T) {
	n := New(zerolog.Nop())
	body := []byte(`{"data":{"metrics":[
		{"name":"heart_rate","data":[{"date":"2025-09-08","qty":70}]}
	],"workouts":[
		{"name":"Running","start":"2025-09-08 06:00:00","end":"2025-09-08 06:45:00","source":"Apple Watch"},
		{"name":"Broken","start":"2025-09-08 06:00:00"}
	]}}`)

	res, err := n.Normalize(body)
	require.NoError(t, err)
	require.Len(t, res.Payload.Data.Workouts, 1)
	assert.Equal(t, "Running", res.Payload.Data.Workouts[0].WorkoutType)
	assert.Equal(t, int64(45), res.Payload.Data.Workouts[0].DurationMinutes())
	assert.Equal(t, 1, res.Dropped)
}

func TestNormalize_RejectsUnknownShape(t *testing.T) {
	n := New(zerolog.Nop())

	_, err := n.Normalize([]byte(`{"rows":[1,2,3]}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrValidation)
}
