// Package legacy normalizes historical exporter payload shapes into the
// canonical ingest form. Two shapes survive in the wild: a metric list of
// {name, units, data:[...]} groups, and a map keyed by HealthKit identifier.
package legacy

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vitalsd/vitalsd/internal/model"
)

// Point is one legacy sample. Exporters disagree on which value field they
// populate; qty wins over value when both are present.
type Point struct {
	Date   *string  `json:"date,omitempty"`
	Start  *string  `json:"start,omitempty"`
	End    *string  `json:"end,omitempty"`
	Qty    *float64 `json:"qty,omitempty"`
	Value  *string  `json:"value,omitempty"`
	Units  *string  `json:"units,omitempty"`
	Source *string  `json:"source,omitempty"`
}

// metricGroup is shape 1: a named group of points.
type metricGroup struct {
	Name  string  `json:"name"`
	Units *string `json:"units,omitempty"`
	Data  []Point `json:"data"`
}

type listPayload struct {
	Data struct {
		Metrics  []metricGroup   `json:"metrics"`
		Workouts []legacyWorkout `json:"workouts"`
	} `json:"data"`
}

type mapPayload struct {
	Data struct {
		Metrics  map[string][]Point `json:"metrics"`
		Workouts []legacyWorkout    `json:"workouts"`
	} `json:"data"`
}

type legacyWorkout struct {
	Name         *string  `json:"name,omitempty"`
	Start        *string  `json:"start,omitempty"`
	End          *string  `json:"end,omitempty"`
	Source       *string  `json:"source,omitempty"`
	Energy       *float64 `json:"total_energy_kcal,omitempty"`
	ActiveEnergy *float64 `json:"active_energy_kcal,omitempty"`
	Dist         *float64 `json:"distance_meters,omitempty"`
}

// legacyDateFormats lists accepted timestamp layouts, most common first.
var legacyDateFormats = []string{
	time.RFC3339,
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05Z",
	"2006-01-02",
}

// ParseDate parses a legacy exporter timestamp, trying each known layout.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range legacyDateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparseable date %q", model.ErrValidation, s)
}

func pointTime(p Point, fallback time.Time) time.Time {
	if p.Date != nil {
		if t, err := ParseDate(*p.Date); err == nil {
			return t
		}
	}
	return fallback
}

// binder converts one legacy point into zero or one canonical metric.
type binder func(p Point, at time.Time) (model.MetricPayload, bool)

func qtyBinder(build func(qty float64, p Point, at time.Time) model.MetricPayload) binder {
	return func(p Point, at time.Time) (model.MetricPayload, bool) {
		if p.Qty == nil {
			return nil, false
		}
		return build(*p.Qty, p, at), true
	}
}

// binders maps simplified snake_case metric names to conversion functions.
// HealthKit identifiers are aliased onto the same names below.
var binders = map[string]binder{
	"heart_rate": qtyBinder(func(qty float64, p Point, at time.Time) model.MetricPayload {
		hr := int16(qty)
		return &model.HeartRateMetric{RecordedAt: at, HeartRate: &hr, SourceDevice: p.Source}
	}),
	"resting_heart_rate": qtyBinder(func(qty float64, p Point, at time.Time) model.MetricPayload {
		hr := int16(qty)
		return &model.HeartRateMetric{RecordedAt: at, RestingHeartRate: &hr, SourceDevice: p.Source}
	}),
	"heart_rate_variability": qtyBinder(func(qty float64, p Point, at time.Time) model.MetricPayload {
		return &model.HeartRateMetric{RecordedAt: at, HRVMillis: &qty, SourceDevice: p.Source}
	}),
	"blood_glucose": qtyBinder(func(qty float64, p Point, at time.Time) model.MetricPayload {
		return &model.BloodGlucoseMetric{RecordedAt: at, GlucoseMgDl: qty, SourceDevice: p.Source}
	}),
	"body_mass": qtyBinder(func(qty float64, p Point, at time.Time) model.MetricPayload {
		return &model.BodyMeasurementMetric{RecordedAt: at, BodyWeightKg: &qty, SourceDevice: p.Source}
	}),
	"body_fat_percentage": qtyBinder(func(qty float64, p Point, at time.Time) model.MetricPayload {
		return &model.BodyMeasurementMetric{RecordedAt: at, BodyFatPct: &qty, SourceDevice: p.Source}
	}),
	"body_temperature": qtyBinder(func(qty float64, p Point, at time.Time) model.MetricPayload {
		return &model.TemperatureMetric{RecordedAt: at, BodyTempC: &qty, SourceDevice: p.Source}
	}),
	"oxygen_saturation": qtyBinder(func(qty float64, p Point, at time.Time) model.MetricPayload {
		// HealthKit reports a 0..1 fraction; canonical form is percent.
		if qty <= 1 {
			qty *= 100
		}
		return &model.RespiratoryMetric{RecordedAt: at, OxygenSaturation: &qty, SourceDevice: p.Source}
	}),
	"respiratory_rate": qtyBinder(func(qty float64, p Point, at time.Time) model.MetricPayload {
		rr := int32(qty)
		return &model.RespiratoryMetric{RecordedAt: at, RespiratoryRate: &rr, SourceDevice: p.Source}
	}),
	"steps": qtyBinder(func(qty float64, p Point, at time.Time) model.MetricPayload {
		steps := int32(qty)
		return &model.ActivityMetric{RecordedAt: at, StepCount: &steps, SourceDevice: p.Source}
	}),
	"distance_walking_running": qtyBinder(func(qty float64, p Point, at time.Time) model.MetricPayload {
		return &model.ActivityMetric{RecordedAt: at, DistanceMeters: &qty, SourceDevice: p.Source}
	}),
	"active_energy_burned": qtyBinder(func(qty float64, p Point, at time.Time) model.MetricPayload {
		return &model.ActivityMetric{RecordedAt: at, ActiveEnergyKcal: &qty, SourceDevice: p.Source}
	}),
	"basal_energy_burned": qtyBinder(func(qty float64, p Point, at time.Time) model.MetricPayload {
		return &model.ActivityMetric{RecordedAt: at, BasalEnergyKcal: &qty, SourceDevice: p.Source}
	}),
	"flights_climbed": qtyBinder(func(qty float64, p Point, at time.Time) model.MetricPayload {
		n := int32(qty)
		return &model.ActivityMetric{RecordedAt: at, FlightsClimbed: &n, SourceDevice: p.Source}
	}),
	"environmental_audio_exposure": qtyBinder(func(qty float64, p Point, at time.Time) model.MetricPayload {
		return &model.AudioExposureMetric{RecordedAt: at, EnvironmentalDb: &qty, SourceDevice: p.Source}
	}),
	"headphone_audio_exposure": qtyBinder(func(qty float64, p Point, at time.Time) model.MetricPayload {
		return &model.AudioExposureMetric{RecordedAt: at, HeadphoneDb: &qty, SourceDevice: p.Source}
	}),
	"dietary_water": qtyBinder(func(qty float64, p Point, at time.Time) model.MetricPayload {
		return &model.NutritionMetric{RecordedAt: at, WaterMl: &qty, SourceDevice: p.Source}
	}),
	"dietary_energy_consumed": qtyBinder(func(qty float64, p Point, at time.Time) model.MetricPayload {
		return &model.NutritionMetric{RecordedAt: at, EnergyKcal: &qty, SourceDevice: p.Source}
	}),
	"sleep_analysis": func(p Point, at time.Time) (model.MetricPayload, bool) {
		if p.Start == nil || p.End == nil {
			return nil, false
		}
		start, err1 := ParseDate(*p.Start)
		end, err2 := ParseDate(*p.End)
		if err1 != nil || err2 != nil || !end.After(start) {
			return nil, false
		}
		return &model.SleepMetric{
			SleepStart:      start,
			SleepEnd:        end,
			DurationMinutes: int32(end.Sub(start).Minutes()),
			SourceDevice:    p.Source,
		}, true
	},
	"mindful_session": func(p Point, at time.Time) (model.MetricPayload, bool) {
		var dur *int32
		if p.Start != nil && p.End != nil {
			if start, err1 := ParseDate(*p.Start); err1 == nil {
				if end, err2 := ParseDate(*p.End); err2 == nil && end.After(start) {
					d := int32(end.Sub(start).Minutes())
					dur = &d
				}
			}
		}
		return &model.MindfulnessMetric{RecordedAt: at, DurationMinutes: dur, SourceDevice: p.Source}, true
	},
}

// hkAliases maps HealthKit identifiers onto the simplified names above.
var hkAliases = map[string]string{
	"HKQuantityTypeIdentifierHeartRate":                   "heart_rate",
	"HKQuantityTypeIdentifierRestingHeartRate":            "resting_heart_rate",
	"HKQuantityTypeIdentifierHeartRateVariabilitySDNN":    "heart_rate_variability",
	"HKQuantityTypeIdentifierBloodGlucose":                "blood_glucose",
	"HKQuantityTypeIdentifierBodyMass":                    "body_mass",
	"HKQuantityTypeIdentifierBodyFatPercentage":           "body_fat_percentage",
	"HKQuantityTypeIdentifierBodyTemperature":             "body_temperature",
	"HKQuantityTypeIdentifierOxygenSaturation":            "oxygen_saturation",
	"HKQuantityTypeIdentifierRespiratoryRate":             "respiratory_rate",
	"HKQuantityTypeIdentifierStepCount":                   "steps",
	"HKQuantityTypeIdentifierDistanceWalkingRunning":      "distance_walking_running",
	"HKQuantityTypeIdentifierActiveEnergyBurned":          "active_energy_burned",
	"HKQuantityTypeIdentifierBasalEnergyBurned":           "basal_energy_burned",
	"HKQuantityTypeIdentifierFlightsClimbed":              "flights_climbed",
	"HKQuantityTypeIdentifierEnvironmentalAudioExposure":  "environmental_audio_exposure",
	"HKQuantityTypeIdentifierHeadphoneAudioExposure":      "headphone_audio_exposure",
	"HKQuantityTypeIdentifierDietaryWater":                "dietary_water",
	"HKQuantityTypeIdentifierDietaryEnergyConsumed":       "dietary_energy_consumed",
	"HKCategoryTypeIdentifierSleepAnalysis":               "sleep_analysis",
	"HKCategoryTypeIdentifierMindfulSession":              "mindful_session",
	"weight_body_mass":                                    "body_mass",
	"step_count":                                          "steps",
	"walking_heart_rate":                                  "heart_rate",
}

func resolveBinder(name string) (binder, bool) {
	if alias, ok := hkAliases[name]; ok {
		name = alias
	}
	b, ok := binders[name]
	return b, ok
}

// Normalizer converts legacy payloads into the canonical form, dropping
// points it cannot map and counting them.
type Normalizer struct {
	log zerolog.Logger
	now func() time.Time
}

// New builds a Normalizer.
func New(log zerolog.Logger) *Normalizer {
	return &Normalizer{log: log, now: time.Now}
}

// Result carries the normalized payload plus drop accounting.
type Result struct {
	Payload model.IngestPayload
	Dropped int
}

// Normalize tries the two legacy shapes in order. It returns ErrValidation
// when the body matches neither.
func (n *Normalizer) Normalize(raw []byte) (*Result, error) {
	if res, ok := n.tryList(raw); ok {
		return res, nil
	}
	if res, ok := n.tryMap(raw); ok {
		return res, nil
	}
	return nil, fmt.Errorf("%w: body matches no known payload shape", model.ErrValidation)
}

func (n *Normalizer) tryList(raw []byte) (*Result, bool) {
	var p listPayload
	if err := json.Unmarshal(raw, &p); err != nil || len(p.Data.Metrics) == 0 {
		return nil, false
	}
	res := &Result{}
	for _, group := range p.Data.Metrics {
		n.convertGroup(group.Name, group.Data, res)
	}
	n.convertWorkouts(p.Data.Workouts, res)
	if res.Payload.Data.Empty() && res.Dropped == 0 {
		return nil, false
	}
	return res, true
}

func (n *Normalizer) tryMap(raw []byte) (*Result, bool) {
	var p mapPayload
	if err := json.Unmarshal(raw, &p); err != nil || len(p.Data.Metrics) == 0 {
		return nil, false
	}
	res := &Result{}
	for name, points := range p.Data.Metrics {
		n.convertGroup(name, points, res)
	}
	n.convertWorkouts(p.Data.Workouts, res)
	if res.Payload.Data.Empty() && res.Dropped == 0 {
		return nil, false
	}
	return res, true
}

func (n *Normalizer) convertGroup(name string, points []Point, res *Result) {
	b, ok := resolveBinder(name)
	if !ok {
		n.log.Debug().Str("metric", name).Int("points", len(points)).Msg("unmapped legacy metric")
		res.Dropped += len(points)
		return
	}
	for _, pt := range points {
		at := pointTime(pt, n.now().UTC())
		payload, ok := b(pt, at)
		if !ok {
			res.Dropped++
			continue
		}
		res.Payload.Data.Metrics = append(res.Payload.Data.Metrics, model.Metric{
			Type:    payload.Kind(),
			Payload: payload,
		})
	}
}

func (n *Normalizer) convertWorkouts(ws []legacyWorkout, res *Result) {
	for _, w := range ws {
		if w.Start == nil || w.End == nil {
			res.Dropped++
			continue
		}
		start, err1 := ParseDate(*w.Start)
		end, err2 := ParseDate(*w.End)
		if err1 != nil || err2 != nil || !end.After(start) {
			res.Dropped++
			continue
		}
		name := "Unknown"
		if w.Name != nil {
			name = *w.Name
		}
		res.Payload.Data.Workouts = append(res.Payload.Data.Workouts, model.Workout{
			WorkoutType:      name,
			StartedAt:        start,
			EndedAt:          end,
			TotalEnergyKcal:  w.Energy,
			ActiveEnergyKcal: w.ActiveEnergy,
			DistanceMeters:   w.Dist,
			SourceDevice:     w.Source,
		})
	}
}
