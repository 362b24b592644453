// Package validate checks ingested metrics against the configured numeric
// bands and temporal invariants.
package validate

import (
	"fmt"
	"time"

	"github.com/vitalsd/vitalsd/internal/config"
	"github.com/vitalsd/vitalsd/internal/model"
)

// RangeError reports a populated numeric field outside its configured band.
type RangeError struct {
	Field string
	Value float64
	Min   float64
	Max   float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s value %g outside range [%g, %g]", e.Field, e.Value, e.Min, e.Max)
}

// TemporalError reports a violated temporal invariant.
type TemporalError struct {
	Reason string
}

func (e *TemporalError) Error() string { return "temporal: " + e.Reason }

// Validator checks one metric at a time against immutable startup config.
type Validator struct {
	cfg config.ValidationConfig
	now func() time.Time
}

// New builds a Validator over the given bounds.
func New(cfg config.ValidationConfig) *Validator {
	return &Validator{cfg: cfg, now: time.Now}
}

func (v *Validator) checkRange(field string, value, min, max float64) error {
	if value < min || value > max {
		return &RangeError{Field: field, Value: value, Min: min, Max: max}
	}
	return nil
}

func (v *Validator) checkFuture(field string, ts time.Time) error {
	skew := time.Duration(v.cfg.FutureSkewSeconds) * time.Second
	if ts.After(v.now().Add(skew)) {
		return &TemporalError{Reason: fmt.Sprintf("%s is in the future", field)}
	}
	return nil
}

// Metric validates one union member, dispatching on the tag.
func (v *Validator) Metric(m model.Metric) error {
	if m.Payload == nil {
		return fmt.Errorf("%w: missing payload", model.ErrValidation)
	}
	if m.Payload.Timestamp().IsZero() {
		return &TemporalError{Reason: "missing timestamp"}
	}
	if err := v.checkFuture("timestamp", m.Payload.Timestamp()); err != nil {
		return err
	}

	switch p := m.Payload.(type) {
	case *model.HeartRateMetric:
		return v.heartRate(p)
	case *model.BloodPressureMetric:
		return v.bloodPressure(p)
	case *model.SleepMetric:
		return v.sleep(p)
	case *model.ActivityMetric:
		return v.activity(p)
	case *model.BodyMeasurementMetric:
		return v.bodyMeasurement(p)
	case *model.TemperatureMetric:
		return v.temperature(p)
	case *model.BloodGlucoseMetric:
		return v.bloodGlucose(p)
	case *model.MetabolicMetric:
		return v.metabolic(p)
	case *model.RespiratoryMetric:
		return v.respiratory(p)
	case *model.AudioExposureMetric:
		return v.audioExposure(p)
	case *model.Workout:
		return v.workout(p)
	case *model.SafetyEventMetric:
		if p.EventType == "" {
			return fmt.Errorf("%w: safety event requires event_type", model.ErrValidation)
		}
	case *model.SymptomMetric:
		if p.SymptomType == "" {
			return fmt.Errorf("%w: symptom requires symptom_type", model.ErrValidation)
		}
		if p.SeverityRating != nil {
			return v.checkRange("severity_rating", float64(*p.SeverityRating), 0, 10)
		}
	case *model.MenstrualMetric:
		return v.menstrual(p)
	case *model.FertilityMetric:
		return v.fertility(p)
	case *model.MindfulnessMetric:
		return v.mindfulness(p)
	case *model.MentalHealthMetric:
		return v.mentalHealth(p)
	case *model.HygieneMetric:
		if p.ActivityType == "" {
			return fmt.Errorf("%w: hygiene requires activity_type", model.ErrValidation)
		}
	}
	return nil
}

func (v *Validator) heartRate(p *model.HeartRateMetric) error {
	if p.HeartRate != nil {
		if err := v.checkRange("heart_rate", float64(*p.HeartRate),
			float64(v.cfg.HeartRateMin), float64(v.cfg.HeartRateMax)); err != nil {
			return err
		}
	}
	if p.RestingHeartRate != nil {
		if err := v.checkRange("resting_heart_rate", float64(*p.RestingHeartRate),
			float64(v.cfg.HeartRateMin), float64(v.cfg.HeartRateMax)); err != nil {
			return err
		}
	}
	if p.HRVMillis != nil {
		return v.checkRange("heart_rate_variability_ms", *p.HRVMillis, v.cfg.HRVMinMS, v.cfg.HRVMaxMS)
	}
	return nil
}

func (v *Validator) bloodPressure(p *model.BloodPressureMetric) error {
	if err := v.checkRange("systolic", float64(p.Systolic),
		float64(v.cfg.SystolicMin), float64(v.cfg.SystolicMax)); err != nil {
		return err
	}
	if err := v.checkRange("diastolic", float64(p.Diastolic),
		float64(v.cfg.DiastolicMin), float64(v.cfg.DiastolicMax)); err != nil {
		return err
	}
	if p.Systolic <= p.Diastolic {
		return fmt.Errorf("%w: systolic %d must exceed diastolic %d",
			model.ErrValidation, p.Systolic, p.Diastolic)
	}
	if p.Pulse != nil {
		return v.checkRange("pulse", float64(*p.Pulse),
			float64(v.cfg.HeartRateMin), float64(v.cfg.HeartRateMax))
	}
	return nil
}

func (v *Validator) sleep(p *model.SleepMetric) error {
	if !p.SleepEnd.After(p.SleepStart) {
		return &TemporalError{Reason: "sleep_end must be after sleep_start"}
	}
	if err := v.checkRange("duration_minutes", float64(p.DurationMinutes),
		float64(v.cfg.SleepDurationMinMinutes), float64(v.cfg.SleepDurationMaxMinutes)); err != nil {
		return err
	}
	span := int32(p.SleepEnd.Sub(p.SleepStart).Minutes())
	diff := span - p.DurationMinutes
	if diff < 0 {
		diff = -diff
	}
	if diff > v.cfg.SleepDurationToleranceMinutes {
		return &TemporalError{
			Reason: fmt.Sprintf("duration_minutes %d disagrees with span %d min", p.DurationMinutes, span),
		}
	}
	// Stage components cannot exceed total duration.
	var stages int32
	for _, s := range []*int32{p.DeepSleepMinutes, p.RemSleepMinutes, p.AwakeMinutes} {
		if s != nil {
			stages += *s
		}
	}
	if stages > p.DurationMinutes+v.cfg.SleepDurationToleranceMinutes {
		return fmt.Errorf("%w: sleep stages sum %d exceeds duration %d",
			model.ErrValidation, stages, p.DurationMinutes)
	}
	if p.EfficiencyPct != nil {
		return v.checkRange("efficiency_percentage", *p.EfficiencyPct,
			v.cfg.SleepEfficiencyMin, v.cfg.SleepEfficiencyMax)
	}
	return nil
}

func (v *Validator) activity(p *model.ActivityMetric) error {
	if p.StepCount != nil {
		if err := v.checkRange("step_count", float64(*p.StepCount), 0,
			float64(v.cfg.StepsMaxPerDay)); err != nil {
			return err
		}
	}
	if p.ActiveEnergyKcal != nil {
		if err := v.checkRange("active_energy_burned_kcal", *p.ActiveEnergyKcal, 0,
			v.cfg.ActiveEnergyMaxKcal); err != nil {
			return err
		}
	}
	if p.DistanceMeters != nil {
		return v.checkRange("distance_meters", *p.DistanceMeters, 0, v.cfg.DistanceMaxMeters)
	}
	return nil
}

func (v *Validator) bodyMeasurement(p *model.BodyMeasurementMetric) error {
	if p.BodyWeightKg != nil {
		if err := v.checkRange("body_weight_kg", *p.BodyWeightKg,
			v.cfg.BodyWeightMinKg, v.cfg.BodyWeightMaxKg); err != nil {
			return err
		}
	}
	if p.BodyMassIndex != nil {
		if err := v.checkRange("body_mass_index", *p.BodyMassIndex, v.cfg.BMIMin, v.cfg.BMIMax); err != nil {
			return err
		}
	}
	if p.BodyFatPct != nil {
		return v.checkRange("body_fat_percentage", *p.BodyFatPct,
			v.cfg.BodyFatMinPct, v.cfg.BodyFatMaxPct)
	}
	return nil
}

func (v *Validator) temperature(p *model.TemperatureMetric) error {
	if p.BodyTempC != nil {
		if err := v.checkRange("body_temperature_celsius", *p.BodyTempC,
			v.cfg.BodyTempMinC, v.cfg.BodyTempMaxC); err != nil {
			return err
		}
	}
	if p.BasalBodyTempC != nil {
		if err := v.checkRange("basal_body_temperature_celsius", *p.BasalBodyTempC,
			v.cfg.BasalTempMinC, v.cfg.BasalTempMaxC); err != nil {
			return err
		}
	}
	if p.WristTempC != nil {
		return v.checkRange("wrist_temperature_celsius", *p.WristTempC,
			v.cfg.WristTempMinC, v.cfg.WristTempMaxC)
	}
	return nil
}

func (v *Validator) bloodGlucose(p *model.BloodGlucoseMetric) error {
	if err := v.checkRange("blood_glucose_mg_dl", p.GlucoseMgDl,
		v.cfg.GlucoseMinMgDl, v.cfg.GlucoseMaxMgDl); err != nil {
		return err
	}
	if p.InsulinUnits != nil {
		return v.checkRange("insulin_delivery_units", *p.InsulinUnits, 0, v.cfg.InsulinMaxUnits)
	}
	return nil
}

func (v *Validator) metabolic(p *model.MetabolicMetric) error {
	if p.BloodAlcoholPct != nil {
		if err := v.checkRange("blood_alcohol_content", *p.BloodAlcoholPct, 0, 0.5); err != nil {
			return err
		}
	}
	if p.InsulinUnits != nil {
		return v.checkRange("insulin_delivery_units", *p.InsulinUnits, 0, v.cfg.InsulinMaxUnits)
	}
	return nil
}

func (v *Validator) respiratory(p *model.RespiratoryMetric) error {
	if p.RespiratoryRate != nil {
		if err := v.checkRange("respiratory_rate", float64(*p.RespiratoryRate),
			float64(v.cfg.RespiratoryRateMin), float64(v.cfg.RespiratoryRateMax)); err != nil {
			return err
		}
	}
	if p.OxygenSaturation != nil {
		return v.checkRange("oxygen_saturation", *p.OxygenSaturation,
			v.cfg.SpO2MinPct, v.cfg.SpO2MaxPct)
	}
	return nil
}

func (v *Validator) audioExposure(p *model.AudioExposureMetric) error {
	if p.EnvironmentalDb != nil {
		if err := v.checkRange("environmental_audio_exposure_db", *p.EnvironmentalDb, 0,
			v.cfg.AudioMaxDb); err != nil {
			return err
		}
	}
	if p.HeadphoneDb != nil {
		return v.checkRange("headphone_audio_exposure_db", *p.HeadphoneDb, 0, v.cfg.AudioMaxDb)
	}
	return nil
}

func (v *Validator) workout(p *model.Workout) error {
	if p.WorkoutType == "" {
		return fmt.Errorf("%w: workout requires workout_type", model.ErrValidation)
	}
	if !p.EndedAt.After(p.StartedAt) {
		return &TemporalError{Reason: "ended_at must be after started_at"}
	}
	if err := v.checkFuture("started_at", p.StartedAt); err != nil {
		return err
	}
	dur := p.DurationMinutes()
	if dur < v.cfg.WorkoutDurationMinMinutes || dur > v.cfg.WorkoutDurationMaxMinutes {
		return &RangeError{Field: "duration_minutes", Value: float64(dur),
			Min: float64(v.cfg.WorkoutDurationMinMinutes), Max: float64(v.cfg.WorkoutDurationMaxMinutes)}
	}
	if p.AvgHeartRate != nil {
		if err := v.checkRange("avg_heart_rate", float64(*p.AvgHeartRate),
			float64(v.cfg.HeartRateMin), float64(v.cfg.HeartRateMax)); err != nil {
			return err
		}
	}
	if p.MaxHeartRate != nil {
		return v.checkRange("max_heart_rate", float64(*p.MaxHeartRate),
			float64(v.cfg.HeartRateMin), float64(v.cfg.HeartRateMax))
	}
	return nil
}

func (v *Validator) menstrual(p *model.MenstrualMetric) error {
	if p.CycleDay != nil {
		if err := v.checkRange("cycle_day", float64(*p.CycleDay),
			float64(v.cfg.CycleDayMin), float64(v.cfg.CycleDayMax)); err != nil {
			return err
		}
	}
	if p.CrampsSeverity != nil {
		return v.checkRange("cramps_severity", float64(*p.CrampsSeverity), 0, 10)
	}
	return nil
}

func (v *Validator) fertility(p *model.FertilityMetric) error {
	if p.BasalBodyTempC != nil {
		if err := v.checkRange("basal_body_temperature_celsius", *p.BasalBodyTempC,
			v.cfg.BasalTempMinC, v.cfg.BasalTempMaxC); err != nil {
			return err
		}
	}
	if p.LHLevel != nil {
		return v.checkRange("lh_level", *p.LHLevel, v.cfg.LHMin, v.cfg.LHMax)
	}
	return nil
}

func (v *Validator) mindfulness(p *model.MindfulnessMetric) error {
	for field, val := range map[string]*int16{
		"stress_level_before": p.StressBefore,
		"stress_level_after":  p.StressAfter,
		"focus_rating":        p.FocusRating,
	} {
		if val != nil {
			if err := v.checkRange(field, float64(*val), 1, 10); err != nil {
				return err
			}
		}
	}
	return nil
}

func (v *Validator) mentalHealth(p *model.MentalHealthMetric) error {
	for field, val := range map[string]*int16{
		"mood_rating":              p.MoodRating,
		"anxiety_level":            p.AnxietyLevel,
		"stress_level":             p.StressLevel,
		"energy_level":             p.EnergyLevel,
		"sleep_quality_perception": p.SleepQuality,
	} {
		if val != nil {
			if err := v.checkRange(field, float64(*val), 1, 10); err != nil {
				return err
			}
		}
	}
	return nil
}
