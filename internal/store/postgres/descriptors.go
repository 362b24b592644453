package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/vitalsd/vitalsd/internal/model"
)

// insertDescriptor drives the shared multi-row upsert builder for one metric
// variant. len(columns) must match config.ParamsPerRow for the variant; the
// batch processor plans chunk sizes from that number.
type insertDescriptor struct {
	table        string
	columns      []string
	conflictCols []string
	// coalesceCols are updated on conflict keeping the first non-null value.
	coalesceCols []string
	bind         func(userID string, p model.MetricPayload) []any
}

func nonKeyColumns(d insertDescriptor) []string {
	keys := make(map[string]bool, len(d.conflictCols))
	for _, c := range d.conflictCols {
		keys[c] = true
	}
	var out []string
	for _, c := range d.columns {
		if !keys[c] && c != "id" && c != "user_id" {
			out = append(out, c)
		}
	}
	return out
}

var descriptors = map[model.MetricType]insertDescriptor{
	model.MetricHeartRate: {
		table: "heart_rate_metrics",
		columns: []string{"user_id", "recorded_at", "heart_rate", "resting_heart_rate",
			"heart_rate_variability_ms", "context", "source_device"},
		conflictCols: []string{"user_id", "recorded_at"},
		bind: func(userID string, p model.MetricPayload) []any {
			m := p.(*model.HeartRateMetric)
			return []any{userID, m.RecordedAt, m.HeartRate, m.RestingHeartRate,
				m.HRVMillis, m.Context, m.SourceDevice}
		},
	},
	model.MetricBloodPressure: {
		table: "blood_pressure_metrics",
		columns: []string{"user_id", "recorded_at", "systolic", "diastolic", "pulse",
			"source_device"},
		conflictCols: []string{"user_id", "recorded_at"},
		bind: func(userID string, p model.MetricPayload) []any {
			m := p.(*model.BloodPressureMetric)
			return []any{userID, m.RecordedAt, m.Systolic, m.Diastolic, m.Pulse, m.SourceDevice}
		},
	},
	model.MetricSleep: {
		table: "sleep_metrics",
		columns: []string{"user_id", "sleep_start", "sleep_end", "duration_minutes",
			"deep_sleep_minutes", "rem_sleep_minutes", "awake_minutes",
			"efficiency_percentage", "source_device"},
		conflictCols: []string{"user_id", "sleep_start"},
		bind: func(userID string, p model.MetricPayload) []any {
			m := p.(*model.SleepMetric)
			return []any{userID, m.SleepStart, m.SleepEnd, m.DurationMinutes,
				m.DeepSleepMinutes, m.RemSleepMinutes, m.AwakeMinutes,
				m.EfficiencyPct, m.SourceDevice}
		},
	},
	model.MetricActivity: {
		table: "activity_metrics",
		columns: []string{"user_id", "recorded_at", "step_count", "distance_meters",
			"active_energy_burned_kcal", "basal_energy_burned_kcal", "flights_climbed",
			"distance_cycling_meters", "distance_swimming_meters", "distance_wheelchair_meters",
			"distance_downhill_snow_sports_meters", "push_count", "swimming_stroke_count",
			"exercise_time_minutes", "stand_time_minutes", "move_time_minutes",
			"stand_hour_achieved", "active_minutes", "source_device"},
		conflictCols: []string{"user_id", "recorded_at"},
		bind: func(userID string, p model.MetricPayload) []any {
			m := p.(*model.ActivityMetric)
			return []any{userID, m.RecordedAt, m.StepCount, m.DistanceMeters,
				m.ActiveEnergyKcal, m.BasalEnergyKcal, m.FlightsClimbed,
				m.DistanceCyclingMeters, m.DistanceSwimmingMeters, m.DistanceWheelchair,
				m.DistanceSnowSports, m.PushCount, m.SwimmingStrokeCount,
				m.ExerciseTimeMinutes, m.StandTimeMinutes, m.MoveTimeMinutes,
				m.StandHourAchieved, m.ActiveMinutes, m.SourceDevice}
		},
	},
	model.MetricBodyMeasurement: {
		table: "body_measurement_metrics",
		columns: []string{"user_id", "recorded_at", "body_weight_kg", "body_mass_index",
			"body_fat_percentage", "lean_body_mass_kg", "height_cm", "waist_circumference_cm",
			"hip_circumference_cm", "chest_circumference_cm", "arm_circumference_cm",
			"thigh_circumference_cm", "measurement_source", "source_device"},
		conflictCols: []string{"user_id", "recorded_at"},
		bind: func(userID string, p model.MetricPayload) []any {
			m := p.(*model.BodyMeasurementMetric)
			return []any{userID, m.RecordedAt, m.BodyWeightKg, m.BodyMassIndex,
				m.BodyFatPct, m.LeanBodyMassKg, m.HeightCm, m.WaistCm, m.HipCm,
				m.ChestCm, m.ArmCm, m.ThighCm, m.MeasurementSource, m.SourceDevice}
		},
	},
	model.MetricTemperature: {
		table: "temperature_metrics",
		columns: []string{"user_id", "recorded_at", "body_temperature_celsius",
			"basal_body_temperature_celsius", "wrist_temperature_celsius",
			"water_temperature_celsius", "source_device"},
		conflictCols: []string{"user_id", "recorded_at"},
		bind: func(userID string, p model.MetricPayload) []any {
			m := p.(*model.TemperatureMetric)
			return []any{userID, m.RecordedAt, m.BodyTempC, m.BasalBodyTempC,
				m.WristTempC, m.WaterTempC, m.SourceDevice}
		},
	},
	model.MetricBloodGlucose: {
		table: "blood_glucose_metrics",
		columns: []string{"user_id", "recorded_at", "blood_glucose_mg_dl",
			"measurement_context", "medication_taken", "insulin_delivery_units",
			"glucose_source", "source_device"},
		conflictCols: []string{"user_id", "recorded_at"},
		bind: func(userID string, p model.MetricPayload) []any {
			m := p.(*model.BloodGlucoseMetric)
			return []any{userID, m.RecordedAt, m.GlucoseMgDl, m.MeasurementContext,
				m.MedicationTaken, m.InsulinUnits, m.GlucoseSource, m.SourceDevice}
		},
	},
	model.MetricMetabolic: {
		table: "metabolic_metrics",
		columns: []string{"user_id", "recorded_at", "blood_alcohol_content",
			"insulin_delivery_units", "delivery_method", "source_device"},
		conflictCols: []string{"user_id", "recorded_at"},
		bind: func(userID string, p model.MetricPayload) []any {
			m := p.(*model.MetabolicMetric)
			return []any{userID, m.RecordedAt, m.BloodAlcoholPct, m.InsulinUnits,
				m.DeliveryMethod, m.SourceDevice}
		},
	},
	model.MetricRespiratory: {
		table: "respiratory_metrics",
		columns: []string{"user_id", "recorded_at", "respiratory_rate", "oxygen_saturation",
			"forced_vital_capacity_l", "forced_expiratory_volume_1_l",
			"peak_expiratory_flow_rate_l_min", "source_device"},
		conflictCols: []string{"user_id", "recorded_at"},
		bind: func(userID string, p model.MetricPayload) []any {
			m := p.(*model.RespiratoryMetric)
			return []any{userID, m.RecordedAt, m.RespiratoryRate, m.OxygenSaturation,
				m.ForcedVitalCapL, m.FEV1L, m.PeakFlowLPerMin, m.SourceDevice}
		},
	},
	model.MetricNutrition: {
		table: "nutrition_metrics",
		columns: []string{"user_id", "recorded_at", "water_ml", "energy_kcal",
			"carbohydrates_g", "protein_g", "fat_total_g", "fat_saturated_g", "fiber_g",
			"sugar_g", "sodium_mg", "calcium_mg", "iron_mg", "potassium_mg",
			"vitamin_a_mcg", "vitamin_c_mg", "vitamin_d_mcg", "caffeine_mg",
			"cholesterol_mg", "meal_type", "source_device"},
		conflictCols: []string{"user_id", "recorded_at"},
		bind: func(userID string, p model.MetricPayload) []any {
			m := p.(*model.NutritionMetric)
			return []any{userID, m.RecordedAt, m.WaterMl, m.EnergyKcal, m.CarbsG,
				m.ProteinG, m.FatTotalG, m.FatSaturatedG, m.FiberG, m.SugarG,
				m.SodiumMg, m.CalciumMg, m.IronMg, m.PotassiumMg, m.VitaminAMcg,
				m.VitaminCMg, m.VitaminDMcg, m.CaffeineMg, m.CholesterolMg,
				m.MealType, m.SourceDevice}
		},
	},
	model.MetricWorkout: {
		table: "workouts",
		columns: []string{"id", "user_id", "workout_type", "started_at", "ended_at",
			"total_energy_kcal", "active_energy_kcal", "basal_energy_kcal",
			"distance_meters", "avg_heart_rate", "max_heart_rate", "source_device"},
		conflictCols: []string{"user_id", "started_at"},
		bind: func(userID string, p model.MetricPayload) []any {
			m := p.(*model.Workout)
			return []any{uuid.New().String(), userID, m.WorkoutType, m.StartedAt, m.EndedAt,
				m.TotalEnergyKcal, m.ActiveEnergyKcal, m.BasalEnergyKcal,
				m.DistanceMeters, m.AvgHeartRate, m.MaxHeartRate, m.SourceDevice}
		},
	},
	model.MetricEnvironmental: {
		table: "environmental_metrics",
		columns: []string{"user_id", "recorded_at", "uv_index", "uv_exposure_minutes",
			"ambient_temperature_celsius", "humidity_percent", "air_pressure_hpa",
			"altitude_meters", "time_in_daylight_minutes", "location_latitude",
			"location_longitude", "source_device"},
		conflictCols: []string{"user_id", "recorded_at"},
		bind: func(userID string, p model.MetricPayload) []any {
			m := p.(*model.EnvironmentalMetric)
			return []any{userID, m.RecordedAt, m.UVIndex, m.UVExposureMinutes,
				m.AmbientTempC, m.HumidityPct, m.AirPressureHpa, m.AltitudeMeters,
				m.DaylightMinutes, m.Latitude, m.Longitude, m.SourceDevice}
		},
	},
	model.MetricAudioExposure: {
		table: "audio_exposure_metrics",
		columns: []string{"user_id", "recorded_at", "environmental_audio_exposure_db",
			"headphone_audio_exposure_db", "exposure_duration_minutes",
			"audio_exposure_event", "source_device"},
		conflictCols: []string{"user_id", "recorded_at"},
		bind: func(userID string, p model.MetricPayload) []any {
			m := p.(*model.AudioExposureMetric)
			return []any{userID, m.RecordedAt, m.EnvironmentalDb, m.HeadphoneDb,
				m.DurationMinutes, m.ExposureEvent, m.SourceDevice}
		},
	},
	model.MetricSafetyEvent: {
		table: "safety_event_metrics",
		columns: []string{"user_id", "recorded_at", "event_type", "severity_level",
			"location", "description", "emergency_contact_notified", "source_device"},
		conflictCols: []string{"user_id", "recorded_at"},
		bind: func(userID string, p model.MetricPayload) []any {
			m := p.(*model.SafetyEventMetric)
			return []any{userID, m.RecordedAt, m.EventType, m.SeverityLevel,
				m.Location, m.Description, m.ContactNotified, m.SourceDevice}
		},
	},
	model.MetricMindfulness: {
		table: "mindfulness_metrics",
		columns: []string{"user_id", "recorded_at", "session_type", "duration_minutes",
			"stress_level_before", "stress_level_after", "focus_rating", "notes",
			"source_device"},
		conflictCols: []string{"user_id", "recorded_at"},
		bind: func(userID string, p model.MetricPayload) []any {
			m := p.(*model.MindfulnessMetric)
			return []any{userID, m.RecordedAt, m.SessionType, m.DurationMinutes,
				m.StressBefore, m.StressAfter, m.FocusRating, m.Notes, m.SourceDevice}
		},
	},
	model.MetricMentalHealth: {
		table: "mental_health_metrics",
		columns: []string{"user_id", "recorded_at", "mood_rating", "anxiety_level",
			"stress_level", "energy_level", "sleep_quality_perception",
			"medication_taken", "therapy_session", "source_device"},
		conflictCols: []string{"user_id", "recorded_at"},
		bind: func(userID string, p model.MetricPayload) []any {
			m := p.(*model.MentalHealthMetric)
			return []any{userID, m.RecordedAt, m.MoodRating, m.AnxietyLevel,
				m.StressLevel, m.EnergyLevel, m.SleepQuality, m.MedicationTaken,
				m.TherapySession, m.SourceDevice}
		},
	},
	model.MetricMenstrual: {
		table: "menstrual_metrics",
		columns: []string{"user_id", "recorded_at", "menstrual_flow", "spotting",
			"cycle_day", "cramps_severity", "mood_rating", "energy_level", "source_device"},
		conflictCols: []string{"user_id", "recorded_at"},
		bind: func(userID string, p model.MetricPayload) []any {
			m := p.(*model.MenstrualMetric)
			return []any{userID, m.RecordedAt, m.Flow, m.Spotting, m.CycleDay,
				m.CrampsSeverity, m.MoodRating, m.EnergyLevel, m.SourceDevice}
		},
	},
	model.MetricFertility: {
		table: "fertility_metrics",
		columns: []string{"user_id", "recorded_at", "cervical_mucus_quality",
			"ovulation_test_result", "sexual_activity", "pregnancy_test_result",
			"basal_body_temperature_celsius", "cervix_firmness", "cervix_position",
			"lh_level", "notes", "source_device"},
		conflictCols: []string{"user_id", "recorded_at"},
		bind: func(userID string, p model.MetricPayload) []any {
			m := p.(*model.FertilityMetric)
			return []any{userID, m.RecordedAt, m.CervicalMucus, m.OvulationTest,
				m.SexualActivity, m.PregnancyTest, m.BasalBodyTempC, m.CervixFirmness,
				m.CervixPosition, m.LHLevel, m.Notes, m.SourceDevice}
		},
	},
	model.MetricSymptom: {
		table: "symptom_metrics",
		columns: []string{"user_id", "recorded_at", "symptom_type", "severity_rating",
			"duration_minutes", "triggers", "relief_factors", "notes", "source_device"},
		conflictCols: []string{"user_id", "recorded_at"},
		bind: func(userID string, p model.MetricPayload) []any {
			m := p.(*model.SymptomMetric)
			return []any{userID, m.RecordedAt, m.SymptomType, m.SeverityRating,
				m.DurationMinutes, m.Triggers, m.ReliefFactors, m.Notes, m.SourceDevice}
		},
	},
	model.MetricHygiene: {
		table: "hygiene_metrics",
		columns: []string{"user_id", "recorded_at", "activity_type", "frequency",
			"duration_minutes", "quality_rating", "notes", "source_device"},
		conflictCols: []string{"user_id", "recorded_at"},
		bind: func(userID string, p model.MetricPayload) []any {
			m := p.(*model.HygieneMetric)
			return []any{userID, m.RecordedAt, m.ActivityType, m.Frequency,
				m.DurationMinutes, m.QualityRating, m.Notes, m.SourceDevice}
		},
	},
}

// --- Metrics ---
type metrics struct{ db *sql.DB }

// InsertBatch upserts one chunk of a single variant in one statement.
// Conflicting rows coalesce field-wise, keeping the first non-null value.
func (m *metrics) InsertBatch(ctx context.Context, userID string, variant model.MetricType, rows []model.MetricPayload) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	d, ok := descriptors[variant]
	if !ok {
		return 0, fmt.Errorf("no insert descriptor for variant %s", variant)
	}

	query, args := buildUpsert(d, userID, rows)
	res, err := m.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func buildUpsert(d insertDescriptor, userID string, rows []model.MetricPayload) (string, []any) {
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(d.table)
	sb.WriteString(" (")
	sb.WriteString(strings.Join(d.columns, ", "))
	sb.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(d.columns))
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		vals := d.bind(userID, row)
		for j := range vals {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", len(args)+j+1)
		}
		sb.WriteString(")")
		args = append(args, vals...)
	}

	sb.WriteString(" ON CONFLICT (")
	sb.WriteString(strings.Join(d.conflictCols, ", "))
	sb.WriteString(") DO UPDATE SET ")
	for i, col := range nonKeyColumns(d) {
		if i > 0 {
			sb.WriteString(", ")
		}
		// Keep-first-non-null discipline: existing values win.
		fmt.Fprintf(&sb, "%s = COALESCE(%s.%s, EXCLUDED.%s)", col, d.table, col, col)
	}
	return sb.String(), args
}
