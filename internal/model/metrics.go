package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// MetricType identifies one variant of the metric union. The declaration
// order below is also the processing order when parallel dispatch is off.
type MetricType string

const (
	MetricHeartRate       MetricType = "HeartRate"
	MetricBloodPressure   MetricType = "BloodPressure"
	MetricSleep           MetricType = "Sleep"
	MetricActivity        MetricType = "Activity"
	MetricBodyMeasurement MetricType = "BodyMeasurement"
	MetricTemperature     MetricType = "Temperature"
	MetricBloodGlucose    MetricType = "BloodGlucose"
	MetricMetabolic       MetricType = "Metabolic"
	MetricRespiratory     MetricType = "Respiratory"
	MetricNutrition       MetricType = "Nutrition"
	MetricWorkout         MetricType = "Workout"
	MetricEnvironmental   MetricType = "Environmental"
	MetricAudioExposure   MetricType = "AudioExposure"
	MetricSafetyEvent     MetricType = "SafetyEvent"
	MetricMindfulness     MetricType = "Mindfulness"
	MetricMentalHealth    MetricType = "MentalHealth"
	MetricMenstrual       MetricType = "Menstrual"
	MetricFertility       MetricType = "Fertility"
	MetricSymptom         MetricType = "Symptom"
	MetricHygiene         MetricType = "Hygiene"
)

// AllMetricTypes lists every variant in declaration order.
func AllMetricTypes() []MetricType {
	return []MetricType{
		MetricHeartRate, MetricBloodPressure, MetricSleep, MetricActivity,
		MetricBodyMeasurement, MetricTemperature, MetricBloodGlucose,
		MetricMetabolic, MetricRespiratory, MetricNutrition, MetricWorkout,
		MetricEnvironmental, MetricAudioExposure, MetricSafetyEvent,
		MetricMindfulness, MetricMentalHealth, MetricMenstrual,
		MetricFertility, MetricSymptom, MetricHygiene,
	}
}

// MetricFamily groups variants for deduplication statistics.
type MetricFamily string

const (
	FamilyCardiovascular MetricFamily = "cardiovascular"
	FamilyActivity       MetricFamily = "activity"
	FamilyRest           MetricFamily = "rest"
	FamilyNutrition      MetricFamily = "nutrition"
	FamilySymptoms       MetricFamily = "symptoms"
	FamilyReproductive   MetricFamily = "reproductive"
	FamilyEnvironmental  MetricFamily = "environmental"
	FamilyMental         MetricFamily = "mental"
	FamilyMobility       MetricFamily = "mobility"
)

var metricFamilies = map[MetricType]MetricFamily{
	MetricHeartRate:       FamilyCardiovascular,
	MetricBloodPressure:   FamilyCardiovascular,
	MetricSleep:           FamilyRest,
	MetricActivity:        FamilyActivity,
	MetricBodyMeasurement: FamilyActivity,
	MetricTemperature:     FamilySymptoms,
	MetricBloodGlucose:    FamilyCardiovascular,
	MetricMetabolic:       FamilyCardiovascular,
	MetricRespiratory:     FamilyCardiovascular,
	MetricNutrition:       FamilyNutrition,
	MetricWorkout:         FamilyMobility,
	MetricEnvironmental:   FamilyEnvironmental,
	MetricAudioExposure:   FamilyEnvironmental,
	MetricSafetyEvent:     FamilyMobility,
	MetricMindfulness:     FamilyMental,
	MetricMentalHealth:    FamilyMental,
	MetricMenstrual:       FamilyReproductive,
	MetricFertility:       FamilyReproductive,
	MetricSymptom:         FamilySymptoms,
	MetricHygiene:         FamilySymptoms,
}

// Family returns the deduplication family for a variant.
func (t MetricType) Family() MetricFamily { return metricFamilies[t] }

// MetricPayload is implemented by every variant struct.
type MetricPayload interface {
	Kind() MetricType
	// Timestamp is recorded_at for point metrics and started_at for sessions.
	// Together with the owning user it forms the variant's unique key.
	Timestamp() time.Time
}

// Metric is the tagged union carried in ingest payloads. On the wire it is an
// internally tagged object: the variant fields plus a "type" discriminant.
type Metric struct {
	Type    MetricType
	Payload MetricPayload
}

func (m *Metric) UnmarshalJSON(data []byte) error {
	var head struct {
		Type MetricType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	payload := newMetricPayload(head.Type)
	if payload == nil {
		return fmt.Errorf("%w: unknown metric type %q", ErrValidation, head.Type)
	}
	if err := json.Unmarshal(data, payload); err != nil {
		return err
	}
	m.Type = head.Type
	m.Payload = payload
	return nil
}

func (m Metric) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(m.Payload)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	tag, err := json.Marshal(m.Type)
	if err != nil {
		return nil, err
	}
	fields["type"] = tag
	return json.Marshal(fields)
}

func newMetricPayload(t MetricType) MetricPayload {
	switch t {
	case MetricHeartRate:
		return &HeartRateMetric{}
	case MetricBloodPressure:
		return &BloodPressureMetric{}
	case MetricSleep:
		return &SleepMetric{}
	case MetricActivity:
		return &ActivityMetric{}
	case MetricBodyMeasurement:
		return &BodyMeasurementMetric{}
	case MetricTemperature:
		return &TemperatureMetric{}
	case MetricBloodGlucose:
		return &BloodGlucoseMetric{}
	case MetricMetabolic:
		return &MetabolicMetric{}
	case MetricRespiratory:
		return &RespiratoryMetric{}
	case MetricNutrition:
		return &NutritionMetric{}
	case MetricWorkout:
		return &Workout{}
	case MetricEnvironmental:
		return &EnvironmentalMetric{}
	case MetricAudioExposure:
		return &AudioExposureMetric{}
	case MetricSafetyEvent:
		return &SafetyEventMetric{}
	case MetricMindfulness:
		return &MindfulnessMetric{}
	case MetricMentalHealth:
		return &MentalHealthMetric{}
	case MetricMenstrual:
		return &MenstrualMetric{}
	case MetricFertility:
		return &FertilityMetric{}
	case MetricSymptom:
		return &SymptomMetric{}
	case MetricHygiene:
		return &HygieneMetric{}
	}
	return nil
}

// HeartRateMetric is a point heart-rate sample, optionally with resting rate
// and variability from the same reading.
type HeartRateMetric struct {
	RecordedAt       time.Time `json:"recorded_at"`
	HeartRate        *int16    `json:"heart_rate,omitempty"`
	RestingHeartRate *int16    `json:"resting_heart_rate,omitempty"`
	HRVMillis        *float64  `json:"heart_rate_variability_ms,omitempty"`
	Context          *string   `json:"context,omitempty"` // resting, exercise, recovery
	SourceDevice     *string   `json:"source_device,omitempty"`
}

func (m *HeartRateMetric) Kind() MetricType     { return MetricHeartRate }
func (m *HeartRateMetric) Timestamp() time.Time { return m.RecordedAt }

type BloodPressureMetric struct {
	RecordedAt   time.Time `json:"recorded_at"`
	Systolic     int16     `json:"systolic"`
	Diastolic    int16     `json:"diastolic"`
	Pulse        *int16    `json:"pulse,omitempty"`
	SourceDevice *string   `json:"source_device,omitempty"`
}

func (m *BloodPressureMetric) Kind() MetricType     { return MetricBloodPressure }
func (m *BloodPressureMetric) Timestamp() time.Time { return m.RecordedAt }

// SleepMetric is a session; the unique key is (user, sleep_start).
type SleepMetric struct {
	SleepStart       time.Time `json:"sleep_start"`
	SleepEnd         time.Time `json:"sleep_end"`
	DurationMinutes  int32     `json:"duration_minutes"`
	DeepSleepMinutes *int32    `json:"deep_sleep_minutes,omitempty"`
	RemSleepMinutes  *int32    `json:"rem_sleep_minutes,omitempty"`
	AwakeMinutes     *int32    `json:"awake_minutes,omitempty"`
	EfficiencyPct    *float64  `json:"efficiency_percentage,omitempty"`
	SourceDevice     *string   `json:"source_device,omitempty"`
}

func (m *SleepMetric) Kind() MetricType     { return MetricSleep }
func (m *SleepMetric) Timestamp() time.Time { return m.SleepStart }

// ActivityMetric is a daily aggregate; recorded_at carries the day.
type ActivityMetric struct {
	RecordedAt             time.Time `json:"recorded_at"`
	StepCount              *int32    `json:"step_count,omitempty"`
	DistanceMeters         *float64  `json:"distance_meters,omitempty"`
	ActiveEnergyKcal       *float64  `json:"active_energy_burned_kcal,omitempty"`
	BasalEnergyKcal        *float64  `json:"basal_energy_burned_kcal,omitempty"`
	FlightsClimbed         *int32    `json:"flights_climbed,omitempty"`
	DistanceCyclingMeters  *float64  `json:"distance_cycling_meters,omitempty"`
	DistanceSwimmingMeters *float64  `json:"distance_swimming_meters,omitempty"`
	DistanceWheelchair     *float64  `json:"distance_wheelchair_meters,omitempty"`
	DistanceSnowSports     *float64  `json:"distance_downhill_snow_sports_meters,omitempty"`
	PushCount              *int32    `json:"push_count,omitempty"`
	SwimmingStrokeCount    *int32    `json:"swimming_stroke_count,omitempty"`
	ExerciseTimeMinutes    *int32    `json:"exercise_time_minutes,omitempty"`
	StandTimeMinutes       *int32    `json:"stand_time_minutes,omitempty"`
	MoveTimeMinutes        *int32    `json:"move_time_minutes,omitempty"`
	StandHourAchieved      *bool     `json:"stand_hour_achieved,omitempty"`
	ActiveMinutes          *int32    `json:"active_minutes,omitempty"`
	SourceDevice           *string   `json:"source_device,omitempty"`
}

func (m *ActivityMetric) Kind() MetricType     { return MetricActivity }
func (m *ActivityMetric) Timestamp() time.Time { return m.RecordedAt }

type BodyMeasurementMetric struct {
	RecordedAt        time.Time `json:"recorded_at"`
	BodyWeightKg      *float64  `json:"body_weight_kg,omitempty"`
	BodyMassIndex     *float64  `json:"body_mass_index,omitempty"`
	BodyFatPct        *float64  `json:"body_fat_percentage,omitempty"`
	LeanBodyMassKg    *float64  `json:"lean_body_mass_kg,omitempty"`
	HeightCm          *float64  `json:"height_cm,omitempty"`
	WaistCm           *float64  `json:"waist_circumference_cm,omitempty"`
	HipCm             *float64  `json:"hip_circumference_cm,omitempty"`
	ChestCm           *float64  `json:"chest_circumference_cm,omitempty"`
	ArmCm             *float64  `json:"arm_circumference_cm,omitempty"`
	ThighCm           *float64  `json:"thigh_circumference_cm,omitempty"`
	MeasurementSource *string   `json:"measurement_source,omitempty"`
	SourceDevice      *string   `json:"source_device,omitempty"`
}

func (m *BodyMeasurementMetric) Kind() MetricType     { return MetricBodyMeasurement }
func (m *BodyMeasurementMetric) Timestamp() time.Time { return m.RecordedAt }

type TemperatureMetric struct {
	RecordedAt     time.Time `json:"recorded_at"`
	BodyTempC      *float64  `json:"body_temperature_celsius,omitempty"`
	BasalBodyTempC *float64  `json:"basal_body_temperature_celsius,omitempty"`
	WristTempC     *float64  `json:"wrist_temperature_celsius,omitempty"`
	WaterTempC     *float64  `json:"water_temperature_celsius,omitempty"`
	SourceDevice   *string   `json:"source_device,omitempty"`
}

func (m *TemperatureMetric) Kind() MetricType     { return MetricTemperature }
func (m *TemperatureMetric) Timestamp() time.Time { return m.RecordedAt }

type BloodGlucoseMetric struct {
	RecordedAt         time.Time `json:"recorded_at"`
	GlucoseMgDl        float64   `json:"blood_glucose_mg_dl"`
	MeasurementContext *string   `json:"measurement_context,omitempty"` // fasting, post_meal, random
	MedicationTaken    *bool     `json:"medication_taken,omitempty"`
	InsulinUnits       *float64  `json:"insulin_delivery_units,omitempty"`
	GlucoseSource      *string   `json:"glucose_source,omitempty"`
	SourceDevice       *string   `json:"source_device,omitempty"`
}

func (m *BloodGlucoseMetric) Kind() MetricType     { return MetricBloodGlucose }
func (m *BloodGlucoseMetric) Timestamp() time.Time { return m.RecordedAt }

type MetabolicMetric struct {
	RecordedAt      time.Time `json:"recorded_at"`
	BloodAlcoholPct *float64  `json:"blood_alcohol_content,omitempty"`
	InsulinUnits    *float64  `json:"insulin_delivery_units,omitempty"`
	DeliveryMethod  *string   `json:"delivery_method,omitempty"`
	SourceDevice    *string   `json:"source_device,omitempty"`
}

func (m *MetabolicMetric) Kind() MetricType     { return MetricMetabolic }
func (m *MetabolicMetric) Timestamp() time.Time { return m.RecordedAt }

type RespiratoryMetric struct {
	RecordedAt        time.Time `json:"recorded_at"`
	RespiratoryRate   *int32    `json:"respiratory_rate,omitempty"`
	OxygenSaturation  *float64  `json:"oxygen_saturation,omitempty"`
	ForcedVitalCapL   *float64  `json:"forced_vital_capacity_l,omitempty"`
	FEV1L             *float64  `json:"forced_expiratory_volume_1_l,omitempty"`
	PeakFlowLPerMin   *float64  `json:"peak_expiratory_flow_rate_l_min,omitempty"`
	SourceDevice      *string   `json:"source_device,omitempty"`
}

func (m *RespiratoryMetric) Kind() MetricType     { return MetricRespiratory }
func (m *RespiratoryMetric) Timestamp() time.Time { return m.RecordedAt }

type NutritionMetric struct {
	RecordedAt    time.Time `json:"recorded_at"`
	WaterMl       *float64  `json:"water_ml,omitempty"`
	EnergyKcal    *float64  `json:"energy_kcal,omitempty"`
	CarbsG        *float64  `json:"carbohydrates_g,omitempty"`
	ProteinG      *float64  `json:"protein_g,omitempty"`
	FatTotalG     *float64  `json:"fat_total_g,omitempty"`
	FatSaturatedG *float64  `json:"fat_saturated_g,omitempty"`
	FiberG        *float64  `json:"fiber_g,omitempty"`
	SugarG        *float64  `json:"sugar_g,omitempty"`
	SodiumMg      *float64  `json:"sodium_mg,omitempty"`
	CalciumMg     *float64  `json:"calcium_mg,omitempty"`
	IronMg        *float64  `json:"iron_mg,omitempty"`
	PotassiumMg   *float64  `json:"potassium_mg,omitempty"`
	VitaminAMcg   *float64  `json:"vitamin_a_mcg,omitempty"`
	VitaminCMg    *float64  `json:"vitamin_c_mg,omitempty"`
	VitaminDMcg   *float64  `json:"vitamin_d_mcg,omitempty"`
	CaffeineMg    *float64  `json:"caffeine_mg,omitempty"`
	CholesterolMg *float64  `json:"cholesterol_mg,omitempty"`
	MealType      *string   `json:"meal_type,omitempty"`
	SourceDevice  *string   `json:"source_device,omitempty"`
}

func (m *NutritionMetric) Kind() MetricType     { return MetricNutrition }
func (m *NutritionMetric) Timestamp() time.Time { return m.RecordedAt }

type EnvironmentalMetric struct {
	RecordedAt          time.Time `json:"recorded_at"`
	UVIndex             *float64  `json:"uv_index,omitempty"`
	UVExposureMinutes   *int32    `json:"uv_exposure_minutes,omitempty"`
	AmbientTempC        *float64  `json:"ambient_temperature_celsius,omitempty"`
	HumidityPct         *float64  `json:"humidity_percent,omitempty"`
	AirPressureHpa      *float64  `json:"air_pressure_hpa,omitempty"`
	AltitudeMeters      *float64  `json:"altitude_meters,omitempty"`
	DaylightMinutes     *int32    `json:"time_in_daylight_minutes,omitempty"`
	Latitude            *float64  `json:"location_latitude,omitempty"`
	Longitude           *float64  `json:"location_longitude,omitempty"`
	SourceDevice        *string   `json:"source_device,omitempty"`
}

func (m *EnvironmentalMetric) Kind() MetricType     { return MetricEnvironmental }
func (m *EnvironmentalMetric) Timestamp() time.Time { return m.RecordedAt }

type AudioExposureMetric struct {
	RecordedAt      time.Time `json:"recorded_at"`
	EnvironmentalDb *float64  `json:"environmental_audio_exposure_db,omitempty"`
	HeadphoneDb     *float64  `json:"headphone_audio_exposure_db,omitempty"`
	DurationMinutes *int32    `json:"exposure_duration_minutes,omitempty"`
	ExposureEvent   *bool     `json:"audio_exposure_event,omitempty"`
	SourceDevice    *string   `json:"source_device,omitempty"`
}

func (m *AudioExposureMetric) Kind() MetricType     { return MetricAudioExposure }
func (m *AudioExposureMetric) Timestamp() time.Time { return m.RecordedAt }

type SafetyEventMetric struct {
	RecordedAt       time.Time `json:"recorded_at"`
	EventType        string    `json:"event_type"` // fall_detected, crash_detected, sos
	SeverityLevel    *int16    `json:"severity_level,omitempty"`
	Location         *string   `json:"location,omitempty"`
	Description      *string   `json:"description,omitempty"`
	ContactNotified  *bool     `json:"emergency_contact_notified,omitempty"`
	SourceDevice     *string   `json:"source_device,omitempty"`
}

func (m *SafetyEventMetric) Kind() MetricType     { return MetricSafetyEvent }
func (m *SafetyEventMetric) Timestamp() time.Time { return m.RecordedAt }

type MindfulnessMetric struct {
	RecordedAt      time.Time `json:"recorded_at"`
	SessionType     *string   `json:"session_type,omitempty"`
	DurationMinutes *int32    `json:"duration_minutes,omitempty"`
	StressBefore    *int16    `json:"stress_level_before,omitempty"`
	StressAfter     *int16    `json:"stress_level_after,omitempty"`
	FocusRating     *int16    `json:"focus_rating,omitempty"`
	Notes           *string   `json:"notes,omitempty"`
	SourceDevice    *string   `json:"source_device,omitempty"`
}

func (m *MindfulnessMetric) Kind() MetricType     { return MetricMindfulness }
func (m *MindfulnessMetric) Timestamp() time.Time { return m.RecordedAt }

type MentalHealthMetric struct {
	RecordedAt        time.Time `json:"recorded_at"`
	MoodRating        *int16    `json:"mood_rating,omitempty"`
	AnxietyLevel      *int16    `json:"anxiety_level,omitempty"`
	StressLevel       *int16    `json:"stress_level,omitempty"`
	EnergyLevel       *int16    `json:"energy_level,omitempty"`
	SleepQuality      *int16    `json:"sleep_quality_perception,omitempty"`
	MedicationTaken   *bool     `json:"medication_taken,omitempty"`
	TherapySession    *bool     `json:"therapy_session,omitempty"`
	SourceDevice      *string   `json:"source_device,omitempty"`
}

func (m *MentalHealthMetric) Kind() MetricType     { return MetricMentalHealth }
func (m *MentalHealthMetric) Timestamp() time.Time { return m.RecordedAt }

type MenstrualMetric struct {
	RecordedAt     time.Time `json:"recorded_at"`
	Flow           *string   `json:"menstrual_flow,omitempty"` // none, light, medium, heavy
	Spotting       *bool     `json:"spotting,omitempty"`
	CycleDay       *int16    `json:"cycle_day,omitempty"`
	CrampsSeverity *int16    `json:"cramps_severity,omitempty"`
	MoodRating     *int16    `json:"mood_rating,omitempty"`
	EnergyLevel    *int16    `json:"energy_level,omitempty"`
	SourceDevice   *string   `json:"source_device,omitempty"`
}

func (m *MenstrualMetric) Kind() MetricType     { return MetricMenstrual }
func (m *MenstrualMetric) Timestamp() time.Time { return m.RecordedAt }

type FertilityMetric struct {
	RecordedAt         time.Time `json:"recorded_at"`
	CervicalMucus      *string   `json:"cervical_mucus_quality,omitempty"`
	OvulationTest      *string   `json:"ovulation_test_result,omitempty"`
	SexualActivity     *bool     `json:"sexual_activity,omitempty"`
	PregnancyTest      *string   `json:"pregnancy_test_result,omitempty"`
	BasalBodyTempC     *float64  `json:"basal_body_temperature_celsius,omitempty"`
	CervixFirmness     *int16    `json:"cervix_firmness,omitempty"`
	CervixPosition     *int16    `json:"cervix_position,omitempty"`
	LHLevel            *float64  `json:"lh_level,omitempty"`
	Notes              *string   `json:"notes,omitempty"`
	SourceDevice       *string   `json:"source_device,omitempty"`
}

func (m *FertilityMetric) Kind() MetricType     { return MetricFertility }
func (m *FertilityMetric) Timestamp() time.Time { return m.RecordedAt }

type SymptomMetric struct {
	RecordedAt      time.Time `json:"recorded_at"`
	SymptomType     string    `json:"symptom_type"`
	SeverityRating  *int16    `json:"severity_rating,omitempty"`
	DurationMinutes *int32    `json:"duration_minutes,omitempty"`
	Triggers        *string   `json:"triggers,omitempty"`
	ReliefFactors   *string   `json:"relief_factors,omitempty"`
	Notes           *string   `json:"notes,omitempty"`
	SourceDevice    *string   `json:"source_device,omitempty"`
}

func (m *SymptomMetric) Kind() MetricType     { return MetricSymptom }
func (m *SymptomMetric) Timestamp() time.Time { return m.RecordedAt }

type HygieneMetric struct {
	RecordedAt      time.Time `json:"recorded_at"`
	ActivityType    string    `json:"activity_type"` // handwashing, toothbrushing
	Frequency       *int32    `json:"frequency,omitempty"`
	DurationMinutes *int32    `json:"duration_minutes,omitempty"`
	QualityRating   *int16    `json:"quality_rating,omitempty"`
	Notes           *string   `json:"notes,omitempty"`
	SourceDevice    *string   `json:"source_device,omitempty"`
}

func (m *HygieneMetric) Kind() MetricType     { return MetricHygiene }
func (m *HygieneMetric) Timestamp() time.Time { return m.RecordedAt }

// Workout is a session persisted in its own table but routed through the
// metric union like any other variant.
type Workout struct {
	WorkoutType      string    `json:"workout_type"`
	StartedAt        time.Time `json:"started_at"`
	EndedAt          time.Time `json:"ended_at"`
	TotalEnergyKcal  *float64  `json:"total_energy_kcal,omitempty"`
	ActiveEnergyKcal *float64  `json:"active_energy_kcal,omitempty"`
	BasalEnergyKcal  *float64  `json:"basal_energy_kcal,omitempty"`
	DistanceMeters   *float64  `json:"distance_meters,omitempty"`
	AvgHeartRate     *int16    `json:"avg_heart_rate,omitempty"`
	MaxHeartRate     *int16    `json:"max_heart_rate,omitempty"`
	SourceDevice     *string   `json:"source_device,omitempty"`
}

func (m *Workout) Kind() MetricType     { return MetricWorkout }
func (m *Workout) Timestamp() time.Time { return m.StartedAt }

// DurationMinutes returns the workout span length in whole minutes.
func (m *Workout) DurationMinutes() int64 {
	return int64(m.EndedAt.Sub(m.StartedAt).Minutes())
}
