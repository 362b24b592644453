package config

// ValidationConfig holds the numeric bands each populated metric field is
// checked against. Loaded once at startup; treated as immutable after.
type ValidationConfig struct {
	HeartRateMin int16 `envconfig:"VALIDATION_HEART_RATE_MIN" default:"15"`
	HeartRateMax int16 `envconfig:"VALIDATION_HEART_RATE_MAX" default:"300"`
	HRVMinMS     float64 `envconfig:"VALIDATION_HRV_MIN_MS" default:"0"`
	HRVMaxMS     float64 `envconfig:"VALIDATION_HRV_MAX_MS" default:"500"`

	SystolicMin  int16 `envconfig:"VALIDATION_SYSTOLIC_MIN" default:"50"`
	SystolicMax  int16 `envconfig:"VALIDATION_SYSTOLIC_MAX" default:"250"`
	DiastolicMin int16 `envconfig:"VALIDATION_DIASTOLIC_MIN" default:"30"`
	DiastolicMax int16 `envconfig:"VALIDATION_DIASTOLIC_MAX" default:"150"`

	SleepDurationMinMinutes int32   `envconfig:"VALIDATION_SLEEP_DURATION_MIN_MINUTES" default:"1"`
	SleepDurationMaxMinutes int32   `envconfig:"VALIDATION_SLEEP_DURATION_MAX_MINUTES" default:"1440"`
	SleepEfficiencyMin      float64 `envconfig:"VALIDATION_SLEEP_EFFICIENCY_MIN" default:"0"`
	SleepEfficiencyMax      float64 `envconfig:"VALIDATION_SLEEP_EFFICIENCY_MAX" default:"100"`
	// Tolerance between duration_minutes and the start/end span.
	SleepDurationToleranceMinutes int32 `envconfig:"VALIDATION_SLEEP_DURATION_TOLERANCE_MINUTES" default:"60"`

	StepsMaxPerDay      int32   `envconfig:"VALIDATION_STEPS_MAX_PER_DAY" default:"200000"`
	ActiveEnergyMaxKcal float64 `envconfig:"VALIDATION_ACTIVE_ENERGY_MAX_KCAL" default:"20000"`
	DistanceMaxMeters   float64 `envconfig:"VALIDATION_DISTANCE_MAX_METERS" default:"500000"`

	BodyWeightMinKg float64 `envconfig:"VALIDATION_BODY_WEIGHT_MIN_KG" default:"20"`
	BodyWeightMaxKg float64 `envconfig:"VALIDATION_BODY_WEIGHT_MAX_KG" default:"500"`
	BMIMin          float64 `envconfig:"VALIDATION_BMI_MIN" default:"15"`
	BMIMax          float64 `envconfig:"VALIDATION_BMI_MAX" default:"50"`
	BodyFatMinPct   float64 `envconfig:"VALIDATION_BODY_FAT_MIN_PCT" default:"3"`
	BodyFatMaxPct   float64 `envconfig:"VALIDATION_BODY_FAT_MAX_PCT" default:"50"`

	BodyTempMinC  float64 `envconfig:"VALIDATION_BODY_TEMP_MIN_C" default:"30"`
	BodyTempMaxC  float64 `envconfig:"VALIDATION_BODY_TEMP_MAX_C" default:"45"`
	BasalTempMinC float64 `envconfig:"VALIDATION_BASAL_TEMP_MIN_C" default:"35"`
	BasalTempMaxC float64 `envconfig:"VALIDATION_BASAL_TEMP_MAX_C" default:"39"`
	WristTempMinC float64 `envconfig:"VALIDATION_WRIST_TEMP_MIN_C" default:"30"`
	WristTempMaxC float64 `envconfig:"VALIDATION_WRIST_TEMP_MAX_C" default:"45"`

	GlucoseMinMgDl float64 `envconfig:"VALIDATION_GLUCOSE_MIN_MG_DL" default:"20"`
	GlucoseMaxMgDl float64 `envconfig:"VALIDATION_GLUCOSE_MAX_MG_DL" default:"600"`
	InsulinMaxUnits float64 `envconfig:"VALIDATION_INSULIN_MAX_UNITS" default:"100"`

	RespiratoryRateMin int32   `envconfig:"VALIDATION_RESPIRATORY_RATE_MIN" default:"5"`
	RespiratoryRateMax int32   `envconfig:"VALIDATION_RESPIRATORY_RATE_MAX" default:"60"`
	SpO2MinPct         float64 `envconfig:"VALIDATION_SPO2_MIN_PCT" default:"70"`
	SpO2MaxPct         float64 `envconfig:"VALIDATION_SPO2_MAX_PCT" default:"100"`

	AudioMaxDb float64 `envconfig:"VALIDATION_AUDIO_MAX_DB" default:"140"`

	WorkoutDurationMinMinutes int64 `envconfig:"VALIDATION_WORKOUT_DURATION_MIN_MINUTES" default:"1"`
	WorkoutDurationMaxMinutes int64 `envconfig:"VALIDATION_WORKOUT_DURATION_MAX_MINUTES" default:"1440"`

	CycleDayMin int16 `envconfig:"VALIDATION_CYCLE_DAY_MIN" default:"1"`
	CycleDayMax int16 `envconfig:"VALIDATION_CYCLE_DAY_MAX" default:"45"`
	LHMin       float64 `envconfig:"VALIDATION_LH_MIN" default:"0"`
	LHMax       float64 `envconfig:"VALIDATION_LH_MAX" default:"100"`

	// Accept timestamps at most this far in the future, to tolerate clock skew.
	FutureSkewSeconds int64 `envconfig:"VALIDATION_FUTURE_SKEW_SECONDS" default:"300"`
}
