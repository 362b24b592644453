package model

// IngestPayload is the canonical request body for POST /v1/ingest.
type IngestPayload struct {
	Data IngestData `json:"data"`
}

// IngestData carries the metric union slice plus workouts, which some
// exporters submit as a separate list rather than tagged union members.
type IngestData struct {
	Metrics  []Metric  `json:"metrics"`
	Workouts []Workout `json:"workouts,omitempty"`
}

// Empty reports whether the payload carries nothing to process.
func (d IngestData) Empty() bool {
	return len(d.Metrics) == 0 && len(d.Workouts) == 0
}

// MetricCount returns the total number of individual records.
func (d IngestData) MetricCount() int {
	return len(d.Metrics) + len(d.Workouts)
}

// ProcessingError describes one record that failed validation or storage.
type ProcessingError struct {
	MetricType   string `json:"metric_type"`
	ErrorMessage string `json:"error_message"`
	Index        *int   `json:"index,omitempty"`
}

// IngestResponse is the synchronous ingest result contract.
type IngestResponse struct {
	Success          bool              `json:"success"`
	ProcessedCount   int               `json:"processed_count"`
	FailedCount      int               `json:"failed_count"`
	ProcessingTimeMS int64             `json:"processing_time_ms"`
	Errors           []ProcessingError `json:"errors,omitempty"`
	ProcessingStatus string            `json:"processing_status,omitempty"`
	RawIngestionID   string            `json:"raw_ingestion_id,omitempty"`
}

// AsyncAcceptedResponse is returned with 202 when a large payload is queued.
type AsyncAcceptedResponse struct {
	Success        bool   `json:"success"`
	Status         string `json:"status"`
	RawIngestionID string `json:"raw_ingestion_id"`
	Message        string `json:"message"`
}

// APIResponse is the generic envelope used by non-ingest endpoints.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// OK wraps data in a successful envelope.
func OK(data any) APIResponse { return APIResponse{Success: true, Data: data} }

// Err wraps an error message in a failed envelope.
func Err(msg string) APIResponse { return APIResponse{Success: false, Error: msg} }
