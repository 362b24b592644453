package processor

import (
	"encoding/json"

	"github.com/vitalsd/vitalsd/internal/config"
	"github.com/vitalsd/vitalsd/internal/model"
)

// Silent-loss detection thresholds. A `processed` status must never be
// reported when rows went missing without an error entry.
const (
	ParamLimitThreshold = 50
	LossPctThreshold    = 1.0
)

// VariantCounts is the per-variant slice of the reconciliation report.
type VariantCounts struct {
	Submitted int `json:"submitted"`
	Deduped   int `json:"deduped"`
}

// Reconciliation is the silent-loss verdict plus the audit trail persisted
// into the raw ingestion's error column.
type Reconciliation struct {
	Expected   int     `json:"expected"`
	Actual     int     `json:"actual"`
	Failed     int     `json:"failed"`
	Silent     int     `json:"silent"`
	LossPct    float64 `json:"loss_pct"`
	Status     string  `json:"status"`
	Reason     string  `json:"reason"`
	Thresholds struct {
		ParamLimitThreshold int     `json:"param_limit_threshold"`
		LossPctThreshold    float64 `json:"loss_pct_threshold"`
		SafeParamLimit      int     `json:"safe_param_limit"`
	} `json:"thresholds"`
	PerVariant map[string]VariantCounts   `json:"per_variant,omitempty"`
	DedupStats map[model.MetricFamily]int `json:"dedup_stats,omitempty"`
	Errors     []model.ProcessingError    `json:"errors,omitempty"`
}

// Reconcile compares what the caller submitted with what the processor
// reports written, and decides the final processing status.
//
// expected is the post-dedup, post-validation row count handed to the
// processor; validation rejects are accounted separately by the caller.
func Reconcile(expected int, perVariant map[string]VariantCounts, res *Result) *Reconciliation {
	r := &Reconciliation{
		Expected:   expected,
		Actual:     res.ProcessedCount,
		Failed:     res.FailedCount,
		PerVariant: perVariant,
		DedupStats: res.DedupStats,
		Errors:     res.Errors,
	}
	r.Thresholds.ParamLimitThreshold = ParamLimitThreshold
	r.Thresholds.LossPctThreshold = LossPctThreshold
	r.Thresholds.SafeParamLimit = config.SafeParamLimit

	r.Silent = expected - r.Actual - r.Failed
	if r.Silent < 0 {
		r.Silent = 0
	}
	den := expected
	if den < 1 {
		den = 1
	}
	r.LossPct = 100 * float64(expected-r.Actual) / float64(den)

	r.Status, r.Reason = decide(expected, r.Actual, r.Failed, r.Silent, r.LossPct, len(res.Errors))
	return r
}

func decide(expected, actual, failed, silent int, lossPct float64, errCount int) (string, string) {
	switch {
	case actual == expected && errCount == 0:
		return model.StatusProcessed, "all rows written"
	case silent == 0 && failed > 0 && actual > 0:
		return model.StatusPartialSuccess, "explicit failures only, no silent loss"
	case silent > ParamLimitThreshold && actual*100 < expected:
		return model.StatusError, "parameter-limit violation suspected: large silent loss with near-zero writes"
	case lossPct > LossPctThreshold:
		return model.StatusError, "loss percentage over threshold"
	case actual == 0 && expected > 0:
		return model.StatusError, "nothing written"
	case silent > 0:
		return model.StatusPartialSuccess, "silent loss under threshold"
	case failed > 0:
		return model.StatusPartialSuccess, "explicit failures only"
	default:
		return model.StatusProcessed, "all rows written"
	}
}

// ReportJSON renders the reconciliation for the processing_errors column.
func (r *Reconciliation) ReportJSON() string {
	raw, err := json.Marshal(r)
	if err != nil {
		return `{"status":"` + r.Status + `"}`
	}
	return string(raw)
}
