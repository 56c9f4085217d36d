// Package domain contains the core entities for pediatric significant
// bacteriuria (SB) screening: the normalized feature set sent to the
// predictive model, the model's outcome, and the diagnosis record kept in
// the history store.
package domain

import (
	"encoding/json"
	"math"
	"time"
)

// Diagnosis is the label produced by the predictive model.
type Diagnosis string

const (
	SBDetected    Diagnosis = "SB Detected"
	SBNotDetected Diagnosis = "SB Not Detected"
)

// Valid reports whether d is one of the two labels the model may emit.
func (d Diagnosis) Valid() bool {
	return d == SBDetected || d == SBNotDetected
}

// RiskLevel is a display classification derived from the diagnosis.
type RiskLevel string

const (
	RiskHigh RiskLevel = "High"
	RiskLow  RiskLevel = "Low"
)

var (
	detectedRecommendations = []string{
		"Immediate urine culture recommended",
		"Consider antibiotic therapy",
		"Monitor kidney function closely",
		"Increase fluid intake",
		"Follow-up in 48-72 hours",
	}

	routineRecommendations = []string{
		"Continue routine monitoring",
		"Maintain adequate hydration",
		"Regular follow-up as scheduled",
	}
)

// RiskLevel is High exactly when d is SB Detected.
func (d Diagnosis) RiskLevel() RiskLevel {
	if d == SBDetected {
		return RiskHigh
	}
	return RiskLow
}

// Recommendations returns a fresh copy of the fixed list for d.
func (d Diagnosis) Recommendations() []string {
	if d == SBDetected {
		return append([]string(nil), detectedRecommendations...)
	}
	return append([]string(nil), routineRecommendations...)
}

// NotAvailable is stored in place of missing patient identity fields.
const NotAvailable = "N/A"

// Features is the normalized feature set handed to the predictive model.
// Values are float64 so that lenient validation can carry NaN through;
// NaN is encoded as JSON null.
type Features struct {
	Age             float64
	Gender          int
	LeukocyteCount  float64
	Nitrite         int
	Protein         float64
	BacterialCount  float64
	PH              float64
	SpecificGravity float64
}

// MarshalJSON encodes the feature set with the field names the model reads.
func (f Features) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"age":              jsonNumber(f.Age),
		"gender":           f.Gender,
		"leukocyte_count":  jsonNumber(f.LeukocyteCount),
		"nitrite":          f.Nitrite,
		"protein":          jsonNumber(f.Protein),
		"bacterial_count":  jsonNumber(f.BacterialCount),
		"ph":               jsonNumber(f.PH),
		"specific_gravity": jsonNumber(f.SpecificGravity),
	})
}

func jsonNumber(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

// PredictionOutcome is what the model returns for one feature set.
//
// Confidence is opaque: its scale belongs to the model contract and is
// displayed as a percentage without renormalization.
type PredictionOutcome struct {
	Diagnosis       Diagnosis `json:"diagnosis"`
	Confidence      float64   `json:"confidence"`
	ProbabilitySB   *float64  `json:"probability_sb,omitempty"`
	ProbabilityNoSB *float64  `json:"probability_no_sb,omitempty"`
}

// DiagnosisRecord is a composed, persisted diagnosis.
type DiagnosisRecord struct {
	ID              string                 `json:"id"`
	Seq             int64                  `json:"seq"`
	PatientID       string                 `json:"patient_id"`
	PatientName     string                 `json:"patient_name"`
	Diagnosis       Diagnosis              `json:"diagnosis"`
	Confidence      float64                `json:"confidence"`
	RiskLevel       RiskLevel              `json:"risk_level"`
	Timestamp       time.Time              `json:"timestamp"`
	Recommendations []string               `json:"recommendations"`
	InputData       map[string]interface{} `json:"input_data"`
	ProbabilitySB   *float64               `json:"probability_sb,omitempty"`
	ProbabilityNoSB *float64               `json:"probability_no_sb,omitempty"`
}

// Clone returns a deep copy so callers never share slices or maps with a store.
func (r *DiagnosisRecord) Clone() *DiagnosisRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Recommendations = append([]string(nil), r.Recommendations...)
	c.InputData = CopyRaw(r.InputData)
	if r.ProbabilitySB != nil {
		v := *r.ProbabilitySB
		c.ProbabilitySB = &v
	}
	if r.ProbabilityNoSB != nil {
		v := *r.ProbabilityNoSB
		c.ProbabilityNoSB = &v
	}
	return &c
}

// CopyRaw deep-copies a decoded JSON object.
func CopyRaw(raw map[string]interface{}) map[string]interface{} {
	if raw == nil {
		return nil
	}
	out := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return CopyRaw(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}

// Stats summarizes the stored history.
type Stats struct {
	TotalDiagnoses  int     `json:"total_diagnoses"`
	SBDetected      int     `json:"sb_detected"`
	SBNotDetected   int     `json:"sb_not_detected"`
	SBDetectionRate float64 `json:"sb_detection_rate"`
}

// ComputeStats summarizes records. The detection rate is a percentage
// rounded to one decimal place and 0 for an empty history.
func ComputeStats(records []*DiagnosisRecord) Stats {
	s := Stats{TotalDiagnoses: len(records)}
	for _, r := range records {
		if r.Diagnosis == SBDetected {
			s.SBDetected++
		}
	}
	s.SBNotDetected = s.TotalDiagnoses - s.SBDetected
	s.SBDetectionRate = DetectionRate(s.SBDetected, s.TotalDiagnoses)
	return s
}

// DetectionRate returns round(100*detected/total, 1), or 0 when total is 0.
func DetectionRate(detected, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(detected)/float64(total)*1000) / 10
}
