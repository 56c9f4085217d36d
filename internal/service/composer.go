package service

import (
	"strconv"
	"time"

	"github.com/sb-diagnostic-server/internal/domain"
)

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time

// Composer turns a raw request and a successful prediction into a record.
// It performs no I/O; the clock is its only side input.
type Composer struct {
	now Clock
}

// NewComposer creates a composer. A nil clock uses time.Now.
func NewComposer(now Clock) *Composer {
	if now == nil {
		now = time.Now
	}
	return &Composer{now: now}
}

// Compose builds the record. ID and Seq are left for the store to assign.
func (c *Composer) Compose(raw map[string]interface{}, outcome *domain.PredictionOutcome) *domain.DiagnosisRecord {
	rec := &domain.DiagnosisRecord{
		PatientID:       identityField(raw["patient_id"]),
		PatientName:     identityField(raw["patient_name"]),
		Diagnosis:       outcome.Diagnosis,
		Confidence:      outcome.Confidence,
		RiskLevel:       outcome.Diagnosis.RiskLevel(),
		Timestamp:       c.now().UTC(),
		Recommendations: outcome.Diagnosis.Recommendations(),
		InputData:       domain.CopyRaw(raw),
	}
	if outcome.ProbabilitySB != nil {
		p := *outcome.ProbabilitySB
		rec.ProbabilitySB = &p
	}
	if outcome.ProbabilityNoSB != nil {
		p := *outcome.ProbabilityNoSB
		rec.ProbabilityNoSB = &p
	}
	return rec
}

// identityField renders patient_id / patient_name, substituting N/A for
// falsy values.
func identityField(v interface{}) string {
	if !truthy(v) {
		return domain.NotAvailable
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return domain.NotAvailable
	}
}
