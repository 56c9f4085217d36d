// Package repository provides the diagnosis record stores: a
// process-lifetime memory store and SQL-backed stores for deployments
// that keep history across restarts.
package repository

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/sb-diagnostic-server/internal/domain"
)

// exportVersion identifies the JSON export layout.
const exportVersion = "1.0"

// RecordExport represents the JSON export format.
type RecordExport struct {
	Version    string                    `json:"version"`
	ExportedAt time.Time                 `json:"exported_at"`
	Count      int                       `json:"count"`
	Diagnoses  []*domain.DiagnosisRecord `json:"diagnoses"`
}

func writeExport(w io.Writer, records []*domain.DiagnosisRecord) error {
	export := &RecordExport{
		Version:    exportVersion,
		ExportedAt: time.Now().UTC(),
		Count:      len(records),
		Diagnoses:  records,
	}
	if export.Diagnoses == nil {
		export.Diagnoses = []*domain.DiagnosisRecord{}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// readExport decodes and validates an export document. Risk level and
// recommendations are re-derived from each entry's diagnosis.
func readExport(r io.Reader) ([]*domain.DiagnosisRecord, error) {
	var export RecordExport
	if err := json.NewDecoder(r).Decode(&export); err != nil {
		return nil, domain.NewValidationError("body", fmt.Sprintf("failed to decode JSON: %v", err), nil)
	}
	if export.Version != exportVersion {
		return nil, domain.NewValidationError("version", fmt.Sprintf("unsupported export version %q", export.Version), export.Version)
	}
	for i, rec := range export.Diagnoses {
		if rec == nil {
			return nil, domain.NewValidationError("diagnoses", fmt.Sprintf("export entry %d is empty", i), nil)
		}
		if !rec.Diagnosis.Valid() {
			return nil, domain.NewValidationError("diagnoses", fmt.Sprintf("export entry %d has unknown diagnosis %q", i, rec.Diagnosis), rec.Diagnosis)
		}
		// Derived fields always follow the label, whatever the document says.
		rec.RiskLevel = rec.Diagnosis.RiskLevel()
		rec.Recommendations = rec.Diagnosis.Recommendations()
	}
	return export.Diagnoses, nil
}
