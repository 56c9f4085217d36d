package domain

import (
	"context"
	"io"
)

// Predictor invokes the predictive model for one normalized feature set.
// Failures are reported as *InferenceError.
type Predictor interface {
	Predict(ctx context.Context, features Features) (*PredictionOutcome, error)
}

// RecordStore holds composed diagnosis records in insertion order.
// Implementations serialize mutations and hand out copies.
type RecordStore interface {
	// Append assigns ID and Seq and adds the record at the end.
	Append(ctx context.Context, record *DiagnosisRecord) error

	// List returns a point-in-time snapshot in insertion order.
	List(ctx context.Context) ([]*DiagnosisRecord, error)

	// FindByPatientID returns the first record for the patient in insertion order.
	FindByPatientID(ctx context.Context, patientID string) (*DiagnosisRecord, error)

	// FindAllByPatientID returns every record for the patient in insertion order.
	FindAllByPatientID(ctx context.Context, patientID string) ([]*DiagnosisRecord, error)

	// Get returns a record by its stable identifier.
	Get(ctx context.Context, id string) (*DiagnosisRecord, error)

	// DeleteAt removes and returns the record at a positional index.
	DeleteAt(ctx context.Context, index int) (*DiagnosisRecord, error)

	// Delete removes and returns a record by its stable identifier.
	Delete(ctx context.Context, id string) (*DiagnosisRecord, error)

	// Stats summarizes the stored records.
	Stats(ctx context.Context) (Stats, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// ExportJSON writes every record to w.
	ExportJSON(ctx context.Context, w io.Writer) error

	// ImportJSON appends records read from r, skipping IDs already present.
	ImportJSON(ctx context.Context, r io.Reader) (imported int, skipped int, err error)

	Close() error
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetStorageConfig() *StorageConfig
	GetInferenceConfig() *InferenceConfig
	Reload() error
	Validate() error
	IsProduction() bool
	IsDevelopment() bool
}
