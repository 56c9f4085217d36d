package repository

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sb-diagnostic-server/internal/domain"
)

// MemoryStore keeps diagnosis records for the lifetime of the process.
// Writers are serialized; readers get copies taken under the read lock.
type MemoryStore struct {
	mu      sync.RWMutex
	records []*domain.DiagnosisRecord
	nextSeq int64
	lastTS  time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextSeq: 1}
}

// Append assigns the record's ID and Seq and stores a copy. A timestamp
// earlier than the newest stored one is raised to it so timestamps never
// decrease in insertion order.
func (s *MemoryStore) Append(ctx context.Context, record *domain.DiagnosisRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record.ID = uuid.NewString()
	record.Seq = s.nextSeq
	s.nextSeq++
	if record.Timestamp.Before(s.lastTS) {
		record.Timestamp = s.lastTS
	}
	s.lastTS = record.Timestamp

	s.records = append(s.records, record.Clone())
	return nil
}

// List returns a snapshot of every record in insertion order.
func (s *MemoryStore) List(ctx context.Context) ([]*domain.DiagnosisRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.DiagnosisRecord, len(s.records))
	for i, r := range s.records {
		out[i] = r.Clone()
	}
	return out, nil
}

// FindByPatientID returns the first record for the patient.
func (s *MemoryStore) FindByPatientID(ctx context.Context, patientID string) (*domain.DiagnosisRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.records {
		if r.PatientID == patientID {
			return r.Clone(), nil
		}
	}
	return nil, &domain.NotFoundError{Resource: "patient ID", ID: patientID}
}

// FindAllByPatientID returns every record for the patient.
func (s *MemoryStore) FindAllByPatientID(ctx context.Context, patientID string) ([]*domain.DiagnosisRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.DiagnosisRecord
	for _, r := range s.records {
		if r.PatientID == patientID {
			out = append(out, r.Clone())
		}
	}
	if len(out) == 0 {
		return nil, &domain.NotFoundError{Resource: "patient ID", ID: patientID}
	}
	return out, nil
}

// Get returns the record with the given stable identifier.
func (s *MemoryStore) Get(ctx context.Context, id string) (*domain.DiagnosisRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexOf(id); i >= 0 {
		return s.records[i].Clone(), nil
	}
	return nil, &domain.NotFoundError{Resource: "record ID", ID: id}
}

// DeleteAt removes the record at index; later records shift down by one.
func (s *MemoryStore) DeleteAt(ctx context.Context, index int) (*domain.DiagnosisRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.records) {
		return nil, &domain.OutOfRangeError{Index: index, Length: len(s.records)}
	}
	return s.removeAt(index), nil
}

// Delete removes the record with the given stable identifier.
func (s *MemoryStore) Delete(ctx context.Context, id string) (*domain.DiagnosisRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return nil, &domain.NotFoundError{Resource: "record ID", ID: id}
	}
	return s.removeAt(i), nil
}

// Stats summarizes the stored records.
func (s *MemoryStore) Stats(ctx context.Context) (domain.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return domain.ComputeStats(s.records), nil
}

// Count returns the number of stored records.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records), nil
}

// ExportJSON writes a snapshot of the history.
func (s *MemoryStore) ExportJSON(ctx context.Context, w io.Writer) error {
	records, err := s.List(ctx)
	if err != nil {
		return err
	}
	return writeExport(w, records)
}

// ImportJSON appends exported records, keeping their IDs. Timestamps are
// clamped like Append so they never decrease in insertion order. Records
// whose ID is already stored are skipped.
func (s *MemoryStore) ImportJSON(ctx context.Context, r io.Reader) (imported int, skipped int, err error) {
	records, err := readExport(r)
	if err != nil {
		return 0, 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range records {
		if rec.ID != "" && s.indexOf(rec.ID) >= 0 {
			skipped++
			continue
		}
		c := rec.Clone()
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		c.Seq = s.nextSeq
		s.nextSeq++
		if c.Timestamp.Before(s.lastTS) {
			c.Timestamp = s.lastTS
		}
		s.lastTS = c.Timestamp
		s.records = append(s.records, c)
		imported++
	}
	return imported, skipped, nil
}

// Close is a no-op; memory-resident history ends with the process.
func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) indexOf(id string) int {
	for i, r := range s.records {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func (s *MemoryStore) removeAt(i int) *domain.DiagnosisRecord {
	rec := s.records[i]
	copy(s.records[i:], s.records[i+1:])
	s.records[len(s.records)-1] = nil
	s.records = s.records[:len(s.records)-1]
	return rec
}
