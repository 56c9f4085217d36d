package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sb-diagnostic-server/internal/domain"
)

const recordColumns = `seq, id, patient_id, patient_name, diagnosis, confidence, risk_level,
	timestamp_ns, recommendations, input_data, probability_sb, probability_no_sb`

// dialect captures the differences between the SQL backends.
type dialect struct {
	name string
	// lockTable is run at the start of every write transaction, if set.
	lockTable string
	// placeholders converts "?" markers to the backend's syntax.
	placeholders func(query string) string
}

var sqliteDialect = dialect{
	name:         "sqlite",
	placeholders: func(q string) string { return q },
}

var postgresDialect = dialect{
	name:         "postgres",
	lockTable:    "LOCK TABLE diagnoses IN SHARE ROW EXCLUSIVE MODE",
	placeholders: numberedPlaceholders,
}

func numberedPlaceholders(q string) string {
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// sqlStore implements domain.RecordStore over database/sql. Insertion order
// is the seq column; timestamps are stored as Unix nanoseconds.
type sqlStore struct {
	db      *sql.DB
	dialect dialect
	// mu serializes writers within this process.
	mu sync.Mutex
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(s scanner) (*domain.DiagnosisRecord, error) {
	rec := &domain.DiagnosisRecord{}
	var (
		diagnosis, risk        string
		tsNS                   int64
		recommendations, input string
		probSB, probNoSB       sql.NullFloat64
	)

	err := s.Scan(
		&rec.Seq, &rec.ID, &rec.PatientID, &rec.PatientName, &diagnosis,
		&rec.Confidence, &risk, &tsNS, &recommendations, &input,
		&probSB, &probNoSB,
	)
	if err != nil {
		return nil, err
	}

	rec.Diagnosis = domain.Diagnosis(diagnosis)
	rec.RiskLevel = domain.RiskLevel(risk)
	rec.Timestamp = time.Unix(0, tsNS).UTC()
	if err := json.Unmarshal([]byte(recommendations), &rec.Recommendations); err != nil {
		return nil, fmt.Errorf("failed to decode recommendations: %w", err)
	}
	if err := json.Unmarshal([]byte(input), &rec.InputData); err != nil {
		return nil, fmt.Errorf("failed to decode input data: %w", err)
	}
	if probSB.Valid {
		rec.ProbabilitySB = &probSB.Float64
	}
	if probNoSB.Valid {
		rec.ProbabilityNoSB = &probNoSB.Float64
	}
	return rec, nil
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func (s *sqlStore) q(query string) string {
	return s.dialect.placeholders(query)
}

// begin starts a write transaction, taking the table lock where the
// backend needs one.
func (s *sqlStore) begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	if s.dialect.lockTable != "" {
		if _, err := tx.ExecContext(ctx, s.dialect.lockTable); err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("failed to lock table: %w", err)
		}
	}
	return tx, nil
}

func (s *sqlStore) insert(ctx context.Context, tx *sql.Tx, rec *domain.DiagnosisRecord, id string, tsNS int64) (int64, error) {
	recommendations, err := json.Marshal(rec.Recommendations)
	if err != nil {
		return 0, fmt.Errorf("failed to encode recommendations: %w", err)
	}
	input, err := json.Marshal(rec.InputData)
	if err != nil {
		return 0, fmt.Errorf("failed to encode input data: %w", err)
	}

	var seq int64
	err = tx.QueryRowContext(ctx, s.q(`
		INSERT INTO diagnoses (
			id, patient_id, patient_name, diagnosis, confidence, risk_level,
			timestamp_ns, recommendations, input_data, probability_sb, probability_no_sb
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING seq
	`),
		id,
		rec.PatientID,
		rec.PatientName,
		string(rec.Diagnosis),
		rec.Confidence,
		string(rec.RiskLevel),
		tsNS,
		string(recommendations),
		string(input),
		nullFloat(rec.ProbabilitySB),
		nullFloat(rec.ProbabilityNoSB),
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to insert: %w", err)
	}
	return seq, nil
}

// Append assigns ID and Seq and stores the record, raising its timestamp to
// the newest stored one if it is older.
func (s *sqlStore) Append(ctx context.Context, rec *domain.DiagnosisRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var last int64
	if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(timestamp_ns), 0) FROM diagnoses").Scan(&last); err != nil {
		return fmt.Errorf("failed to read latest timestamp: %w", err)
	}

	tsNS := rec.Timestamp.UnixNano()
	if tsNS < last {
		tsNS = last
	}

	id := uuid.NewString()
	seq, err := s.insert(ctx, tx, rec, id, tsNS)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	rec.ID = id
	rec.Seq = seq
	rec.Timestamp = time.Unix(0, tsNS).UTC()
	return nil
}

func (s *sqlStore) query(ctx context.Context, query string, args ...interface{}) ([]*domain.DiagnosisRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var result []*domain.DiagnosisRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// List returns every record in insertion order.
func (s *sqlStore) List(ctx context.Context) ([]*domain.DiagnosisRecord, error) {
	return s.query(ctx, "SELECT "+recordColumns+" FROM diagnoses ORDER BY seq")
}

// FindByPatientID returns the first record for the patient.
func (s *sqlStore) FindByPatientID(ctx context.Context, patientID string) (*domain.DiagnosisRecord, error) {
	row := s.db.QueryRowContext(ctx, s.q("SELECT "+recordColumns+" FROM diagnoses WHERE patient_id = ? ORDER BY seq LIMIT 1"), patientID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Resource: "patient ID", ID: patientID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return rec, nil
}

// FindAllByPatientID returns every record for the patient.
func (s *sqlStore) FindAllByPatientID(ctx context.Context, patientID string) ([]*domain.DiagnosisRecord, error) {
	recs, err := s.query(ctx, "SELECT "+recordColumns+" FROM diagnoses WHERE patient_id = ? ORDER BY seq", patientID)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, &domain.NotFoundError{Resource: "patient ID", ID: patientID}
	}
	return recs, nil
}

// Get returns the record with the given stable identifier.
func (s *sqlStore) Get(ctx context.Context, id string) (*domain.DiagnosisRecord, error) {
	row := s.db.QueryRowContext(ctx, s.q("SELECT "+recordColumns+" FROM diagnoses WHERE id = ?"), id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Resource: "record ID", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return rec, nil
}

// DeleteAt removes the record at a positional index in insertion order.
func (s *sqlStore) DeleteAt(ctx context.Context, index int) (*domain.DiagnosisRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	outOfRange := func() error {
		var n int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM diagnoses").Scan(&n); err != nil {
			return fmt.Errorf("failed to count: %w", err)
		}
		return &domain.OutOfRangeError{Index: index, Length: n}
	}

	if index < 0 {
		return nil, outOfRange()
	}

	row := tx.QueryRowContext(ctx, s.q("SELECT "+recordColumns+" FROM diagnoses ORDER BY seq LIMIT 1 OFFSET ?"), index)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, outOfRange()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}

	if err := s.deleteSeq(ctx, tx, rec.Seq); err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete removes the record with the given stable identifier.
func (s *sqlStore) Delete(ctx context.Context, id string) (*domain.DiagnosisRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, s.q("SELECT "+recordColumns+" FROM diagnoses WHERE id = ?"), id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Resource: "record ID", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}

	if err := s.deleteSeq(ctx, tx, rec.Seq); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *sqlStore) deleteSeq(ctx context.Context, tx *sql.Tx, seq int64) error {
	if _, err := tx.ExecContext(ctx, s.q("DELETE FROM diagnoses WHERE seq = ?"), seq); err != nil {
		return fmt.Errorf("failed to delete: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Stats summarizes the stored records.
func (s *sqlStore) Stats(ctx context.Context) (domain.Stats, error) {
	var total, detected int
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN diagnosis = ? THEN 1 ELSE 0 END), 0)
		FROM diagnoses
	`), string(domain.SBDetected)).Scan(&total, &detected)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("failed to compute stats: %w", err)
	}
	return domain.Stats{
		TotalDiagnoses:  total,
		SBDetected:      detected,
		SBNotDetected:   total - detected,
		SBDetectionRate: domain.DetectionRate(detected, total),
	}, nil
}

// Count returns the number of stored records.
func (s *sqlStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM diagnoses").Scan(&n)
	return n, err
}

// ExportJSON writes every record in insertion order.
func (s *sqlStore) ExportJSON(ctx context.Context, w io.Writer) error {
	all, err := s.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list diagnoses: %w", err)
	}
	return writeExport(w, all)
}

// ImportJSON appends exported records in one transaction, keeping their IDs
// and skipping IDs already stored. Timestamps are clamped like Append.
func (s *sqlStore) ImportJSON(ctx context.Context, r io.Reader) (imported int, skipped int, err error) {
	records, err := readExport(r)
	if err != nil {
		return 0, 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.begin(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var last int64
	if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(timestamp_ns), 0) FROM diagnoses").Scan(&last); err != nil {
		return 0, 0, fmt.Errorf("failed to read latest timestamp: %w", err)
	}

	for _, rec := range records {
		id := rec.ID
		if id == "" {
			id = uuid.NewString()
		} else {
			var exists int
			err := tx.QueryRowContext(ctx, s.q("SELECT 1 FROM diagnoses WHERE id = ?"), id).Scan(&exists)
			if err == nil {
				skipped++
				continue
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return 0, 0, fmt.Errorf("failed to check existing: %w", err)
			}
		}
		tsNS := rec.Timestamp.UnixNano()
		if tsNS < last {
			tsNS = last
		}
		if _, err := s.insert(ctx, tx, rec, id, tsNS); err != nil {
			return 0, 0, err
		}
		last = tsNS
		imported++
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit: %w", err)
	}
	return imported, skipped, nil
}

// Close closes the underlying database.
func (s *sqlStore) Close() error {
	return s.db.Close()
}
