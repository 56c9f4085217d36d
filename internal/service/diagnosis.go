package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sb-diagnostic-server/internal/domain"
	"github.com/sb-diagnostic-server/internal/logging"
)

// DiagnosisService runs the diagnosis pipeline (validate, predict, compose,
// store) and is the only writer of the record store.
type DiagnosisService struct {
	validator *InputValidator
	predictor domain.Predictor
	composer  *Composer
	store     domain.RecordStore
	logger    *logrus.Logger
	privacy   bool
	changes   *ChangeFeed
}

// DiagnosisServiceConfig groups the service collaborators.
type DiagnosisServiceConfig struct {
	Validator *InputValidator
	Predictor domain.Predictor
	Composer  *Composer
	Store     domain.RecordStore
	Logger    *logrus.Logger
	// PrivacyMode redacts patient identity in log entries.
	PrivacyMode bool
}

// NewDiagnosisService creates a new diagnosis service
func NewDiagnosisService(cfg DiagnosisServiceConfig) (*DiagnosisService, error) {
	if cfg.Predictor == nil {
		return nil, fmt.Errorf("predictor is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if cfg.Validator == nil {
		cfg.Validator = NewInputValidator(true)
	}
	if cfg.Composer == nil {
		cfg.Composer = NewComposer(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &DiagnosisService{
		validator: cfg.Validator,
		predictor: cfg.Predictor,
		composer:  cfg.Composer,
		store:     cfg.Store,
		logger:    cfg.Logger,
		privacy:   cfg.PrivacyMode,
		changes:   NewChangeFeed(),
	}, nil
}

// Diagnose validates the raw request, calls the model and stores the
// composed record. Nothing is stored unless every step succeeds.
func (s *DiagnosisService) Diagnose(ctx context.Context, raw map[string]interface{}) (*domain.DiagnosisRecord, error) {
	features, err := s.validator.Validate(raw)
	if err != nil {
		s.logger.WithError(err).Debug("Diagnosis request rejected")
		return nil, err
	}

	start := time.Now()
	outcome, err := s.predictor.Predict(ctx, features)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"error":    logging.SanitizeError(err),
			"duration": time.Since(start).String(),
		}).Error("Prediction failed")
		return nil, fmt.Errorf("predicting diagnosis: %w", err)
	}

	record := s.composer.Compose(raw, outcome)
	if err := s.store.Append(ctx, record); err != nil {
		s.logger.WithError(err).Error("Failed to store diagnosis")
		return nil, fmt.Errorf("storing diagnosis: %w", err)
	}
	s.changes.Publish()

	s.logger.WithFields(logging.PatientFields(s.privacy, record.PatientID, record.PatientName)).
		WithFields(logrus.Fields{
			"record_id":  record.ID,
			"diagnosis":  record.Diagnosis,
			"confidence": record.Confidence,
			"risk_level": record.RiskLevel,
			"duration":   time.Since(start).String(),
		}).Info("Diagnosis recorded")

	return record, nil
}

// DeleteAt removes the record at a positional index.
func (s *DiagnosisService) DeleteAt(ctx context.Context, index int) (*domain.DiagnosisRecord, error) {
	rec, err := s.store.DeleteAt(ctx, index)
	if err != nil {
		return nil, err
	}
	s.changes.Publish()
	s.logger.WithFields(logrus.Fields{"record_id": rec.ID, "index": index}).Info("Diagnosis deleted")
	return rec, nil
}

// Delete removes a record by its stable identifier.
func (s *DiagnosisService) Delete(ctx context.Context, id string) (*domain.DiagnosisRecord, error) {
	rec, err := s.store.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	s.changes.Publish()
	s.logger.WithField("record_id", rec.ID).Info("Diagnosis deleted")
	return rec, nil
}

// Import appends exported records, skipping ones already stored.
func (s *DiagnosisService) Import(ctx context.Context, r io.Reader) (int, int, error) {
	imported, skipped, err := s.store.ImportJSON(ctx, r)
	if imported > 0 {
		s.changes.Publish()
	}
	if err != nil {
		return imported, skipped, err
	}
	s.logger.WithFields(logrus.Fields{"imported": imported, "skipped": skipped}).Info("Diagnoses imported")
	return imported, skipped, nil
}

// Store exposes the record store for read-only queries.
func (s *DiagnosisService) Store() domain.RecordStore {
	return s.store
}

// Changes returns the feed notified after every store mutation.
func (s *DiagnosisService) Changes() *ChangeFeed {
	return s.changes
}

// ChangeFeed fans out "history changed" signals. Signals coalesce: a slow
// subscriber sees at most one pending notification.
type ChangeFeed struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan struct{}
}

// NewChangeFeed creates an empty feed.
func NewChangeFeed() *ChangeFeed {
	return &ChangeFeed{subs: make(map[int]chan struct{})}
}

// Subscribe returns a notification channel and a function that releases it.
func (f *ChangeFeed) Subscribe() (<-chan struct{}, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	ch := make(chan struct{}, 1)
	f.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.subs, id)
			close(ch)
		})
	}
}

// Publish notifies every subscriber without blocking.
func (f *ChangeFeed) Publish() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
