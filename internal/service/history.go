package service

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/sb-diagnostic-server/internal/domain"
)

// Filter and sort vocabularies accepted by the history query engine.
const (
	FilterAll = "all"

	SortByTimestamp   = "timestamp"
	SortByPatientName = "patient_name"
	SortByDiagnosis   = "diagnosis"
	SortByConfidence  = "confidence"

	SortAsc  = "asc"
	SortDesc = "desc"
)

// HistoryQuery selects and orders a view of the stored history.
type HistoryQuery struct {
	Search    string `form:"search" json:"search"`
	Filter    string `form:"filter" json:"filter"`
	SortBy    string `form:"sort_by" json:"sort_by"`
	SortOrder string `form:"sort_order" json:"sort_order"`
}

// WithDefaults fills unset parameters with the history view defaults:
// every diagnosis, newest first.
func (q HistoryQuery) WithDefaults() HistoryQuery {
	if q.Filter == "" {
		q.Filter = FilterAll
	}
	if q.SortBy == "" {
		q.SortBy = SortByTimestamp
	}
	if q.SortOrder == "" {
		q.SortOrder = SortDesc
	}
	return q
}

// Validate rejects unknown filter, sort key and sort order values.
func (q HistoryQuery) Validate() error {
	switch domain.Diagnosis(q.Filter) {
	case FilterAll, domain.SBDetected, domain.SBNotDetected:
	default:
		return domain.NewValidationError("filter", fmt.Sprintf("unknown filter %q", q.Filter), q.Filter)
	}
	switch q.SortBy {
	case SortByTimestamp, SortByPatientName, SortByDiagnosis, SortByConfidence:
	default:
		return domain.NewValidationError("sort_by", fmt.Sprintf("unknown sort key %q", q.SortBy), q.SortBy)
	}
	if q.SortOrder != SortAsc && q.SortOrder != SortDesc {
		return domain.NewValidationError("sort_order", fmt.Sprintf("unknown sort order %q", q.SortOrder), q.SortOrder)
	}
	return nil
}

// HistoryEngine filters and sorts record snapshots. It never touches a store
// and never mutates the slice it is given.
type HistoryEngine struct {
	tag language.Tag
}

// NewHistoryEngine creates an engine collating names in the given locale.
func NewHistoryEngine(locale string) (*HistoryEngine, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("parsing history locale: %w", err)
	}
	return &HistoryEngine{tag: tag}, nil
}

// Apply returns the filtered, stably sorted view of records.
func (e *HistoryEngine) Apply(records []*domain.DiagnosisRecord, q HistoryQuery) ([]*domain.DiagnosisRecord, error) {
	q = q.WithDefaults()
	if err := q.Validate(); err != nil {
		return nil, err
	}

	search := strings.ToLower(q.Search)
	view := make([]*domain.DiagnosisRecord, 0, len(records))
	for _, r := range records {
		if !matchesSearch(r, search) {
			continue
		}
		if q.Filter != FilterAll && string(r.Diagnosis) != q.Filter {
			continue
		}
		view = append(view, r)
	}

	// Collators keep internal buffers, so each call gets its own.
	col := collate.New(e.tag)
	compare := comparator(q.SortBy, col)
	desc := q.SortOrder == SortDesc
	sort.SliceStable(view, func(i, j int) bool {
		c := compare(view[i], view[j])
		if desc {
			c = -c
		}
		return c < 0
	})

	return view, nil
}

func matchesSearch(r *domain.DiagnosisRecord, lowered string) bool {
	if lowered == "" {
		return true
	}
	return strings.Contains(strings.ToLower(r.PatientName), lowered) ||
		strings.Contains(strings.ToLower(r.PatientID), lowered)
}

func comparator(sortBy string, col *collate.Collator) func(a, b *domain.DiagnosisRecord) int {
	switch sortBy {
	case SortByPatientName:
		return func(a, b *domain.DiagnosisRecord) int {
			return col.CompareString(a.PatientName, b.PatientName)
		}
	case SortByDiagnosis:
		return func(a, b *domain.DiagnosisRecord) int {
			return col.CompareString(string(a.Diagnosis), string(b.Diagnosis))
		}
	case SortByConfidence:
		return func(a, b *domain.DiagnosisRecord) int {
			switch {
			case a.Confidence < b.Confidence:
				return -1
			case a.Confidence > b.Confidence:
				return 1
			}
			return 0
		}
	default:
		return func(a, b *domain.DiagnosisRecord) int {
			return a.Timestamp.Compare(b.Timestamp)
		}
	}
}
