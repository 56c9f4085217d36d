package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sb-diagnostic-server/internal/domain"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewPostgresStore(context.Background(), db)
	require.NoError(t, err)
	return store, mock
}

func recordRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"seq", "id", "patient_id", "patient_name", "diagnosis", "confidence", "risk_level",
		"timestamp_ns", "recommendations", "input_data", "probability_sb", "probability_no_sb",
	})
}

func expectLock(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("LOCK TABLE diagnoses IN SHARE ROW EXCLUSIVE MODE")).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestNewPostgresStore_RequiresDB(t *testing.T) {
	_, err := NewPostgresStore(context.Background(), nil)
	assert.Error(t, err)
}

func TestPostgresStore_Append(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	later := baseTime.Add(time.Hour)

	expectLock(mock)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(timestamp_ns), 0) FROM diagnoses")).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(later.UnixNano()))
	mock.ExpectQuery(`INSERT INTO diagnoses .* VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7, \$8, \$9, \$10, \$11\) RETURNING seq`).
		WithArgs(
			sqlmock.AnyArg(), "P1", "Name P1", "SB Detected", 0.8, "Low",
			later.UnixNano(), `["Continue routine monitoring"]`, `{"age":5,"patient_id":"P1"}`,
			nil, nil,
		).
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(7))
	mock.ExpectCommit()

	rec := newRecord("P1", domain.SBDetected, baseTime)
	require.NoError(t, store.Append(context.Background(), rec))

	assert.Equal(t, int64(7), rec.Seq)
	assert.NotEmpty(t, rec.ID)
	assert.True(t, later.Equal(rec.Timestamp), "clamped to newest stored timestamp")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendInsertFailure(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	expectLock(mock)
	mock.ExpectQuery("SELECT COALESCE").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(0))
	mock.ExpectQuery("INSERT INTO diagnoses").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	rec := newRecord("P1", domain.SBDetected, baseTime)
	err := store.Append(context.Background(), rec)

	assert.ErrorContains(t, err, "failed to insert")
	assert.Empty(t, rec.ID, "identity assigned only after commit")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteAt(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	expectLock(mock)
	mock.ExpectQuery(`SELECT .* FROM diagnoses ORDER BY seq LIMIT 1 OFFSET \$1`).
		WithArgs(2).
		WillReturnRows(recordRows().AddRow(
			int64(9), "rec-9", "P9", "Name P9", "SB Detected", 0.9, "High",
			baseTime.UnixNano(), `["Follow-up in 48-72 hours"]`, `{"age":5}`, nil, 0.1,
		))
	mock.ExpectExec(`DELETE FROM diagnoses WHERE seq = \$1`).
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec, err := store.DeleteAt(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, "rec-9", rec.ID)
	assert.Equal(t, domain.RiskHigh, rec.RiskLevel)
	assert.True(t, baseTime.Equal(rec.Timestamp))
	assert.Equal(t, []string{"Follow-up in 48-72 hours"}, rec.Recommendations)
	assert.Nil(t, rec.ProbabilitySB)
	require.NotNil(t, rec.ProbabilityNoSB)
	assert.Equal(t, 0.1, *rec.ProbabilityNoSB)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteAtOutOfRange(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	expectLock(mock)
	mock.ExpectQuery(`ORDER BY seq LIMIT 1 OFFSET \$1`).
		WithArgs(5).
		WillReturnRows(recordRows())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM diagnoses")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectRollback()

	_, err := store.DeleteAt(context.Background(), 5)

	var oor *domain.OutOfRangeError
	require.ErrorAs(t, err, &oor)
	assert.Equal(t, 5, oor.Index)
	assert.Equal(t, 3, oor.Length)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindByPatientIDNotFound(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`WHERE patient_id = \$1 ORDER BY seq LIMIT 1`).
		WithArgs("P404").
		WillReturnRows(recordRows())

	_, err := store.FindByPatientID(context.Background(), "P404")

	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.EqualError(t, err, "No diagnosis found for patient ID: P404")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Stats(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\), COALESCE\(SUM\(CASE WHEN diagnosis = \$1`).
		WithArgs("SB Detected").
		WillReturnRows(sqlmock.NewRows([]string{"count", "detected"}).AddRow(4, 1))

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.Stats{TotalDiagnoses: 4, SBDetected: 1, SBNotDetected: 3, SBDetectionRate: 25}, stats)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNumberedPlaceholders(t *testing.T) {
	assert.Equal(t, "SELECT 1 WHERE a = $1 AND b = $2", numberedPlaceholders("SELECT 1 WHERE a = ? AND b = ?"))
	assert.Equal(t, "SELECT 1", numberedPlaceholders("SELECT 1"))
}
