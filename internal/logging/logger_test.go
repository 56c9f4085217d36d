package logging

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sb-diagnostic-server/internal/domain"
)

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(domain.LoggingConfig{Level: "debug", Format: "json", Output: "stdout"})
	require.NoError(t, err)

	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
}

func TestNewLogger_TextAndUnknownLevel(t *testing.T) {
	logger, err := NewLogger(domain.LoggingConfig{Level: "chatty", Format: "text", Output: "stderr"})
	require.NoError(t, err)

	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
}

func TestNewLogger_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "server.log")

	logger, err := NewLogger(domain.LoggingConfig{Level: "info", Format: "json", Output: "file", Filename: path})
	require.NoError(t, err)

	logger.Info("hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"hello"`)
}

func TestNewLogger_InvalidOutput(t *testing.T) {
	_, err := NewLogger(domain.LoggingConfig{Level: "info", Output: "syslog"})
	assert.Error(t, err)

	_, err = NewLogger(domain.LoggingConfig{Level: "info", Output: "file"})
	assert.Error(t, err)
}

func TestPatientFields(t *testing.T) {
	fields := PatientFields(true, "P1", "Angela")
	assert.Equal(t, redacted, fields["patient_id"])
	assert.Equal(t, redacted, fields["patient_name"])

	fields = PatientFields(true, domain.NotAvailable, "")
	assert.Equal(t, domain.NotAvailable, fields["patient_id"])
	assert.Equal(t, "", fields["patient_name"])

	fields = PatientFields(false, "P1", "Angela")
	assert.Equal(t, "P1", fields["patient_id"])
	assert.Equal(t, "Angela", fields["patient_name"])
}

func TestSanitizeError(t *testing.T) {
	assert.Equal(t, "", SanitizeError(nil))
	assert.Equal(t, "boom", SanitizeError(errors.New("boom")))

	long := SanitizeError(errors.New(strings.Repeat("x", 600)))
	assert.True(t, strings.HasSuffix(long, "... [TRUNCATED]"))
	assert.Len(t, long, 500+len("... [TRUNCATED]"))
}

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "ab", Truncate("abcdef", 2))

	// "é" is two bytes; a cut at byte 2 would split it.
	cut := Truncate("aé", 2)
	assert.Equal(t, "a", cut)
	assert.True(t, utf8.ValidString(cut))

	msg := SanitizeError(errors.New(strings.Repeat("x", 499) + strings.Repeat("é", 10)))
	assert.True(t, utf8.ValidString(msg))
	assert.True(t, strings.HasPrefix(msg, strings.Repeat("x", 499)+"... [TRUNCATED]"))
}
