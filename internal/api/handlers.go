package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sb-diagnostic-server/internal/domain"
	"github.com/sb-diagnostic-server/internal/service"
)

const (
	maxDiagnoseBody = 1 << 20
	maxImportBody   = 32 << 20
)

// handleDiagnose runs one diagnosis request through the pipeline.
func (s *Server) handleDiagnose(c *gin.Context) {
	body := http.MaxBytesReader(c.Writer, c.Request.Body, maxDiagnoseBody)

	var raw map[string]interface{}
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		s.badRequest(c, "body", "Invalid JSON body: %v", err)
		return
	}

	record, err := s.service.Diagnose(c.Request.Context(), raw)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) handleListPatients(c *gin.Context) {
	records, err := s.service.Store().List(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	records = nonNil(records)
	c.JSON(http.StatusOK, gin.H{
		"total":     len(records),
		"diagnoses": records,
	})
}

func (s *Server) handleGetPatient(c *gin.Context) {
	record, err := s.service.Store().FindByPatientID(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) handlePatientHistory(c *gin.Context) {
	patientID := c.Param("id")
	records, err := s.service.Store().FindAllByPatientID(c.Request.Context(), patientID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"patient_id": patientID,
		"total":      len(records),
		"diagnoses":  nonNil(records),
	})
}

// handleDeleteAt removes the record at a position in insertion order.
func (s *Server) handleDeleteAt(c *gin.Context) {
	raw := c.Param("index")
	index, err := strconv.Atoi(raw)
	if err != nil {
		s.badRequest(c, "index", "Invalid diagnosis index: %s", raw)
		return
	}

	deleted, err := s.service.DeleteAt(c.Request.Context(), index)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Diagnosis deleted successfully",
		"deleted": deleted,
	})
}

func (s *Server) handleGetRecord(c *gin.Context) {
	record, err := s.service.Store().Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) handleDeleteRecord(c *gin.Context) {
	deleted, err := s.service.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Diagnosis deleted successfully",
		"deleted": deleted,
	})
}

// handleHistory returns the filtered and sorted history view.
func (s *Server) handleHistory(c *gin.Context) {
	var query service.HistoryQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		s.badRequest(c, "query", "Invalid history query: %v", err)
		return
	}

	view, err := s.historyView(c.Request.Context(), query)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.service.Store().Stats(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleHealth(c *gin.Context) {
	resp := gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	}
	if s.inferenceState != nil {
		resp["inference"] = s.inferenceState()
	}

	total, err := s.service.Store().Count(c.Request.Context())
	if err != nil {
		s.logger.WithError(err).Warn("Health check could not count diagnoses")
		resp["status"] = "degraded"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	resp["total_diagnoses"] = total
	c.JSON(http.StatusOK, resp)
}

// handleExport downloads the whole history as a JSON document.
func (s *Server) handleExport(c *gin.Context) {
	var buf bytes.Buffer
	if err := s.service.Store().ExportJSON(c.Request.Context(), &buf); err != nil {
		s.respondError(c, err)
		return
	}

	filename := fmt.Sprintf("diagnoses-%s.json", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/json; charset=utf-8", buf.Bytes())
}

// handleImport loads a previously exported history document.
func (s *Server) handleImport(c *gin.Context) {
	body := http.MaxBytesReader(c.Writer, c.Request.Body, maxImportBody)

	imported, skipped, err := s.service.Import(c.Request.Context(), body)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"imported": imported,
		"skipped":  skipped,
	})
}

// historyResponse is the body of GET /history and of live view pushes.
type historyResponse struct {
	Type      string                    `json:"type,omitempty"`
	Total     int                       `json:"total"`
	Shown     int                       `json:"shown"`
	Diagnoses []*domain.DiagnosisRecord `json:"diagnoses"`
}

func (s *Server) historyView(ctx context.Context, query service.HistoryQuery) (*historyResponse, error) {
	records, err := s.service.Store().List(ctx)
	if err != nil {
		return nil, err
	}
	view, err := s.history.Apply(records, query)
	if err != nil {
		return nil, err
	}
	return &historyResponse{
		Total:     len(records),
		Shown:     len(view),
		Diagnoses: nonNil(view),
	}, nil
}

func nonNil(records []*domain.DiagnosisRecord) []*domain.DiagnosisRecord {
	if records == nil {
		return []*domain.DiagnosisRecord{}
	}
	return records
}
