// Package inference adapts the predictive model behind domain.Predictor:
// a child process or HTTP endpoint, optionally wrapped by a circuit
// breaker and a prediction cache.
package inference

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/sb-diagnostic-server/internal/domain"
	"github.com/sb-diagnostic-server/internal/logging"
)

// maxDetailLen bounds collaborator text carried in an InferenceError.
const maxDetailLen = 2048

// modelOutput is the JSON object the model writes for one prediction.
type modelOutput struct {
	Diagnosis       string   `json:"diagnosis"`
	Confidence      *float64 `json:"confidence"`
	ProbabilityNoSB *float64 `json:"probability_no_sb"`
	ProbabilitySB   *float64 `json:"probability_sb"`
	Error           string   `json:"error"`
}

// decodeOutput parses model output. Diagnostics printed before the result
// are tolerated: if the whole text is not JSON, the last line is tried.
// An "error" member maps to ProcessFailed even on a zero exit; any other
// unusable output is MalformedOutput.
func decodeOutput(data []byte) (*domain.PredictionOutcome, error) {
	out, err := parseOutput(bytes.TrimSpace(data))
	if err != nil {
		return nil, err
	}

	if out.Error != "" {
		return nil, domain.NewInferenceError(domain.InferenceProcessFailed, truncate(out.Error), nil)
	}

	diagnosis := domain.Diagnosis(out.Diagnosis)
	if !diagnosis.Valid() {
		return nil, domain.NewInferenceError(domain.InferenceMalformedOutput,
			fmt.Sprintf("unknown diagnosis label %q", out.Diagnosis), nil)
	}
	if out.Confidence == nil {
		return nil, domain.NewInferenceError(domain.InferenceMalformedOutput, "missing confidence", nil)
	}

	return &domain.PredictionOutcome{
		Diagnosis:       diagnosis,
		Confidence:      *out.Confidence,
		ProbabilitySB:   out.ProbabilitySB,
		ProbabilityNoSB: out.ProbabilityNoSB,
	}, nil
}

func parseOutput(data []byte) (*modelOutput, error) {
	var out modelOutput
	err := json.Unmarshal(data, &out)
	if err == nil {
		return &out, nil
	}

	if i := bytes.LastIndexByte(data, '\n'); i >= 0 {
		if lastErr := json.Unmarshal(bytes.TrimSpace(data[i+1:]), &out); lastErr == nil {
			return &out, nil
		}
	}
	return nil, domain.NewInferenceError(domain.InferenceMalformedOutput,
		fmt.Sprintf("unparsable model output %q", truncate(string(data))), err)
}

// errorField extracts the "error" member from failed-run output, if any.
func errorField(data []byte) string {
	out, err := parseOutput(bytes.TrimSpace(data))
	if err != nil {
		return ""
	}
	return out.Error
}

func truncate(s string) string {
	if len(s) > maxDetailLen {
		return logging.Truncate(s, maxDetailLen) + "..."
	}
	return s
}
