package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sb-diagnostic-server/internal/domain"
)

// Input modes for handing the feature JSON to the model process.
const (
	InputModeArg   = "arg"
	InputModeStdin = "stdin"
)

// waitDelay bounds how long Run waits for output pipes after the process
// is killed.
const waitDelay = 2 * time.Second

// ProcessPredictor runs the model as a child process per prediction. The
// process writes one JSON result to stdout and exits 0, or exits non-zero
// with a description on stderr.
type ProcessPredictor struct {
	command   string
	args      []string
	workDir   string
	inputMode string
	timeout   time.Duration
	logger    *logrus.Logger
}

// NewProcessPredictor creates a predictor from the inference configuration.
func NewProcessPredictor(cfg *domain.InferenceConfig, logger *logrus.Logger) (*ProcessPredictor, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("inference command is required")
	}
	mode := cfg.InputMode
	if mode == "" {
		mode = InputModeArg
	}
	if mode != InputModeArg && mode != InputModeStdin {
		return nil, fmt.Errorf("invalid inference input mode: %s", mode)
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &ProcessPredictor{
		command:   cfg.Command,
		args:      append([]string(nil), cfg.Args...),
		workDir:   cfg.WorkDir,
		inputMode: mode,
		timeout:   cfg.Timeout,
		logger:    logger,
	}, nil
}

// Predict runs the model once for the given features.
func (p *ProcessPredictor) Predict(ctx context.Context, features domain.Features) (*domain.PredictionOutcome, error) {
	payload, err := json.Marshal(features)
	if err != nil {
		return nil, domain.NewInferenceError(domain.InferenceLaunchFailed, "encoding features", err)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, p.command, p.args...)
	cmd.Dir = p.workDir
	cmd.WaitDelay = waitDelay
	if p.inputMode == InputModeArg {
		cmd.Args = append(cmd.Args, string(payload))
	} else {
		cmd.Stdin = bytes.NewReader(payload)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	if runErr != nil {
		return nil, p.classify(ctx, runErr, stdout.Bytes(), stderr.String(), duration)
	}

	p.logger.WithFields(logrus.Fields{
		"command":  p.command,
		"duration": duration.String(),
	}).Debug("Model process completed")

	return decodeOutput(stdout.Bytes())
}

func (p *ProcessPredictor) classify(ctx context.Context, runErr error, stdout []byte, stderr string, duration time.Duration) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return domain.NewInferenceError(domain.InferenceTimeout,
			fmt.Sprintf("model did not answer within %s", duration.Round(time.Millisecond)), ctx.Err())
	case errors.Is(ctx.Err(), context.Canceled):
		return ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		detail := strings.TrimSpace(stderr)
		if detail == "" {
			detail = errorField(stdout)
		}
		if detail == "" {
			detail = exitErr.String()
		}
		p.logger.WithFields(logrus.Fields{
			"command":   p.command,
			"exit_code": exitErr.ExitCode(),
			"duration":  duration.String(),
		}).Warn("Model process failed")
		return domain.NewInferenceError(domain.InferenceProcessFailed, truncate(detail), nil)
	}

	return domain.NewInferenceError(domain.InferenceLaunchFailed, fmt.Sprintf("starting %s", p.command), runErr)
}
