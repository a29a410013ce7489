// Package extractor invokes the external content-extraction process and
// normalizes every outcome — success, failure, spawn error or timeout — into
// a model.ExtractionOutcome.
package extractor

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/paperkey/unlock-cli/internal/config"
	"github.com/paperkey/unlock-cli/internal/model"
)

// lowTextThreshold mirrors the extractor's own heuristic: fewer extracted
// characters than this usually means a scanned or partially-read document.
const lowTextThreshold = 100

// ExtractRequest describes one extraction attempt.
type ExtractRequest struct {
	FileBytes []byte
	Filename  string
	MIMEType  string
	Password  string
}

// Runner tests a file against the extraction capability. Implementations
// never return an error: all failure modes resolve to a failed outcome so the
// orchestrator can always proceed deterministically.
type Runner interface {
	Extract(ctx context.Context, req ExtractRequest) model.ExtractionOutcome
}

// Subprocess runs the configured external extractor command as
// `command <inputPath> <outputPath> [password]`. The output file's existence
// and non-empty content is the success signal; the exit code is advisory.
type Subprocess struct {
	command string
	timeout time.Duration
	tempDir string
}

// NewSubprocess creates a Subprocess runner from config.
func NewSubprocess(cfg config.ExtractorConfig) *Subprocess {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Subprocess{
		command: cfg.Command,
		timeout: timeout,
		tempDir: tempDir,
	}
}

// Extract writes the file bytes to a scoped temp file, invokes the extractor
// subprocess under the configured timeout, and reads the output destination.
// Both temp files are removed on every exit path.
func (s *Subprocess) Extract(ctx context.Context, req ExtractRequest) model.ExtractionOutcome {
	inputPath, err := s.writeInput(req)
	if err != nil {
		return failedOutcome("temp file: " + err.Error())
	}
	outputPath := inputPath + ".out.txt"
	defer func() {
		if rmErr := os.Remove(inputPath); rmErr != nil {
			zap.L().Warn("extractor: remove input temp file", zap.Error(rmErr))
		}
		if rmErr := os.Remove(outputPath); rmErr != nil && !os.IsNotExist(rmErr) {
			zap.L().Warn("extractor: remove output temp file", zap.Error(rmErr))
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	args := []string{inputPath, outputPath}
	if req.Password != "" {
		args = append(args, req.Password)
	}

	cmd := exec.CommandContext(runCtx, s.command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	diagText := stdout.String()
	if stderr.Len() > 0 {
		diagText += "\n" + stderr.String()
	}
	diag := parseDiagnostics(diagText)

	zap.L().Debug("extractor: subprocess finished",
		zap.String("filename", req.Filename),
		zap.Duration("elapsed", elapsed),
		zap.Bool("had_password", req.Password != ""),
		zap.Error(runErr),
	)

	if runCtx.Err() == context.DeadlineExceeded {
		return model.ExtractionOutcome{
			Success:        false,
			RawDiagnostics: diag.Raw,
			PageCount:      diag.PageCount,
			ErrorDetail:    "timeout",
		}
	}

	// Exit code is advisory: an extractor may exit non-zero yet still have
	// written usable output, so the output file decides.
	text, readErr := os.ReadFile(outputPath)
	trimmed := strings.TrimSpace(string(text))
	if readErr == nil && trimmed != "" {
		raw := diag.Raw
		if len(trimmed) < lowTextThreshold {
			raw = appendDiagnostic(raw, "low text content")
		}
		return model.ExtractionOutcome{
			ExtractedText:  trimmed,
			Success:        true,
			CharCount:      len(trimmed),
			PageCount:      diag.PageCount,
			RawDiagnostics: raw,
		}
	}

	// PATH lookup failures surface as *exec.Error, an unusable absolute
	// command path as *fs.PathError from Start.
	detail := "empty output"
	var execErr *exec.Error
	var pathErr *fs.PathError
	switch {
	case errors.As(runErr, &execErr):
		detail = "spawn: " + execErr.Error()
	case errors.As(runErr, &pathErr):
		detail = "spawn: " + pathErr.Error()
	case runErr != nil:
		detail = runErr.Error()
	}
	return model.ExtractionOutcome{
		Success:        false,
		RawDiagnostics: diag.Raw,
		PageCount:      diag.PageCount,
		ErrorDetail:    detail,
	}
}

func (s *Subprocess) writeInput(req ExtractRequest) (string, error) {
	ext := filepath.Ext(req.Filename)
	f, err := os.CreateTemp(s.tempDir, "unlock-*"+ext)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(req.FileBytes); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func failedOutcome(detail string) model.ExtractionOutcome {
	return model.ExtractionOutcome{Success: false, ErrorDetail: detail}
}
