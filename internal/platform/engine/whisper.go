package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"noteflow/internal/domain/model"
)

// commandResult is one process execution response.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

type execRunner struct{}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}

// WhisperCLI runs the local openai-whisper command and reads its JSON output.
type WhisperCLI struct {
	binary    string
	model     string
	device    string
	runner    commandRunner
	lookPath  func(file string) (string, error)
	mkdirTemp func(dir, pattern string) (string, error)
	readFile  func(name string) ([]byte, error)
	removeAll func(path string) error
}

func NewWhisperCLI(binary, model, device string) *WhisperCLI {
	return &WhisperCLI{
		binary:    binary,
		model:     model,
		device:    device,
		runner:    &execRunner{},
		lookPath:  exec.LookPath,
		mkdirTemp: os.MkdirTemp,
		readFile:  os.ReadFile,
		removeAll: os.RemoveAll,
	}
}

func (w *WhisperCLI) Ready() error {
	if _, err := w.lookPath(w.binary); err != nil {
		return fmt.Errorf("whisper binary %q not available: %w", w.binary, err)
	}
	return nil
}

func (w *WhisperCLI) Transcribe(ctx context.Context, filePath string) (*model.Transcription, error) {
	outDir, err := w.mkdirTemp("", "noteflow-whisper-*")
	if err != nil {
		return nil, fmt.Errorf("create whisper output dir: %w", err)
	}
	defer w.removeAll(outDir)

	args := []string{
		filePath,
		"--model", w.model,
		"--device", w.device,
		"--output_format", "json",
		"--output_dir", outDir,
		"--verbose", "False",
	}
	res, err := w.runner.Run(ctx, w.binary, args...)
	if err != nil {
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("whisper exited with code %d: %s", res.ExitCode, msg)
	}

	base := strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	raw, err := w.readFile(filepath.Join(outDir, base+".json"))
	if err != nil {
		return nil, fmt.Errorf("read whisper output: %w", err)
	}

	var out model.Transcription
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode whisper output: %w", err)
	}
	return &out, nil
}
