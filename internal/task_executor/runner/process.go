package runner

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// ProcessExecutor runs the suite as a local child process.
type ProcessExecutor struct {
	command       []string
	artifactsRoot string
	timeout       time.Duration
	logger        *zap.Logger
	now           func() time.Time
}

func NewProcessExecutor(command []string, artifactsRoot string, timeout time.Duration, logger *zap.Logger) *ProcessExecutor {
	return &ProcessExecutor{
		command:       command,
		artifactsRoot: artifactsRoot,
		timeout:       timeout,
		logger:        logger.Named("process-executor"),
		now:           time.Now,
	}
}

func (e *ProcessExecutor) Execute(ctx context.Context, req Request) (*Result, error) {
	if len(e.command) == 0 {
		return nil, &LaunchError{Err: errors.New("empty runner command")}
	}
	if err := os.MkdirAll(e.artifactsRoot, 0o755); err != nil {
		return nil, &LaunchError{Err: err}
	}

	callID := newCallID(e.now())
	outputDir := filepath.Join(e.artifactsRoot, callID)

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	args := append(append([]string{}, e.command[1:]...), runnerArgs(req, outputDir)...)
	cmd := exec.CommandContext(ctx, e.command[0], args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// children may keep the pipes open after a kill
	cmd.WaitDelay = 5 * time.Second

	e.logger.Info("starting test runner",
		zap.String("env", req.Environment),
		zap.String("selection", req.Selection),
		zap.String("call_id", callID))

	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Err: err}
	}

	result := &Result{}
	err := cmd.Wait()
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.ExitCode = 0
	case ctx.Err() != nil:
		e.logger.Warn("test runner killed", zap.String("call_id", callID), zap.Error(ctx.Err()))
		result.ExitCode = TimeoutExitCode
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		return nil, err
	}

	result.ArtifactRef = artifactRef(e.artifactsRoot, callID)
	e.logger.Info("test runner exited", zap.String("call_id", callID), zap.Int("exit_code", result.ExitCode))
	return result, nil
}
