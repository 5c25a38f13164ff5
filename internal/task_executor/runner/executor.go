package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// TimeoutExitCode is reported when a run is killed for exceeding its timeout.
const TimeoutExitCode = -1

type Request struct {
	Environment string
	Selection   string // robot --include expression, empty runs everything
	TargetURL   *string
}

type Result struct {
	ExitCode    int
	ArtifactRef *string // directory name under the artifacts root, nil when nothing was written
	Stdout      string
	Stderr      string
}

// Executor runs the test suite once and blocks until it exits.
type Executor interface {
	Execute(ctx context.Context, req Request) (*Result, error)
}

// LaunchError means the suite process could not be started at all.
type LaunchError struct {
	Err error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch test runner: %v", e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// newCallID names the artifact directory owned by a single Execute call.
func newCallID(now time.Time) string {
	return now.UTC().Format("20060102T150405Z") + "_" + uuid.NewString()[:8]
}

func runnerArgs(req Request, outputDir string) []string {
	args := []string{"--env", req.Environment}
	if req.Selection != "" {
		args = append(args, "--include", req.Selection)
	}
	if req.TargetURL != nil && *req.TargetURL != "" {
		args = append(args, "--base-url", *req.TargetURL)
	}
	return append(args, "--outputdir", outputDir)
}

// artifactRef reports callID if the runtime left anything in its directory.
func artifactRef(root, callID string) *string {
	entries, err := os.ReadDir(filepath.Join(root, callID))
	if err != nil || len(entries) == 0 {
		return nil
	}
	return &callID
}
