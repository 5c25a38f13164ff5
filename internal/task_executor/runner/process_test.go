package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "run_tests.sh")
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"+body), 0o755))
	return p
}

// the output directory is always the last argument
const writeArtifact = `for last; do :; done
mkdir -p "$last"
echo '<robot/>' > "$last/output.xml"
`

func TestProcessExecutor_ExitCodeAndArtifact(t *testing.T) {
	root := t.TempDir()
	script := writeScript(t, writeArtifact+`echo "$@"
exit 1
`)
	e := NewProcessExecutor([]string{script}, root, 0, zaptest.NewLogger(t))

	url := "https://qa.example.com"
	res, err := e.Execute(context.Background(), Request{Environment: "qa", Selection: "smoke", TargetURL: &url})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)
	assert.Contains(t, res.Stdout, "--env qa")
	assert.Contains(t, res.Stdout, "--include smoke")
	assert.Contains(t, res.Stdout, "--base-url https://qa.example.com")

	require.NotNil(t, res.ArtifactRef)
	assert.FileExists(t, filepath.Join(root, *res.ArtifactRef, "output.xml"))
}

func TestProcessExecutor_NoArtifact(t *testing.T) {
	script := writeScript(t, "exit 0\n")
	e := NewProcessExecutor([]string{script}, t.TempDir(), 0, zaptest.NewLogger(t))

	res, err := e.Execute(context.Background(), Request{Environment: "dev"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Nil(t, res.ArtifactRef)
	assert.NotContains(t, res.Stdout, "--include")
}

func TestProcessExecutor_EmptyArtifactDir(t *testing.T) {
	script := writeScript(t, `for last; do :; done
mkdir -p "$last"
exit 2
`)
	e := NewProcessExecutor([]string{script}, t.TempDir(), 0, zaptest.NewLogger(t))

	res, err := e.Execute(context.Background(), Request{Environment: "dev"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.ExitCode)
	assert.Nil(t, res.ArtifactRef)
}

func TestProcessExecutor_LaunchError(t *testing.T) {
	e := NewProcessExecutor([]string{filepath.Join(t.TempDir(), "missing")}, t.TempDir(), 0, zaptest.NewLogger(t))

	_, err := e.Execute(context.Background(), Request{Environment: "dev"})
	var launchErr *LaunchError
	require.True(t, errors.As(err, &launchErr))

	e = NewProcessExecutor(nil, t.TempDir(), 0, zaptest.NewLogger(t))
	_, err = e.Execute(context.Background(), Request{Environment: "dev"})
	require.True(t, errors.As(err, &launchErr))
}

func TestProcessExecutor_Timeout(t *testing.T) {
	script := writeScript(t, "exec sleep 5\n")
	e := NewProcessExecutor([]string{script}, t.TempDir(), 100*time.Millisecond, zaptest.NewLogger(t))

	start := time.Now()
	res, err := e.Execute(context.Background(), Request{Environment: "dev"})
	require.NoError(t, err)
	assert.Equal(t, TimeoutExitCode, res.ExitCode)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestProcessExecutor_ConcurrentCallsOwnTheirArtifacts(t *testing.T) {
	root := t.TempDir()
	script := writeScript(t, writeArtifact+"exit 0\n")
	e := NewProcessExecutor([]string{script}, root, 0, zaptest.NewLogger(t))

	const n = 4
	refs := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := e.Execute(context.Background(), Request{Environment: "dev"})
			if assert.NoError(t, err) && assert.NotNil(t, res.ArtifactRef) {
				refs[i] = *res.ArtifactRef
			}
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, ref := range refs {
		assert.False(t, seen[ref], "artifact %s reported twice", ref)
		seen[ref] = true
	}
}
