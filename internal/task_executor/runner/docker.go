package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"go.uber.org/zap"
)

const containerArtifactsDir = "/artifacts"

// containerAPI is the part of the docker client the executor needs.
type containerAPI interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

// DockerExecutor runs the suite inside a container with the artifacts root mounted.
type DockerExecutor struct {
	cli           containerAPI
	image         string
	command       []string
	artifactsRoot string
	timeout       time.Duration
	logger        *zap.Logger
	now           func() time.Time
}

func NewDockerClient() (*client.Client, error) {
	return client.NewClientWithOpts(
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	)
}

func NewDockerExecutor(cli containerAPI, image string, command []string, artifactsRoot string, timeout time.Duration, logger *zap.Logger) *DockerExecutor {
	return &DockerExecutor{
		cli:           cli,
		image:         image,
		command:       command,
		artifactsRoot: artifactsRoot,
		timeout:       timeout,
		logger:        logger.Named("docker-executor"),
		now:           time.Now,
	}
}

func (d *DockerExecutor) Execute(ctx context.Context, req Request) (*Result, error) {
	hostRoot, err := filepath.Abs(d.artifactsRoot)
	if err != nil {
		return nil, &LaunchError{Err: err}
	}
	if err := os.MkdirAll(hostRoot, 0o755); err != nil {
		return nil, &LaunchError{Err: err}
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	callID := newCallID(d.now())
	cmd := append(append([]string{}, d.command...), runnerArgs(req, path.Join(containerArtifactsDir, callID))...)

	resp, err := d.cli.ContainerCreate(ctx,
		&container.Config{
			Image: d.image,
			Cmd:   cmd,
		},
		&container.HostConfig{
			Binds: []string{hostRoot + ":" + containerArtifactsDir},
		},
		nil, nil, "taf-"+callID,
	)
	if err != nil {
		return nil, &LaunchError{Err: err}
	}
	containerID := resp.ID

	defer func() {
		// ctx may already be expired
		if err := d.cli.ContainerRemove(context.Background(), containerID, container.RemoveOptions{Force: true}); err != nil {
			d.logger.Warn("fail to remove container", zap.String("container_id", containerID), zap.Error(err))
		}
	}()

	if err := d.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return nil, &LaunchError{Err: err}
	}
	d.logger.Info("container started",
		zap.String("container_id", containerID),
		zap.String("env", req.Environment),
		zap.String("call_id", callID))

	result := &Result{}
	statusCh, errCh := d.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if ctx.Err() == nil {
			return nil, fmt.Errorf("wait container %s: %w", containerID, err)
		}
		d.logger.Warn("container killed", zap.String("container_id", containerID), zap.Error(ctx.Err()))
		result.ExitCode = TimeoutExitCode
	case status := <-statusCh:
		if status.Error != nil {
			return nil, fmt.Errorf("wait container %s: %s", containerID, status.Error.Message)
		}
		result.ExitCode = int(status.StatusCode)
	}

	out, err := d.cli.ContainerLogs(context.Background(), containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		d.logger.Warn("fail to get container logs", zap.String("container_id", containerID), zap.Error(err))
	} else {
		stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
		if _, err := stdcopy.StdCopy(stdout, stderr, out); err != nil {
			d.logger.Warn("fail to copy container logs", zap.String("container_id", containerID), zap.Error(err))
		}
		_ = out.Close()
		result.Stdout = stdout.String()
		result.Stderr = stderr.String()
	}

	result.ArtifactRef = artifactRef(hostRoot, callID)
	d.logger.Info("container exited", zap.String("container_id", containerID), zap.Int("exit_code", result.ExitCode))
	return result, nil
}
