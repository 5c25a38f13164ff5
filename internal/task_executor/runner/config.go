package runner

import (
	"fmt"

	"go.uber.org/zap"

	"taf/internal/common"
)

// NewFromConfig builds the executor that runs suites on this host, either as
// a child process or inside a container.
func NewFromConfig(cfg common.Config, logger *zap.Logger) (Executor, error) {
	switch cfg.ExecutorMode {
	case "", "local":
		return NewProcessExecutor(cfg.RunnerCommand, cfg.ArtifactsRoot, cfg.ExecutorTimeout, logger), nil
	case "docker":
		cli, err := NewDockerClient()
		if err != nil {
			return nil, fmt.Errorf("docker client: %w", err)
		}
		return NewDockerExecutor(cli, cfg.DockerImage, cfg.RunnerCommand, cfg.ArtifactsRoot, cfg.ExecutorTimeout, logger), nil
	default:
		return nil, fmt.Errorf("unsupported executor mode %q", cfg.ExecutorMode)
	}
}
