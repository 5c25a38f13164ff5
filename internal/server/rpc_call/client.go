package rpccall

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"

	"go.uber.org/zap"

	"taf/internal/task_executor/runner"
	"taf/pkg/taskrpc"
)

const dialTimeout = 5 * time.Second

// RemoteExecutor forwards each execution to a task executor process. Artifact
// refs it returns are relative to the executor's artifacts root, which must be
// shared with this process.
type RemoteExecutor struct {
	addr   string
	logger *zap.Logger
}

var _ runner.Executor = (*RemoteExecutor)(nil)

func NewRemoteExecutor(executorRPCAddr string, logger *zap.Logger) *RemoteExecutor {
	return &RemoteExecutor{addr: executorRPCAddr, logger: logger.Named("remote-executor")}
}

func (r *RemoteExecutor) Execute(ctx context.Context, req runner.Request) (*runner.Result, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", r.addr)
	if err != nil {
		return nil, &runner.LaunchError{Err: fmt.Errorf("dial task executor %s: %w", r.addr, err)}
	}
	client := jsonrpc.NewClient(conn)
	defer client.Close()

	var resp taskrpc.ExecuteResponse
	call := client.Go(taskrpc.ServiceName+".Execute", &taskrpc.ExecuteRequest{
		Environment: req.Environment,
		Selection:   req.Selection,
		TargetURL:   req.TargetURL,
	}, &resp, make(chan *rpc.Call, 1))

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-call.Done:
	}
	if call.Error != nil {
		return nil, fmt.Errorf("task executor %s: %w", r.addr, call.Error)
	}
	if resp.LaunchError != "" {
		return nil, &runner.LaunchError{Err: errors.New(resp.LaunchError)}
	}

	r.logger.Debug("remote execution finished", zap.Int("exit_code", resp.ExitCode))
	return &runner.Result{
		ExitCode:    resp.ExitCode,
		ArtifactRef: resp.ArtifactRef,
		Stdout:      resp.Stdout,
		Stderr:      resp.Stderr,
	}, nil
}
