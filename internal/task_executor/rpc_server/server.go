package rpcserver

import (
	"context"
	"errors"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"sync"

	"go.uber.org/zap"

	"taf/internal/task_executor/runner"
	"taf/pkg/taskrpc"
)

// executorService implements taskrpc.TaskExecutorService over a local executor.
type executorService struct {
	executor runner.Executor
	logger   *zap.Logger
}

var _ taskrpc.TaskExecutorService = (*executorService)(nil)

func (s *executorService) Execute(req *taskrpc.ExecuteRequest, resp *taskrpc.ExecuteResponse) error {
	s.logger.Info("execute request", zap.String("env", req.Environment), zap.String("selection", req.Selection))

	res, err := s.executor.Execute(context.Background(), runner.Request{
		Environment: req.Environment,
		Selection:   req.Selection,
		TargetURL:   req.TargetURL,
	})
	if err != nil {
		var launchErr *runner.LaunchError
		if errors.As(err, &launchErr) {
			resp.LaunchError = launchErr.Error()
			return nil
		}
		return err
	}

	resp.ExitCode = res.ExitCode
	resp.ArtifactRef = res.ArtifactRef
	resp.Stdout = res.Stdout
	resp.Stderr = res.Stderr
	return nil
}

type Server struct {
	rpcServer *rpc.Server
	logger    *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	closed   bool
}

func NewServer(executor runner.Executor, logger *zap.Logger) (*Server, error) {
	logger = logger.Named("rpc-server")
	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName(taskrpc.ServiceName, &executorService{executor: executor, logger: logger}); err != nil {
		return nil, err
	}
	return &Server{rpcServer: rpcServer, logger: logger}, nil
}

func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// Serve accepts connections until Close is called.
func (s *Server) Serve(listener net.Listener) error {
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	defer listener.Close()

	s.logger.Info("task executor listening", zap.String("addr", listener.Addr().String()))
	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			s.logger.Warn("accept failed", zap.Error(err))
			continue
		}
		go s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(conn))
	}
}

func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}
