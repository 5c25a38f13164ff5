package main

import (
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"taf/internal/common"
	rpcserver "taf/internal/task_executor/rpc_server"
	"taf/internal/task_executor/runner"
)

func main() {
	common.InitConf()
	config := common.GetConfig()
	common.InitLog(config)
	logger := common.GetLogger()
	defer logger.Sync()

	executor, err := runner.NewFromConfig(config, logger)
	if err != nil {
		logger.Fatal("build executor", zap.Error(err))
	}

	srv, err := rpcserver.NewServer(runner.NewLimitedExecutor(executor, config.MaxConcurrentRuns), logger)
	if err != nil {
		logger.Fatal("register rpc service", zap.Error(err))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		_ = srv.Close()
	}()

	if err := srv.Start(config.ExecutorRPCAddr); err != nil {
		logger.Fatal("rpc server", zap.Error(err))
	}
}
