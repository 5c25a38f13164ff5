package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"taf/internal/common"
	"taf/internal/server/dao"
	"taf/internal/server/discovery"
	"taf/internal/server/dispatcher"
	"taf/internal/server/envconfig"
	"taf/internal/server/handler"
	"taf/internal/server/metrics"
	"taf/internal/server/middleware"
	"taf/internal/server/outcome"
	rpccall "taf/internal/server/rpc_call"
	"taf/internal/server/scheduler"
	"taf/internal/server/service"
	"taf/internal/task_executor/runner"
)

const shutdownTimeout = 30 * time.Second

func main() {
	common.InitConf()
	config := common.GetConfig()
	common.InitLog(config)
	logger := common.GetLogger()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(ctx context.Context, config common.Config, logger *zap.Logger) error {
	db, err := dao.Open(ctx, config, logger)
	if err != nil {
		return err
	}
	runs := dao.NewRunDao(db)
	schedules := dao.NewScheduleDao(db)

	var executor runner.Executor
	if config.ExecutorMode == "remote" {
		executor = rpccall.NewRemoteExecutor(config.ExecutorRPCAddr, logger)
	} else if executor, err = runner.NewFromConfig(config, logger); err != nil {
		return err
	}

	loc := config.Location()
	m := metrics.New()
	d := dispatcher.New(runs, executor, outcome.NewInterpreter(config.ArtifactsRoot, logger), logger,
		dispatcher.WithMaxConcurrency(config.MaxConcurrentRuns),
		dispatcher.WithMetrics(m),
	)
	sched := scheduler.New(d, runs, schedules, logger,
		scheduler.WithTick(config.SchedulerTick),
		scheduler.WithLocation(loc),
		scheduler.WithMetrics(m),
	)
	if err := sched.Start(ctx); err != nil {
		return err
	}

	svc := service.NewRunService(runs, d, sched,
		envconfig.NewLoader(config.ConfigDir, logger),
		discovery.NewCatalog(config.TestsDir, config.ResourcesDir),
		config.ArtifactsRoot, logger)

	if config.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.Recovery(logger), middleware.Logger(logger))
	r.GET("/healthz", handler.Healthz)
	r.GET("/metrics", gin.WrapH(m.Handler()))
	handler.NewRunHandler(svc, loc).Register(r)

	srv := &http.Server{Addr: config.HTTPAddr, Handler: r}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", config.HTTPAddr), zap.String("executor", config.ExecutorMode))
		var err error
		if config.CertPath != "" && config.KeyPath != "" {
			err = srv.ListenAndServeTLS(config.CertPath, config.KeyPath)
		} else {
			err = srv.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Warn("scheduler shutdown", zap.Error(err))
	}
	if err := d.Shutdown(shutdownCtx); err != nil {
		logger.Warn("runs still in flight at shutdown were killed", zap.Error(err))
	}
	return nil
}
