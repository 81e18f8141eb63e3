package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wallet-provider/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	HttpPort string
}

// Runner 随 App 一起启动的后台任务，ctx 取消时应返回
type Runner struct {
	Name string
	Run  func(ctx context.Context) error
}

type App struct {
	httpServer *http.Server
	runners    []Runner
}

func New(cfg Config, httpHandler *gin.Engine, runners ...Runner) *App {
	// HTTP Server
	httpSrv := &http.Server{
		Addr:              ":" + cfg.HttpPort,
		Handler:           httpHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return &App{httpServer: httpSrv, runners: runners}
}

// Run 启动服务并阻塞，直到收到关闭信号或某个后台任务失败
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	return a.Serve(ctx)
}

// Serve 与 Run 相同，但由调用方控制生命周期
func (a *App) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	// 1. Start HTTP
	g.Go(func() error {
		logger.Info("Starting HTTP Server", zap.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// 2. Start background runners
	for _, r := range a.runners {
		r := r
		g.Go(func() error {
			logger.Info("Starting runner", zap.String("name", r.Name))
			if err := r.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("runner failed", zap.String("name", r.Name), zap.Error(err))
				return err
			}
			return nil
		})
	}

	// 3. Graceful Shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("⚠️  Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP Server forced to shutdown", zap.Error(err))
		}
		return nil
	})

	err := g.Wait()
	logger.Info("Server exited properly")
	return err
}
