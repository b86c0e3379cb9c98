package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/currency-hub/currency-hub/internal/cache"
	"github.com/currency-hub/currency-hub/internal/config"
	"github.com/currency-hub/currency-hub/internal/logging"
	"github.com/currency-hub/currency-hub/internal/proxy"
	"github.com/currency-hub/currency-hub/internal/server"
	"github.com/currency-hub/currency-hub/internal/server/routes"
	"github.com/currency-hub/currency-hub/internal/worker"
)

// gateway 持有一次进程生命周期内共享的存储、控制器与 Fiber 应用。
type gateway struct {
	logger     *logrus.Logger
	store      cache.Store
	fetcher    worker.Fetcher
	controller *worker.Controller
	app        *fiber.App
	port       int

	mu      sync.Mutex
	version string
}

func newGateway(cfg *config.Config, logger *logrus.Logger) (*gateway, error) {
	store, err := cache.Open(cache.Options{
		Driver:   cfg.Global.StorageDriver,
		Path:     cfg.Global.StoragePath,
		Compress: cfg.Global.CompressEntries,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return newGatewayWith(cfg, logger, store, proxy.NewNetworkFetcher(server.NewUpstreamClient(cfg)))
}

// newGatewayWith 允许测试注入内存存储与假网络。
func newGatewayWith(cfg *config.Config, logger *logrus.Logger, store cache.Store, fetcher worker.Fetcher) (*gateway, error) {
	registry, err := server.NewOriginRegistry(cfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("build origin registry: %w", err)
	}

	controller := worker.NewController(fetcher, logger)
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Registry:   registry,
		Handler:    proxy.NewForwarder(proxy.NewHandler(controller, logger), logger),
		ListenPort: cfg.Global.ListenPort,
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	routes.RegisterDiagnosticsRoutes(app, routes.Diagnostics{
		Controller: controller,
		Store:      store,
		Registry:   registry,
	})

	return &gateway{
		logger:     logger,
		store:      store,
		fetcher:    fetcher,
		controller: controller,
		app:        app,
		port:       cfg.Global.ListenPort,
	}, nil
}

// registerWorker 为 cfg 中的版本构造 worker 并交给控制器安装。
// 预缓存失败时尝试复用磁盘上同版本的外壳存储（离线重启）；两者都失败时返回安装错误。
func (g *gateway) registerWorker(ctx context.Context, cfg *config.Config) error {
	opts, err := worker.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	w, err := worker.New(opts, g.store, g.fetcher, g.logger)
	if err != nil {
		return err
	}
	if err := g.controller.Register(ctx, w, cfg.Worker.SkipWaiting); err != nil {
		if !errors.Is(err, worker.ErrInstallFailed) {
			return err
		}
		if adoptErr := g.adoptWorker(ctx, opts, cfg.Worker.SkipWaiting); adoptErr != nil {
			g.logger.WithFields(logging.WorkerFields("adopt", cfg.Worker.Version, "")).WithError(adoptErr).Debug("no restorable shell store")
			return err
		}
	}
	g.mu.Lock()
	g.version = cfg.Worker.Version
	g.mu.Unlock()
	return nil
}

func (g *gateway) adoptWorker(ctx context.Context, opts worker.Options, skipWaiting bool) error {
	w, err := worker.New(opts, g.store, g.fetcher, g.logger)
	if err != nil {
		return err
	}
	return g.controller.Adopt(ctx, w, skipWaiting)
}

// reload 是配置热加载回调：仅当 Version 变化时安装新代际，站点映射保持启动时的配置。
func (g *gateway) reload(cfg *config.Config) {
	g.mu.Lock()
	current := g.version
	g.mu.Unlock()

	fields := logging.WorkerFields("reload", cfg.Worker.Version, "")
	if cfg.Worker.Version == current {
		g.logger.WithFields(fields).Debug("version unchanged, reload ignored")
		return
	}
	if err := g.registerWorker(context.Background(), cfg); err != nil {
		g.logger.WithFields(fields).WithError(err).Error("worker upgrade failed")
		return
	}
	g.logger.WithFields(fields).Info("worker upgrade registered")
}

// serve 监听端口直到 ctx 结束，随后优雅关闭。
func (g *gateway) serve(ctx context.Context) error {
	g.logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   g.port,
	}).Info("Fiber 服务启动")

	errCh := make(chan error, 1)
	go func() {
		errCh <- g.app.Listen(fmt.Sprintf(":%d", g.port))
	}()

	select {
	case err := <-errCh:
		g.close(context.Background())
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := g.app.ShutdownWithContext(shutdownCtx)
	if closeErr := g.close(shutdownCtx); closeErr != nil {
		err = errors.Join(err, closeErr)
	}
	<-errCh
	return err
}

// close 等待后台刷新结束后释放存储。
func (g *gateway) close(ctx context.Context) error {
	shutdownErr := g.controller.Shutdown(ctx)
	closeErr := g.store.Close()
	return errors.Join(shutdownErr, closeErr)
}
