// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"stockpay/internal/pkg/logger"
	"stockpay/internal/pkg/nacos"
	"stockpay/internal/pkg/tracing"
)

const shutdownTimeout = 10 * time.Second

// Worker 是随服务启停的后台任务，例如 Kafka 消费者
type Worker interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context)
}

// AppCtx 在注册路由时交给各服务，用于挂载路由、后台任务和关停钩子
type AppCtx struct {
	Mux    *http.ServeMux
	Nacos  *nacos.Client // 未启用 Nacos 时为 nil
	Config *Config

	workers []Worker
	closers []func(ctx context.Context) error
}

func (a *AppCtx) AddWorker(w Worker) {
	a.workers = append(a.workers, w)
}

// OnShutdown 注册关停钩子，按注册的逆序执行
func (a *AppCtx) OnShutdown(fn func(ctx context.Context) error) {
	a.closers = append(a.closers, fn)
}

func (a *AppCtx) stopWorkers(ctx context.Context) {
	for i := len(a.workers) - 1; i >= 0; i-- {
		a.workers[i].Stop(ctx)
	}
}

func (a *AppCtx) runClosers(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AppInfo 包含了启动一个服务所需的特定信息。
type AppInfo struct {
	ServiceName      string
	Port             int
	RegisterHandlers func(appCtx *AppCtx) error
}

// StartService 封装了通用的启动和优雅关停逻辑，收到 SIGINT/SIGTERM 或任一组件失败时返回。
func StartService(cfg *Config, info AppInfo) error {
	logger.Init(info.ServiceName, cfg.App.LogLevel)

	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint, cfg.Infra.Jaeger.SampleRatio)
	if err != nil {
		return fmt.Errorf("failed to initialize tracer provider: %w", err)
	}

	var naming *nacos.Client
	if cfg.App.RegisterToNacos || cfg.Bank.ServiceName != "" {
		naming, err = nacos.NewClient(splitList(cfg.Infra.Nacos.ServerAddrs), cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
		if err != nil {
			return fmt.Errorf("failed to initialize nacos client: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appCtx := &AppCtx{Mux: http.NewServeMux(), Nacos: naming, Config: cfg}
	if info.RegisterHandlers != nil {
		if err := info.RegisterHandlers(appCtx); err != nil {
			return fmt.Errorf("failed to register handlers: %w", err)
		}
	}

	var ip string
	if cfg.App.RegisterToNacos {
		if ip, err = GetOutboundIP(); err != nil {
			return fmt.Errorf("failed to get outbound IP address: %w", err)
		}
		if err := naming.Register(info.ServiceName, ip, info.Port); err != nil {
			return err
		}
	}

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(info.Port),
		Handler:           appCtx.Mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Int("port", info.Port).Msgf("%s listening", info.ServiceName)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	for _, w := range appCtx.workers {
		if err := w.Start(gctx); err != nil {
			stop()
			_ = g.Wait()
			return fmt.Errorf("failed to start worker: %w", err)
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msgf("shutting down service %s", info.ServiceName)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// 先从注册中心摘除，再停止接收请求
		if cfg.App.RegisterToNacos {
			if err := naming.Deregister(info.ServiceName, ip, info.Port); err != nil {
				log.Error().Err(err).Msg("error deregistering from nacos")
			}
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("error shutting down http server")
		}
		appCtx.stopWorkers(shutdownCtx)
		if err := appCtx.runClosers(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("error running shutdown hooks")
		}
		// 确保所有缓冲的 trace 都被发送出去
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("error shutting down tracer provider")
		}
		return nil
	})

	err = g.Wait()
	log.Info().Msgf("service %s stopped", info.ServiceName)
	return err
}
