// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	pkgerrors "github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"fulfillment/internal/pkg/config"
	"fulfillment/internal/pkg/logger"
	"fulfillment/internal/pkg/nacos"
	"fulfillment/internal/pkg/tracing"
)

// Runner 是随服务启停的后台组件，例如 Kafka 消费者
type Runner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context)
}

type AppCtx struct {
	Mux    *http.ServeMux
	Config *config.Config
	Tracer trace.Tracer

	runners []Runner
	closers *shutdownStack
}

// AddRunner 注册一个后台组件，HTTP 服务启动后依次 Start，关停时先于 HTTP 服务 Stop
func (a *AppCtx) AddRunner(r Runner) {
	a.runners = append(a.runners, r)
}

// AddCloser 注册一个资源清理函数，关停时按注册的逆序执行
func (a *AppCtx) AddCloser(name string, fn func() error) {
	a.closers.push(name, fn)
}

// AppInfo 包含了启动一个服务所需的特定信息
type AppInfo struct {
	Config *config.Config
	// RegisterHandlers 注册路由、后台组件和需要清理的资源
	RegisterHandlers func(appCtx *AppCtx) error
}

// StartService 封装了通用的启动和优雅关停逻辑，阻塞直到收到 SIGINT/SIGTERM
func StartService(info AppInfo) error {
	cfg := info.Config
	logger.Init(cfg.App.ServiceName, cfg.App.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 关停时后进先出
	closers := &shutdownStack{}

	tp, err := tracing.InitTracerProvider(cfg.App.ServiceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		return pkgerrors.Wrap(err, "init tracer provider")
	}
	closers.push("tracer provider", func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		return tp.Shutdown(shutdownCtx)
	})

	appCtx := &AppCtx{
		Mux:     http.NewServeMux(),
		Config:  cfg,
		Tracer:  otel.Tracer(cfg.App.ServiceName),
		closers: closers,
	}
	if info.RegisterHandlers != nil {
		if err := info.RegisterHandlers(appCtx); err != nil {
			closers.run(ctx)
			return err
		}
	}

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.App.Port),
		Handler:           appCtx.Mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Ctx(gctx).Info().Int("port", cfg.App.Port).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return pkgerrors.Wrapf(err, "listen on %s", server.Addr)
		}
		return nil
	})

	if cfg.Infra.Nacos.Enabled {
		if err := registerNacos(cfg, closers); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("Nacos registration failed, continuing without service discovery")
		}
	}

	for _, r := range appCtx.runners {
		if err := r.Start(gctx); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("Failed to start runner, shutting down")
			stop()
			break
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Ctx(ctx).Info().Msg("Shutting down service")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()

		for i := len(appCtx.runners) - 1; i >= 0; i-- {
			appCtx.runners[i].Stop(shutdownCtx)
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Ctx(shutdownCtx).Error().Err(err).Msg("Error shutting down HTTP server")
		}
		closers.run(shutdownCtx)
		logger.Ctx(shutdownCtx).Info().Msg("Service gracefully shut down")
		return nil
	})

	return g.Wait()
}

func registerNacos(cfg *config.Config, closers *shutdownStack) error {
	client, err := nacos.NewClient(cfg.Infra.Nacos)
	if err != nil {
		return err
	}
	ip, err := GetOutboundIP()
	if err != nil {
		return err
	}
	if err := client.RegisterServiceInstance(cfg.App.ServiceName, ip, cfg.App.Port); err != nil {
		return err
	}
	closers.push("nacos", func() error {
		defer client.Close()
		return client.DeregisterServiceInstance(cfg.App.ServiceName, ip, cfg.App.Port)
	})
	return nil
}

// GetOutboundIP 返回本机对外通信使用的 IP，用于服务注册
func GetOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", pkgerrors.Wrap(err, "detect outbound ip")
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}

type closer struct {
	name string
	fn   func() error
}

type shutdownStack struct {
	items []closer
}

func (s *shutdownStack) push(name string, fn func() error) {
	s.items = append(s.items, closer{name: name, fn: fn})
}

// run 逆序执行所有清理函数，单个失败不影响其余
func (s *shutdownStack) run(ctx context.Context) {
	for i := len(s.items) - 1; i >= 0; i-- {
		c := s.items[i]
		if err := c.fn(); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("resource", c.name).Msg("Error during shutdown")
			continue
		}
		logger.Ctx(ctx).Info().Str("resource", c.name).Msg("Closed")
	}
	s.items = nil
}
