package main

import (
	"context"
	"fmt"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Tyrowin/roomchat/internal/lifecycle"
	"github.com/Tyrowin/roomchat/internal/logging"
	"github.com/Tyrowin/roomchat/internal/metrics"
	"github.com/Tyrowin/roomchat/internal/natsbus"
	"github.com/Tyrowin/roomchat/internal/presence"
	"github.com/Tyrowin/roomchat/internal/server"
)

func main() {
	config := server.NewConfigFromEnv()

	logger, err := logging.New(config.LogLevel, config.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging configuration: %v\n", err)
		os.Exit(1)
	}

	gin.SetMode(gin.ReleaseMode)
	logger.Info("starting roomchat server", zap.String("port", config.Port))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.New(reg)

	sinks := []lifecycle.Sink{collector}
	var closers []func()

	if config.Redis.Addr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rdb, err := presence.Connect(ctx, config.Redis.Addr, config.Redis.Password, config.Redis.DB)
		cancel()
		if err != nil {
			logger.Warn("presence mirror disabled", zap.String("addr", config.Redis.Addr), zap.Error(err))
		} else {
			sinks = append(sinks, presence.NewStore(rdb, "", config.Redis.PresenceTTL))
			closers = append(closers, func() { _ = rdb.Close() })
			logger.Info("presence mirror enabled", zap.String("addr", config.Redis.Addr))
		}
	}

	if config.NATS.URL != "" {
		nc, err := natsbus.Connect(config.NATS.URL, "roomchat")
		if err != nil {
			logger.Warn("lifecycle publisher disabled", zap.String("url", config.NATS.URL), zap.Error(err))
		} else {
			sinks = append(sinks, natsbus.NewPublisher(nc, config.NATS.SubjectPrefix))
			closers = append(closers, func() { _ = nc.Drain() })
			logger.Info("lifecycle publisher enabled", zap.String("url", config.NATS.URL))
		}
	}

	dispatcher := lifecycle.NewDispatcher(config.LifecycleQueueSize, logger, sinks...)
	go dispatcher.Run()

	srv := server.New(config,
		server.WithLogger(logger),
		server.WithNotifier(dispatcher),
		server.WithObserver(collector),
		server.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})),
	)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		config.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"roomchat": func(ctx context.Context) error {
				logger.Info("graceful shutdown initiated")
				err := srv.Shutdown(ctx)
				if cerr := dispatcher.Close(ctx); cerr != nil {
					logger.Warn("lifecycle dispatcher close", zap.Error(cerr))
				}
				for _, closeFn := range closers {
					closeFn()
				}
				return err
			},
		},
	)

	exitCode := <-wait
	logger.Info("server exited", zap.Int("code", exitCode))
	_ = logger.Sync()
	os.Exit(exitCode)
}
