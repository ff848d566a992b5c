package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kazak5205/mebelplace-sub009/internal/bootstrap"
	"github.com/kazak5205/mebelplace-sub009/internal/config"
	mq "github.com/kazak5205/mebelplace-sub009/internal/infra/queue"
	"github.com/kazak5205/mebelplace-sub009/internal/realtime"
	"github.com/kazak5205/mebelplace-sub009/internal/router"
	"github.com/kazak5205/mebelplace-sub009/internal/telemetry"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/samber/do"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the realtime gateway",
	Long: `Run the HTTP API, the /ws realtime gateway and, when configured,
the Redis broadcast bus and the notification delivery consumer.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	inj := bootstrap.BuildContainer()
	cfg, err := do.Invoke[*config.Config](inj)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log := do.MustInvoke[*zap.Logger](inj)
	defer func() { _ = log.Sync() }()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			log.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	deps, err := do.Invoke[router.RouterDeps](inj)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.App.Host, cfg.App.Port),
		Handler:           router.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	if bus := do.MustInvoke[*realtime.RedisBus](inj); bus != nil {
		if err := bus.Start(gctx); err != nil {
			return err
		}
		defer func() { _ = bus.Close() }()
	}

	if conn := do.MustInvoke[*amqp.Connection](inj); conn != nil {
		defer func() { _ = conn.Close() }()
		consumer, err := mq.NewConsumer(conn,
			cfg.RabbitMQ.ExchangeName.Notification,
			cfg.RabbitMQ.RoutingKey.NotificationCreated,
			cfg.RabbitMQ.Queue.NotificationDelivery,
			cfg.RabbitMQ.Prefetch, log, cfg)
		if err != nil {
			return fmt.Errorf("notification consumer: %w", err)
		}
		defer func() { _ = consumer.Close() }()

		relay := do.MustInvoke[*realtime.NotificationRelay](inj)
		g.Go(func() error {
			err := consumer.Handle(gctx, relay.HandleMessage)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(sctx)
	})

	return g.Wait()
}
