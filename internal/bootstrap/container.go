package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/kazak5205/mebelplace-sub009/internal/auth"
	"github.com/kazak5205/mebelplace-sub009/internal/config"
	"github.com/kazak5205/mebelplace-sub009/internal/infra/cache"
	"github.com/kazak5205/mebelplace-sub009/internal/infra/db"
	"github.com/kazak5205/mebelplace-sub009/internal/infra/logger"
	mq "github.com/kazak5205/mebelplace-sub009/internal/infra/queue"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/handler"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/model"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/repo"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/service"
	"github.com/kazak5205/mebelplace-sub009/internal/realtime"
	"github.com/kazak5205/mebelplace-sub009/internal/router"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func BuildContainer() *do.Injector {
	inj := do.New()

	// config
	do.Provide(inj, func(i *do.Injector) (*config.Config, error) {
		return config.Load()
	})

	// logger
	do.Provide(inj, func(i *do.Injector) (*zap.Logger, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return logger.New(cfg.Log.Level)
	})

	// DB
	do.Provide(inj, func(i *do.Injector) (*gorm.DB, error) {
		cfg := do.MustInvoke[*config.Config](i)
		log := do.MustInvoke[*zap.Logger](i)
		d, err := db.New(cfg)
		if err != nil {
			return nil, err
		}
		if err := db.RegisterOpenTelemetryPlugin(d); err != nil {
			log.Warn("gorm otel plugin", zap.Error(err))
		}

		// [optional] auto migrate
		if cfg.Database.AutoMigrate {
			if err := d.AutoMigrate(model.Tables()...); err != nil {
				return nil, err
			}
		}

		// ensure the root service key matches config
		if err := EnsureRootServiceKey(context.Background(), repo.NewServiceKeyRepo(d), cfg, log); err != nil {
			return nil, err
		}

		return d, nil
	})

	// Redis
	do.Provide(inj, func(i *do.Injector) (*redis.Client, error) {
		cfg := do.MustInvoke[*config.Config](i)
		log := do.MustInvoke[*zap.Logger](i)
		rdb, err := cache.New(cfg)
		if err != nil {
			return nil, err
		}
		if err := cache.RegisterOpenTelemetryPlugin(rdb); err != nil {
			log.Warn("redis otel plugin", zap.Error(err))
		}
		return rdb, nil
	})

	// RabbitMQ dial function
	do.Provide(inj, func(i *do.Injector) (mq.DialFunc, error) {
		cfg := do.MustInvoke[*config.Config](i)
		url := cfg.RabbitMQ.URL
		if !cfg.RabbitMQ.EnableTLS {
			return func() (*amqp.Connection, error) { return amqp.Dial(url) }, nil
		}
		if strings.HasPrefix(url, "amqp://") {
			url = "amqps://" + strings.TrimPrefix(url, "amqp://")
		}
		tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
		return func() (*amqp.Connection, error) { return amqp.DialTLS(url, tlsCfg) }, nil
	})

	// RabbitMQ connection; nil when no broker is configured
	do.Provide(inj, func(i *do.Injector) (*amqp.Connection, error) {
		cfg := do.MustInvoke[*config.Config](i)
		if cfg.RabbitMQ.URL == "" {
			return nil, nil
		}
		dial := do.MustInvoke[mq.DialFunc](i)
		return dial()
	})

	// RabbitMQ publisher; nil makes notifications go straight to the relay
	do.Provide(inj, func(i *do.Injector) (*mq.Publisher, error) {
		conn := do.MustInvoke[*amqp.Connection](i)
		if conn == nil {
			return nil, nil
		}
		return mq.NewPublisher(conn, do.MustInvoke[*zap.Logger](i), do.MustInvoke[*config.Config](i))
	})

	// Repo
	do.Provide(inj, func(i *do.Injector) (repo.ServiceKeyRepo, error) {
		return repo.NewServiceKeyRepo(do.MustInvoke[*gorm.DB](i)), nil
	})
	do.Provide(inj, func(i *do.Injector) (repo.ChatRepo, error) {
		return repo.NewChatRepo(do.MustInvoke[*gorm.DB](i)), nil
	})
	do.Provide(inj, func(i *do.Injector) (repo.NotificationRepo, error) {
		return repo.NewNotificationRepo(do.MustInvoke[*gorm.DB](i)), nil
	})

	// Realtime
	do.Provide(inj, func(i *do.Injector) (*realtime.Registry, error) {
		return realtime.NewRegistry(do.MustInvoke[*zap.Logger](i)), nil
	})
	do.Provide(inj, func(i *do.Injector) (*realtime.RedisBus, error) {
		cfg := do.MustInvoke[*config.Config](i)
		if !cfg.Realtime.RedisBus {
			return nil, nil
		}
		return realtime.NewRedisBus(
			do.MustInvoke[*redis.Client](i),
			cfg.Realtime.BusChannel,
			do.MustInvoke[*realtime.Registry](i),
			do.MustInvoke[*zap.Logger](i),
		), nil
	})
	do.Provide(inj, func(i *do.Injector) (realtime.Broadcaster, error) {
		if bus := do.MustInvoke[*realtime.RedisBus](i); bus != nil {
			return bus, nil
		}
		return do.MustInvoke[*realtime.Registry](i), nil
	})
	do.Provide(inj, func(i *do.Injector) (realtime.Presence, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return realtime.NewRedisPresence(do.MustInvoke[*redis.Client](i), 2*cfg.Realtime.PongWait), nil
	})
	do.Provide(inj, func(i *do.Injector) (realtime.CallStore, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return realtime.NewRedisCallStore(do.MustInvoke[*redis.Client](i), cfg.Realtime.CallTTL), nil
	})
	do.Provide(inj, func(i *do.Injector) (*realtime.OrderStatusRelay, error) {
		return realtime.NewOrderStatusRelay(do.MustInvoke[realtime.Broadcaster](i), do.MustInvoke[*zap.Logger](i)), nil
	})
	do.Provide(inj, func(i *do.Injector) (*realtime.NotificationRelay, error) {
		return realtime.NewNotificationRelay(do.MustInvoke[realtime.Broadcaster](i), do.MustInvoke[*zap.Logger](i)), nil
	})

	// Service
	do.Provide(inj, func(i *do.Injector) (service.ChatService, error) {
		return service.NewChatService(do.MustInvoke[repo.ChatRepo](i)), nil
	})
	do.Provide(inj, func(i *do.Injector) (service.EngagementService, error) {
		return service.NewEngagementService(do.MustInvoke[*gorm.DB](i), do.MustInvoke[*zap.Logger](i)), nil
	})
	do.Provide(inj, func(i *do.Injector) (service.NotificationService, error) {
		return service.NewNotificationService(
			do.MustInvoke[repo.NotificationRepo](i),
			do.MustInvoke[*mq.Publisher](i),
			do.MustInvoke[*realtime.NotificationRelay](i),
			do.MustInvoke[*config.Config](i),
			do.MustInvoke[*zap.Logger](i),
		), nil
	})
	do.Provide(inj, func(i *do.Injector) (service.OrderLifecycleService, error) {
		return service.NewOrderLifecycleService(
			do.MustInvoke[*gorm.DB](i),
			do.MustInvoke[service.NotificationService](i),
			do.MustInvoke[*zap.Logger](i),
			do.MustInvoke[*realtime.OrderStatusRelay](i),
		), nil
	})

	do.Provide(inj, func(i *do.Injector) (*realtime.Hub, error) {
		cfg := do.MustInvoke[*config.Config](i)
		log := do.MustInvoke[*zap.Logger](i)
		reg := do.MustInvoke[*realtime.Registry](i)
		bus := do.MustInvoke[realtime.Broadcaster](i)
		r := realtime.NewRouter(realtime.Deps{
			Registry:   reg,
			Bus:        bus,
			Chats:      do.MustInvoke[service.ChatService](i),
			Engagement: do.MustInvoke[service.EngagementService](i),
			Orders:     do.MustInvoke[service.OrderLifecycleService](i),
			Calls:      do.MustInvoke[realtime.CallStore](i),
		}, log)
		return realtime.NewHub(reg, bus, r, do.MustInvoke[realtime.Presence](i), realtime.SessionConfigFrom(cfg), log), nil
	})

	do.Provide(inj, func(i *do.Injector) (auth.Authenticator, error) {
		return auth.New(do.MustInvoke[*config.Config](i), do.MustInvoke[*zap.Logger](i))
	})

	// Handler
	do.Provide(inj, func(i *do.Injector) (*handler.OrderHandler, error) {
		return handler.NewOrderHandler(do.MustInvoke[service.OrderLifecycleService](i)), nil
	})
	do.Provide(inj, func(i *do.Injector) (*handler.NotificationHandler, error) {
		return handler.NewNotificationHandler(do.MustInvoke[service.NotificationService](i)), nil
	})
	do.Provide(inj, func(i *do.Injector) (*handler.RealtimeHandler, error) {
		return handler.NewRealtimeHandler(
			do.MustInvoke[*realtime.Hub](i),
			do.MustInvoke[auth.Authenticator](i),
			do.MustInvoke[*zap.Logger](i),
		), nil
	})

	do.Provide(inj, func(i *do.Injector) (router.RouterDeps, error) {
		return router.RouterDeps{
			Config:              do.MustInvoke[*config.Config](i),
			Log:                 do.MustInvoke[*zap.Logger](i),
			Authenticator:       do.MustInvoke[auth.Authenticator](i),
			ServiceKeys:         do.MustInvoke[repo.ServiceKeyRepo](i),
			OrderHandler:        do.MustInvoke[*handler.OrderHandler](i),
			NotificationHandler: do.MustInvoke[*handler.NotificationHandler](i),
			RealtimeHandler:     do.MustInvoke[*handler.RealtimeHandler](i),
		}, nil
	})

	return inj
}
