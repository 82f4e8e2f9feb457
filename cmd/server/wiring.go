package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/0Azuree/Ledeqth-sub000/internal/adapters/bus/kafkabus"
	"github.com/0Azuree/Ledeqth-sub000/internal/adapters/bus/redisbus"
	"github.com/0Azuree/Ledeqth-sub000/internal/adapters/store/memstore"
	"github.com/0Azuree/Ledeqth-sub000/internal/adapters/store/mongostore"
	"github.com/0Azuree/Ledeqth-sub000/internal/adapters/store/pgstore"
	"github.com/0Azuree/Ledeqth-sub000/internal/adapters/store/redisstore"
	"github.com/0Azuree/Ledeqth-sub000/internal/app"
	"github.com/0Azuree/Ledeqth-sub000/internal/config"
	"github.com/0Azuree/Ledeqth-sub000/internal/core"
)

func openStore(ctx context.Context, cfg *config.Config) (core.RoomStore, error) {
	sc := cfg.Store
	switch sc.Driver {
	case "", "memory":
		log.Warn().Str("module", "main").Msg("memory store: rooms are lost on restart and not shared between instances")
		return memstore.New(), nil
	case "redis":
		client, err := redisstore.NewClient(ctx, redisstore.Config{
			Addr:     sc.Redis.Addr,
			Password: sc.Redis.Password,
			DB:       sc.Redis.DB,
			PoolSize: sc.Redis.PoolSize,
		})
		if err != nil {
			return nil, err
		}
		return redisstore.New(client, cfg.AppID, sc.Retries), nil
	case "mongo":
		return mongostore.New(ctx, mongostore.Config{
			URI:        sc.Mongo.URI,
			Database:   sc.Mongo.Database,
			Collection: sc.Mongo.Collection,
			Namespace:  cfg.AppID,
			Retries:    sc.Retries,
		})
	case "postgres":
		return pgstore.Open(sc.Postgres.DSN, cfg.AppID)
	}
	return nil, fmt.Errorf("unknown store driver %q", sc.Driver)
}

type bus interface {
	core.Publisher
	Close() error
}

// localBus is the hub itself: events never leave this process.
type localBus struct{ *app.Hub }

func (localBus) Close() error { return nil }

// openBus returns the publisher for the orchestrator. Remote buses deliver
// what they receive to hub, including this instance's own events.
func openBus(ctx context.Context, cfg *config.Config, hub *app.Hub) (bus, error) {
	bc := cfg.Bus
	switch bc.Driver {
	case "", "local":
		return localBus{hub}, nil
	case "redis":
		client, err := redisstore.NewClient(ctx, redisstore.Config{
			Addr:     bc.Redis.Addr,
			Password: bc.Redis.Password,
			DB:       bc.Redis.DB,
			PoolSize: bc.Redis.PoolSize,
		})
		if err != nil {
			return nil, err
		}
		b := redisbus.New(client, cfg.AppID, hub)
		go runBus(ctx, "redis", b.Run)
		return b, nil
	case "kafka":
		b, err := kafkabus.New(kafkabus.Config{
			Brokers:  bc.Kafka.Brokers,
			Topic:    bc.Kafka.Topic,
			GroupID:  bc.Kafka.GroupID,
			ClientID: cfg.AppID,
			Username: bc.Kafka.Username,
			Password: bc.Kafka.Password,
		}, hub)
		if err != nil {
			return nil, err
		}
		go runBus(ctx, "kafka", b.Run)
		return b, nil
	}
	return nil, fmt.Errorf("unknown bus driver %q", bc.Driver)
}

func runBus(ctx context.Context, name string, run func(context.Context) error) {
	if err := run(ctx); err != nil {
		log.Error().Err(err).Str("module", "main").Str("bus", name).Msg("bus stopped")
	}
}
