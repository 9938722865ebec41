package main

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-flash-sale/internal/config"
	kafkax "github.com/ariefcatur/go-flash-sale/internal/kafka"
	"github.com/ariefcatur/go-flash-sale/internal/logx"
	"github.com/ariefcatur/go-flash-sale/internal/orders"
	"github.com/ariefcatur/go-flash-sale/internal/projection"
	"github.com/ariefcatur/go-flash-sale/internal/redisx"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"os"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	service := cfg.ServiceName + "-projector"

	log, err := logx.New(cfg.LogLevel, service)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if cfg.RedisAddr == "" || len(cfg.KafkaBrokers) == 0 {
		log.Fatal("projector needs REDIS_ADDR and KAFKA_BROKERS")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redisx.New(cfg.RedisAddr)
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}

	svc := &projection.Service{
		Redis:       rdb,
		ServiceName: service,
		Log:         log.Named("projection"),
	}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ProjectorGroup, orders.TopicEvents, cfg.ProjectorWorkers, log.Named("kafka"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("projector consumer started",
			zap.String("group", cfg.ProjectorGroup),
			zap.String("topic", orders.TopicEvents),
			zap.Int("workers", cfg.ProjectorWorkers))
		return cons.Start(gctx, svc.HandleEvent)
	})

	wait := gfshutdown.GracefulShutdown(ctx, cfg.ShutdownTimeout, map[string]gfshutdown.Operation{
		"flashsale-projector": func(context.Context) error {
			log.Info("shutting down consumer")
			cancel()
			err := g.Wait()
			return errors.Join(err, rdb.Close())
		},
	})

	// a consumer that dies on its own takes the process down with it
	go func() {
		if err := g.Wait(); err != nil {
			log.Error("consumer exit", zap.Error(err))
			_ = rdb.Close()
			_ = log.Sync()
			os.Exit(1)
		}
	}()

	code := <-wait
	log.Info("stopped", zap.Int("exit_code", code))
	_ = log.Sync()
	os.Exit(code)
}
