package main

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-flash-sale/internal/config"
	"github.com/ariefcatur/go-flash-sale/internal/httpx"
	kafkax "github.com/ariefcatur/go-flash-sale/internal/kafka"
	"github.com/ariefcatur/go-flash-sale/internal/logx"
	"github.com/ariefcatur/go-flash-sale/internal/orders"
	"github.com/ariefcatur/go-flash-sale/internal/postgres"
	"github.com/ariefcatur/go-flash-sale/internal/redisx"
	"github.com/ariefcatur/go-flash-sale/internal/sqlite"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"net/http"
	"os"
)

// seedProduct is inserted when SEED_PRODUCT is on and no product exists.
var seedProduct = orders.Product{
	Title:      "The Go Programming Language",
	Author:     "Alan A. A. Donovan, Brian W. Kernighan",
	Year:       2015,
	PriceCents: 3999,
	Quantity:   orders.Baseline,
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := logx.New(cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var closers []closer

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("storage", zap.String("driver", cfg.StorageDriver), zap.Error(err))
	}
	closers = append(closers, closer{cfg.StorageDriver, closeStore})

	sale := orders.NewCoordinator(store, orders.Options{
		PurchaseDelay: cfg.PurchaseDelay,
		Logger:        log.Named("coordinator"),
	})

	h := &httpx.SaleHandler{
		Sale:    sale,
		Service: cfg.ServiceName,
		Log:     log.Named("http"),
	}

	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, fast paths will degrade", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		h.Redis = rdb
		closers = append(closers, closer{"redis", func(context.Context) error { return rdb.Close() }})
	}

	if len(cfg.KafkaBrokers) > 0 {
		prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicEvents, 1024, log.Named("kafka"))
		prod.Start(ctx)
		h.Producer = prod
		closers = append(closers, closer{"kafka-producer", func(context.Context) error {
			prod.Close()
			prod.WaitClosed()
			return nil
		}})
	}

	router := httpx.NewRouter(httpx.RouterOptions{
		Service:     cfg.ServiceName,
		CORSOrigins: cfg.CORSOrigins,
		Log:         log.Named("access"),
	})
	h.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	closers = append(closers, closer{"http", srv.Shutdown})

	go func() {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr), zap.String("storage", cfg.StorageDriver), zap.Duration("purchase_delay", cfg.PurchaseDelay))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	wait := gfshutdown.GracefulShutdown(ctx, cfg.ShutdownTimeout, map[string]gfshutdown.Operation{
		"flashsale-api": func(ctx context.Context) error {
			log.Info("graceful shutdown initiated")
			return closeAll(ctx, log, closers)
		},
	})
	code := <-wait
	log.Info("stopped", zap.Int("exit_code", code))
	_ = log.Sync()
	os.Exit(code)
}

type closer struct {
	name string
	fn   func(context.Context) error
}

// closeAll stops resources in reverse start order: the HTTP server drains
// first, storage goes last.
func closeAll(ctx context.Context, log *zap.Logger, closers []closer) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		c := closers[i]
		if err := c.fn(ctx); err != nil {
			log.Warn("shutdown", zap.String("resource", c.name), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (orders.Store, func(context.Context) error, error) {
	switch cfg.StorageDriver {
	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, err
		}
		if cfg.SeedProduct {
			p, err := sqlite.EnsureProduct(db, seedProduct)
			if err != nil {
				_ = sqlDB.Close()
				return nil, nil, err
			}
			log.Info("sale product", zap.String("product_id", p.ID), zap.Int("quantity", p.Quantity))
		}
		return sqlite.NewStore(db), func(context.Context) error { return sqlDB.Close() }, nil

	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresConns)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		if cfg.SeedProduct {
			p, err := postgres.EnsureProduct(ctx, db, seedProduct)
			if err != nil {
				db.Close()
				return nil, nil, err
			}
			log.Info("sale product", zap.String("product_id", p.ID), zap.Int("quantity", p.Quantity))
		}
		return postgres.NewStore(db), func(context.Context) error { db.Close(); return nil }, nil
	}
}
