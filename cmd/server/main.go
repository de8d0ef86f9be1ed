package main

import (
	"context"
	"errors"
	"flag"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"card-order-service/internal/config"
	"card-order-service/internal/controllers/http"
	"card-order-service/internal/controllers/http/middleware"
	"card-order-service/internal/infra"
	"card-order-service/internal/infra/cache"
	mmysql "card-order-service/internal/infra/mysql"
	"card-order-service/internal/infra/rabbitmq"
	"card-order-service/internal/infra/signature"
	"card-order-service/internal/logging"
	mysqlrepo "card-order-service/internal/repository/mysql"
	"card-order-service/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/errgroup"
)

func main() {
	configDir := flag.String("config", "./configs", "directory holding base.yaml")
	envName := flag.String("env", os.Getenv("APP_ENV"), "optional <env>.yaml overlay")
	flag.Parse()

	cfg, err := config.Load(*configDir, *envName)
	if err != nil {
		logging.Base().Error("config", "err", err)
		os.Exit(1)
	}

	log := logging.Init(cfg.App.Name, cfg.App.LogFile, cfg.App.LogLevel)

	db, err := mmysql.NewMySQL(mmysql.Options{
		DSN:             cfg.MySQL.DSN,
		MaxOpenConns:    cfg.MySQL.MaxOpenConns,
		MaxIdleConns:    cfg.MySQL.MaxIdleConns,
		ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
		AutoMigrate:     cfg.MySQL.AutoMigrate,
	})
	if err != nil {
		log.Error("db: connect", "err", err)
		os.Exit(1)
	}
	uow := mysqlrepo.NewUnitOfWork(db)

	publisher, err := rabbitmq.NewPublisher(cfg.Rabbit.URL, cfg.Rabbit.Exchange)
	if err != nil {
		log.Error("failed to init publisher", "err", err)
		os.Exit(1)
	}
	defer publisher.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     50,
		MinIdleConns: 5,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})
	defer redisClient.Close()

	gateway := infra.NewPaymentGatewayClient(cfg.Gateway.BaseURL, cfg.Gateway.ShopID, cfg.Gateway.SecretKey, cfg.Gateway.Timeout)
	verifier := signature.NewHMACVerifier(cfg.Security.WebhookSecret)

	orderCache := cache.NewOrderCache(redisClient, cfg.Redis.OrderCacheTTL)

	orders := services.NewOrderService(uow, publisher)
	orders.SetCache(orderCache)

	payments := services.NewPaymentService(uow, gateway, publisher, verifier, services.PaymentConfig{
		Currency:       cfg.Gateway.Currency,
		ReturnURL:      cfg.Gateway.ReturnURL,
		GatewayTimeout: cfg.Gateway.Timeout,
		SweepAge:       cfg.Sweeper.MinAge,
		SweepBatch:     cfg.Sweeper.Batch,
	})
	payments.SetCache(orderCache)
	payments.SetEventMarker(cache.NewEventMarker(redisClient, cfg.Redis.EventTTL))

	gin.SetMode(gin.ReleaseMode)
	handler := http.NewHandler(orders, payments, middleware.NewAuth(cfg.Security.JWTSecret, cfg.Security.Issuer))
	router := http.NewRouter(handler, logging.New("http"))

	srv := &nethttp.Server{
		Addr:         cfg.App.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting order service", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.Sweeper.Enabled {
		g.Go(func() error {
			sweepCtx := logging.WithCtx(gctx, logging.New("sweeper"))
			return payments.RunSweeper(sweepCtx, cfg.Sweeper.Interval)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server run", "err", err)
		os.Exit(1)
	}
}
