package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/clickhouse"
	"gorm.io/gorm"

	"github.com/navid-fn/minions/internal/control"
	"github.com/navid-fn/minions/internal/logging"
	"github.com/navid-fn/minions/internal/store"
	"github.com/navid-fn/minions/server/config"
	"github.com/navid-fn/minions/server/internal/handler"
	"github.com/navid-fn/minions/server/internal/repository"
	"github.com/navid-fn/minions/server/internal/router"
	"github.com/navid-fn/minions/server/internal/service"
)

func main() {
	cfg := config.Load()
	app := cfg.App
	logger := logging.NewLogger(app.LogLevel)

	db, err := gorm.Open(clickhouse.Open(app.DBDSN), &gorm.Config{})
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     app.Redis.Addr,
		Password: app.Redis.Password,
		DB:       app.Redis.DB,
	})
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to redis")
	}

	channel := control.NewChannel(rdb, app.Keys.ControlChannel, logging.Component(logger, "control"))

	tradeRepo := repository.NewGormTradeRepository(db)
	watchRepo := repository.NewRedisWatchRepository(store.NewLists(rdb), channel, app.Keys.Watches)
	marketRepo := repository.NewRedisMarketRepository(
		store.NewRecency(rdb, store.DefaultHorizon),
		store.NewExtrema(rdb),
	)

	tradeHandler := handler.NewTradeHandler(service.NewTradesService(tradeRepo))
	watchHandler := handler.NewWatchHandler(service.NewWatchService(watchRepo, app.Exchange))
	marketHandler := handler.NewMarketHandler(service.NewMarketService(marketRepo, app.Exchange, app.Minion.KlineIntervals))

	routerConfig := &router.Config{
		TradeHandler:  tradeHandler,
		WatchHandler:  watchHandler,
		MarketHandler: marketHandler,
	}

	r := router.NewRouter(routerConfig)

	logger.WithFields(logrus.Fields{"port": cfg.ServerPort, "exchange": app.Exchange}).Info("Starting API server")
	if err := r.Run(fmt.Sprintf(":%s", cfg.ServerPort)); err != nil {
		logger.WithError(err).Fatal("API server stopped")
	}
}
