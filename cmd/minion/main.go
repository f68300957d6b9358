package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/navid-fn/minions/configs"
	"github.com/navid-fn/minions/internal/control"
	"github.com/navid-fn/minions/internal/exchange/binance"
	"github.com/navid-fn/minions/internal/logging"
	"github.com/navid-fn/minions/internal/orchestrator"
	"github.com/navid-fn/minions/internal/queue"
	"github.com/navid-fn/minions/internal/ranking"
	"github.com/navid-fn/minions/internal/registry"
	"github.com/navid-fn/minions/internal/store"
	"github.com/navid-fn/minions/internal/stream"
)

var errControlClosed = errors.New("control channel closed")

func main() {
	cfg := configs.AppLoad()
	logger := logging.NewLogger(cfg.LogLevel)

	if !strings.EqualFold(cfg.Exchange, binance.Name) {
		logger.WithField("exchange", cfg.Exchange).Fatal("Unsupported exchange")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to redis")
	}
	if err := queue.Ping(pingCtx, cfg.Kafka.Brokers); err != nil {
		logger.WithError(err).Fatal("Failed to reach Kafka")
	}

	controlChannel := control.NewChannel(rdb, cfg.Keys.ControlChannel, logging.Component(logger, "control"))
	messages, err := controlChannel.Subscribe(ctx)
	if err != nil {
		logger.WithError(err).Fatal("Failed to subscribe to control channel")
	}
	replies := control.NewChannel(rdb, cfg.Keys.ReplyChannel, logging.Component(logger, "control"))

	producer := queue.NewProducer(queue.NewWriter(queue.WriterConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
		Async:   true,
	}, logging.Component(logger, "queue")))
	defer func() {
		if err := producer.Close(); err != nil {
			logger.WithError(err).Warn("Kafka producer close failed")
		}
	}()

	client := binance.NewClient(binance.Config{}, logging.Component(logger, "binance"))
	lists := store.NewLists(rdb)

	factory := &stream.Factory{
		Exchange: client.Name(),
		Buckets:  stream.DefaultBuckets,
		Grace:    cfg.Minion.DrainGrace,
		Deps: stream.Deps{
			Source:    client,
			Publisher: producer,
			Recency:   store.NewRecency(rdb, store.DefaultHorizon),
			Extrema:   store.NewExtrema(rdb),
			Logger:    logging.Component(logger, "adapter"),
		},
	}

	orch := orchestrator.New(orchestrator.Config{
		Exchange:     cfg.Exchange,
		Intervals:    cfg.Minion.KlineIntervals,
		IntervalsKey: cfg.Keys.Intervals,
	}, orchestrator.Deps{
		Registry: registry.New(lists, cfg.Keys.Watches),
		Launcher: factory,
		Replier:  replies,
		Settings: lists,
		Logger:   logging.Component(logger, "orchestrator"),
	})

	if res, err := orch.Restore(ctx); err != nil {
		logger.WithError(err).Error("Failed to restore watches")
	} else {
		logger.WithField("watches", len(res.Watches)).Info("Watches restored")
	}

	ranker := ranking.New(ranking.Config{
		Quote:    cfg.Minion.QuoteAsset,
		TopCount: cfg.Minion.TopCount,
		Interval: cfg.Minion.TickerInterval,
		Key:      cfg.Keys.TopSymbols,
	}, client, controlChannel, lists, logging.Component(logger, "ranking"))
	if err := ranker.Restore(ctx); err != nil {
		logger.WithError(err).Warn("Failed to restore last ranking")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := orch.Run(gctx, messages); err != nil {
			return err
		}
		if gctx.Err() == nil {
			return errControlClosed
		}
		return nil
	})
	g.Go(func() error {
		return ranker.Run(gctx)
	})

	logger.WithFields(logrus.Fields{
		"exchange": cfg.Exchange,
		"channel":  cfg.Keys.ControlChannel,
		"topic":    cfg.Kafka.Topic,
	}).Info("Minion running")

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("Minion loop stopped")
	}

	logger.Info("Initiating graceful shutdown...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Minion.DrainGrace+2*time.Second)
	defer cancelShutdown()
	if err := orch.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Some adapters did not stop in time")
	}

	logger.Info("Application stopped successfully")
}
