package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/navid-fn/minions/configs"
	"github.com/navid-fn/minions/internal/hopper"
	"github.com/navid-fn/minions/internal/logging"
	"github.com/navid-fn/minions/internal/queue"
	"github.com/navid-fn/minions/internal/storage"
)

func main() {
	cfg := configs.AppLoad()
	logger := logging.NewLogger(cfg.LogLevel)

	sink, err := storage.NewClickHouseSink(cfg.DBDSN)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to ClickHouse")
	}
	defer sink.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = queue.Ping(pingCtx, cfg.Kafka.Brokers)
	cancel()
	if err != nil {
		logger.WithError(err).Fatal("Failed to reach Kafka")
	}

	queueLogger := logging.Component(logger, "queue")
	requeue := queue.NewProducer(queue.NewWriter(queue.WriterConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
	}, queueLogger))
	defer requeue.Close()

	deadLetter := queue.NewProducer(queue.NewWriter(queue.WriterConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.DeadLetterTopic,
	}, queueLogger))
	defer deadLetter.Close()

	consumers := func(int) hopper.Consumer {
		return queue.NewConsumer(queue.NewReader(queue.ReaderConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		}))
	}

	h, err := hopper.New(hopper.Config{
		Workers:        cfg.Hopper.Workers,
		ReportInterval: cfg.Hopper.ReportInterval,
		MaxAttempts:    cfg.Hopper.MaxAttempts,
		PollTimeout:    cfg.Hopper.PollTimeout,
	}, hopper.SinkHandlers(sink), consumers, requeue, deadLetter, logging.Component(logger, "hopper"))
	if err != nil {
		logger.WithError(err).Fatal("Failed to build hopper")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithFields(logrus.Fields{
		"topic": cfg.Kafka.Topic,
		"group": cfg.Kafka.GroupID,
	}).Info("Hopper consuming")

	if err := h.Run(ctx); err != nil {
		logger.WithError(err).Error("Hopper exited with error")
	}
	logger.Info("Application stopped successfully")
}
