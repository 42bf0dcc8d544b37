package main

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/aigualink/water-metering-worker/internal/config"
	"github.com/aigualink/water-metering-worker/internal/consumption"
	"github.com/aigualink/water-metering-worker/internal/db"
	"github.com/aigualink/water-metering-worker/internal/mq"
	"github.com/aigualink/water-metering-worker/internal/repository"
	"github.com/aigualink/water-metering-worker/internal/service"
	"github.com/aigualink/water-metering-worker/internal/storage"
)

func startWorker(
	lc fx.Lifecycle,
	conn *mq.Connection,
	cfg *config.Config,
	logger *zap.Logger,
	dispatcher *service.Dispatcher,
) (*mq.Consumer, error) {
	ctx, cancel := context.WithCancel(context.Background())

	consumer, err := mq.NewConsumer(mq.ConsumerConfig{
		Connection:    conn,
		Queue:         cfg.RabbitMQ.IngestQueue,
		DLQQueue:      cfg.RabbitMQ.DLQQueue,
		Exchange:      cfg.RabbitMQ.IngestExchange,
		RoutingKey:    cfg.RabbitMQ.IngestRoutingKey,
		PrefetchCount: cfg.RabbitMQ.PrefetchCount,
		Logger:        logger,
		Handler:       dispatcher.HandleMessage,
	})
	if err != nil {
		cancel()
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			logger.Info("starting command consumer",
				zap.String("queue", cfg.RabbitMQ.IngestQueue),
				zap.Int("prefetch", cfg.RabbitMQ.PrefetchCount))
			return consumer.Start(ctx)
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			if err := consumer.Close(); err != nil {
				logger.Error("failed to close consumer", zap.Error(err))
				return err
			}
			logger.Info("worker stopped gracefully")
			return nil
		},
	})

	return consumer, nil
}

// ProvideDBPool creates the database connection pool
func ProvideDBPool(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*db.Pool, error) {
	return db.NewPool(lc, logger, cfg.Database.URL)
}

// ProvideRepository creates the repository
func ProvideRepository(pool *db.Pool) *repository.Repository {
	return repository.NewRepository(pool)
}

// ProvideCalculator creates the consumption calculator
func ProvideCalculator(cfg *config.Config) *consumption.Calculator {
	return consumption.NewCalculator(cfg.Consumption.BootstrapAmortizationDays)
}

// ProvideStorageClient creates the blob-storage client
func ProvideStorageClient(cfg *config.Config, logger *zap.Logger) storage.Store {
	return storage.NewBlobClient(cfg.Storage, logger)
}

// ProvideMQConnection creates the RabbitMQ connection
func ProvideMQConnection(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*mq.Connection, error) {
	return mq.NewConnection(lc, logger, cfg.RabbitMQ.URL)
}

// ProvidePublisher creates the reading-event publisher
func ProvidePublisher(conn *mq.Connection, cfg *config.Config, logger *zap.Logger) (*mq.Publisher, error) {
	return mq.NewPublisher(conn, cfg.RabbitMQ.EventExchange, logger)
}

// ProvideLastReadingUpdater creates the recalculation engine
func ProvideLastReadingUpdater(repo *repository.Repository, calc *consumption.Calculator, logger *zap.Logger) *service.LastReadingUpdater {
	return service.NewLastReadingUpdater(repo, calc, logger)
}

// ProvideReadingCreator creates the reading creator
func ProvideReadingCreator(repo *repository.Repository, updater *service.LastReadingUpdater, files storage.Store, logger *zap.Logger) *service.ReadingCreator {
	return service.NewReadingCreator(repo, updater, files, logger)
}

// ProvideReadingUpdater creates the reading updater
func ProvideReadingUpdater(repo *repository.Repository, updater *service.LastReadingUpdater, files storage.Store, logger *zap.Logger) *service.ReadingUpdater {
	return service.NewReadingUpdater(repo, updater, files, logger)
}

// ProvideReadingDeleter creates the reading deleter
func ProvideReadingDeleter(repo *repository.Repository, updater *service.LastReadingUpdater, files storage.Store, logger *zap.Logger) *service.ReadingDeleter {
	return service.NewReadingDeleter(repo, updater, files, logger)
}

// ProvideMeterReplacer creates the meter replacer
func ProvideMeterReplacer(repo *repository.Repository, creator *service.ReadingCreator, files storage.Store, logger *zap.Logger) *service.WaterMeterReplacer {
	return service.NewWaterMeterReplacer(repo, creator, files, logger)
}

// ProvideOwnerChanger creates the owner changer
func ProvideOwnerChanger(repo *repository.Repository, logger *zap.Logger) *service.WaterMeterOwnerChanger {
	return service.NewWaterMeterOwnerChanger(repo, logger)
}

// ProvideDispatcher creates the command dispatcher
func ProvideDispatcher(
	creator *service.ReadingCreator,
	updater *service.ReadingUpdater,
	deleter *service.ReadingDeleter,
	replacer *service.WaterMeterReplacer,
	ownerChanger *service.WaterMeterOwnerChanger,
	publisher *mq.Publisher,
	cfg *config.Config,
	logger *zap.Logger,
) *service.Dispatcher {
	return service.NewDispatcher(creator, updater, deleter, replacer, ownerChanger,
		publisher, cfg.RabbitMQ.EventRoutingKey, logger)
}
