// Package main runs the background job worker (signing-link emails, signature archives).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pactline/backend/config"
	"github.com/pactline/backend/internal/emaillogs"
	"github.com/pactline/backend/internal/ledger"
	"github.com/pactline/backend/internal/mailer"
	"github.com/pactline/backend/internal/worker"
	"github.com/pactline/backend/pkg/database"
	"github.com/pactline/backend/pkg/queue"
	"github.com/pactline/backend/pkg/redis"
	"github.com/pactline/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.PoolOptions(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	jobQueue := queue.NewQueue(rdb.Client, logger)
	processors := map[queue.JobType]worker.Processor{
		queue.JobTypeSigningLink: worker.NewEmailProcessor(mailer.New(cfg.Email, logger), emaillogs.NewRepository(pool), logger),
	}
	queues := []string{queue.QueueEmails}

	if cfg.Signing.ArchiveToBucket && cfg.AWS.SignaturesBucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:           cfg.AWS.Region,
			AccessKeyID:      cfg.AWS.AccessKeyID,
			SecretAccessKey:  cfg.AWS.SecretAccessKey,
			SignaturesBucket: cfg.AWS.SignaturesBucket,
		}, logger)
		if err != nil {
			logger.Fatal("s3", zap.Error(err))
		}
		processors[queue.JobTypeSignatureArchive] = worker.NewArchiveProcessor(ledger.NewRepository(pool), s3Client, storage.SignatureKey, logger)
		queues = append(queues, queue.QueueArchives)
	} else {
		logger.Info("signature archiving disabled")
	}

	runner := worker.NewRunner(jobQueue, processors, queues, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runner.Run(workerCtx)
		close(done)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	select {
	case <-done:
	case <-time.After(worker.DequeueTimeout + 2*time.Second):
		logger.Warn("worker did not stop in time")
	}
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
