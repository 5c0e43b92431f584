package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Astemirdum/circulation-service/config"
	"github.com/Astemirdum/circulation-service/internal/audit"
	"github.com/Astemirdum/circulation-service/internal/repository"
	"github.com/Astemirdum/circulation-service/internal/service"
	"github.com/Astemirdum/circulation-service/migrations"
	"github.com/Astemirdum/circulation-service/pkg/kafka"
	"github.com/Astemirdum/circulation-service/pkg/logger"
	"github.com/Astemirdum/circulation-service/pkg/postgres"
)

// Run hosts the circulation batch jobs. The lending and reservation services
// are library surface for embedding callers; the binary itself only drives
// the sweeps.
func Run(cfg *config.Config) {
	log := logger.NewLogger(cfg.Log, "circulation")
	db, err := postgres.NewPostgresDB(context.Background(), &cfg.Database, migrations.MigrationFiles)
	if err != nil {
		log.Fatal("db init", zap.Error(err))
	}
	repo, err := repository.NewRepository(db, log)
	if err != nil {
		log.Fatal("repo", zap.Error(err))
	}

	sink, closeSink := newAuditSink(cfg.Kafka, log)
	sweeper := service.NewSweeper(repo, sink, log, cfg.Sweep.Interval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sweeper.Run(ctx)
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case termSig := <-sig:
				if termSig == syscall.SIGHUP {
					log.Info("sweep kicked", zap.Any("signal", termSig))
					sweeper.Kick()
					continue
				}
				log.Debug("Graceful shutdown", zap.Any("signal", termSig))
				cancel()
				return nil
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("sweeper run", zap.Error(err))
	}

	closeSink()
	db.Close()
	log.Info("Graceful shutdown finished")
}

// newAuditSink picks the Kafka sink when brokers are configured and the log
// sink otherwise, so a broker is never a hard dependency of the host.
func newAuditSink(cfg kafka.Config, log *zap.Logger) (service.AuditSink, func()) {
	if len(cfg.Addrs) == 0 {
		return audit.NewLogSink(log), func() {}
	}
	producer, err := kafka.NewAsyncProducer(cfg)
	if err != nil {
		log.Fatal("kafka producer", zap.Error(err))
	}
	sink := audit.NewKafkaSink(producer, cfg.Topic, log)
	return sink, func() {
		if err := producer.Close(); err != nil {
			log.Warn("producer close", zap.Error(err))
		}
	}
}
