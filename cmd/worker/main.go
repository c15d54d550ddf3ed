package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
	"github.com/suPer8Hu/voice-intake/internal/audit"
	"github.com/suPer8Hu/voice-intake/internal/config"
	"github.com/suPer8Hu/voice-intake/internal/db"
	"github.com/suPer8Hu/voice-intake/internal/logging"
	"github.com/suPer8Hu/voice-intake/internal/store/rabbitmq"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	gdb, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}
	repo := audit.NewRepo(gdb)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatal().Err(err).Msg("rabbit dial")
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatal().Err(err).Msg("rabbit channel")
	}
	defer ch.Close()

	if err := rabbitmq.DeclareTopology(ch, cfg.RabbitQueue); err != nil {
		log.Fatal().Err(err).Msg("queue declare")
	}

	// strict concurrency control
	concurrency := cfg.WorkerConcurrency
	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatal().Err(err).Msg("qos")
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("consume")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("queue", cfg.RabbitQueue).Int("concurrency", concurrency).Msg("Worker started")

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		workerID := i
		g.Go(func() error {
			for d := range jobs {
				handleDelivery(context.WithoutCancel(gctx), workerID, ch, cfg.RabbitQueue, repo, d)
			}
			return nil
		})
	}

	// dispatcher
	g.Go(func() error {
		defer close(jobs)
		for {
			select {
			case <-gctx.Done():
				log.Info().Msg("Worker shutting down")
				return nil
			case d, ok := <-msgs:
				if !ok {
					return errors.New("delivery channel closed")
				}
				jobs <- d
			}
		}
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker stopped")
		os.Exit(1)
	}
}

func handleDelivery(ctx context.Context, workerID int, ch *amqp.Channel, queue string, repo *audit.Repo, d amqp.Delivery) {
	logger := log.With().Int("worker", workerID).Str("message_id", d.MessageId).Logger()

	ev, err := rabbitmq.DecodeEvent(d.Body)
	if err != nil {
		logger.Warn().Err(err).Msg("Bad message")
		_ = d.Nack(false, false)
		return
	}
	logger = logger.With().Str("event_id", ev.ID).Str("session_id", ev.SessionID).Str("kind", string(ev.Kind)).Logger()

	start := time.Now()
	actx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = repo.Apply(actx, ev)
	cancel()
	if err != nil {
		retried, rerr := rabbitmq.Retry(ctx, ch, queue, d)
		switch {
		case rerr != nil:
			logger.Error().Err(err).AnErr("retry_err", rerr).Msg("Apply failed, retry publish failed")
			_ = d.Nack(false, false)
		case retried:
			logger.Warn().Err(err).Int("attempt", rabbitmq.RetryCount(d.Headers)+1).Msg("Apply failed, retrying")
			_ = d.Ack(false)
		default:
			logger.Error().Err(err).Msg("Apply failed, sending to DLQ")
			_ = d.Nack(false, false)
		}
		return
	}

	if err := d.Ack(false); err != nil {
		logger.Error().Err(err).Msg("Ack failed")
	}
	if cost := time.Since(start); cost > 2*time.Second {
		logger.Info().Dur("cost", cost).Msg("Slow audit apply")
	}
}
