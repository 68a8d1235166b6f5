package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fjod/go_pharmacy/internal/config"
	"github.com/fjod/go_pharmacy/internal/events"
	"github.com/fjod/go_pharmacy/internal/logger"
	"github.com/fjod/go_pharmacy/internal/notify"
)

// The notifier consumes order-placed events and e-mails receipts.
func main() {
	cfg := config.Load()

	log, err := logger.New("pharmacy-notifier", cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if len(cfg.KafkaBrokers) == 0 {
		log.Fatal("KAFKA_BROKERS is required")
	}

	secrets := config.NewSecretResolver()
	defer secrets.Close()

	receipts := notify.NewReceipts(secrets.Func(cfg.SendGridAPIKey), cfg.ReceiptFrom, log.Named("receipts"))
	consumer := events.NewConsumer(receipts, log.Named("consumer"), cfg.OrderPlacedTopic, cfg.NotifierGroupID, cfg.KafkaBrokers...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Info("notifier consuming", zap.String("topic", cfg.OrderPlacedTopic), zap.Strings("brokers", cfg.KafkaBrokers))
		consumer.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down notifier")
	cancel()
	<-done
	consumer.Close()
	log.Info("notifier exited")
}
