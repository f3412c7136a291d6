package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"

	"dispatch-watch/internal/actions"
	"dispatch-watch/internal/api"
	"dispatch-watch/internal/config"
	"dispatch-watch/internal/dispatcher"
	"dispatch-watch/internal/escalation"
	"dispatch-watch/internal/eventbus"
	"dispatch-watch/internal/hub"
	"dispatch-watch/internal/kafka"
	"dispatch-watch/internal/logging"
	"dispatch-watch/internal/providers"
	"dispatch-watch/internal/refresh"
	"dispatch-watch/internal/snapshot"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Escalation channels
	var channels providers.Multi
	if cfg.Email.SMTPServer != "" {
		email, err := providers.NewEmail(providers.EmailConfig{
			SMTPServer: cfg.Email.SMTPServer,
			SMTPPort:   cfg.Email.SMTPPort,
			Username:   cfg.Email.Username,
			Password:   cfg.Email.Password,
			From:       cfg.Email.From,
		})
		if err != nil {
			log.Fatalf("Email provider: %v", err)
		}
		channels = append(channels, email)
	}
	if cfg.Telegram.BotToken != "" {
		tg, err := providers.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatIDs, cfg.Telegram.RateLimit, logger)
		if err != nil {
			log.Fatalf("Telegram provider: %v", err)
		}
		channels = append(channels, tg)
	}
	var transport escalation.Transport
	if len(channels) > 0 {
		transport = channels
	} else {
		logger.Warnf("No escalation channel configured, alerts will only be logged")
	}

	notifier := escalation.New(transport, logger, escalation.Options{
		Threshold:   cfg.Escalation.Threshold,
		Stage2Delay: cfg.Escalation.Stage2Delay,
		Stage3Delay: cfg.Escalation.Stage3Delay,
		To:          cfg.Escalation.To,
		CC:          cfg.Escalation.CC,
		Subject:     cfg.Escalation.Subject,
	})
	defer notifier.Stop()

	client := dispatcher.New(dispatcher.Config{
		BaseURL:     cfg.Dispatcher.BaseURL,
		Timeout:     cfg.Dispatcher.Timeout,
		InsecureTLS: cfg.Dispatcher.InsecureTLS,
	})

	store := snapshot.New()
	bus := eventbus.New()
	coordinator := refresh.New(client, store, bus, notifier, logger, refresh.Options{
		Site:     cfg.Dispatcher.Site,
		Timeout:  cfg.Dispatcher.Timeout,
		Interval: cfg.Poll.Interval,
	})
	relay := actions.New(client, store, coordinator, logger, cfg.Dispatcher.Site, cfg.Dispatcher.Timeout)
	viewers := hub.New(coordinator, bus, logger, cfg.API.MaxViewers)

	var wg conc.WaitGroup
	wg.Go(func() { viewers.Run(ctx) })
	wg.Go(func() { coordinator.Run(ctx) })

	// Initialize Kafka consumer
	if cfg.Kafka.Broker != "" {
		consumer := kafka.NewConsumer(kafka.Config{
			Broker:  cfg.Kafka.Broker,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		}, coordinator, relay, logger)
		logger.Infof("Kafka consumer initialized with topic: %s", cfg.Kafka.Topic)
		wg.Go(func() {
			consumer.Run(ctx)
			consumer.Close()
		})
	}

	// Start API server
	handler := api.NewHandler(coordinator, relay, notifier, store, logger)
	router := api.NewRouter(logger, cfg, handler, viewers.ServeWS)
	server := api.NewServer(cfg.API.Port, router)
	wg.Go(func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("API server shutdown: %v", err)
		}
	})

	logger.Infof("Starting API server on %s", cfg.API.Port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorf("API server failed: %v", err)
		stop()
	}

	wg.Wait()
	logger.Infof("Shutdown complete")
}
