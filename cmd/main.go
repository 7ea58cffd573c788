package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"taxicoin/chain/ethereum"
	"taxicoin/config"
	"taxicoin/messaging/whisper"
	"taxicoin/pkg/bot"
	"taxicoin/pkg/events"
	"taxicoin/pkg/logger"
	"taxicoin/service"
	"taxicoin/storage/sqlite"
)

func main() {
	// 1. Load Config
	cfg := config.Load()

	// 2. Initialize Logger
	log := logger.New(cfg.ServiceName)

	// 3. Initialize Local Store (SQLite)
	store, err := sqlite.New(context.Background(), cfg, log)
	if err != nil {
		log.Error("Failed to open local store", logger.Error(err))
		os.Exit(1)
	}
	defer store.Close()

	// 4. Initialize Contract Gateway
	gateway, err := ethereum.New(cfg, log)
	if err != nil {
		log.Error("Failed to connect to the Ethereum node", logger.Error(err))
		os.Exit(1)
	}
	defer gateway.Close()

	// 5. Initialize Event Bus and Messaging Channel
	bus := events.New(log)
	channel, err := whisper.New(cfg, bus, store.Identity(), log)
	if err != nil {
		log.Error("Failed to connect to the Whisper node", logger.Error(err))
		os.Exit(1)
	}
	if err := channel.EnsureReady(context.Background()); err != nil {
		log.Error("Failed to set up the messaging identity", logger.Error(err))
		os.Exit(1)
	}
	defer channel.Stop()

	// 6. Initialize Services
	svc := service.New(gateway, channel, bus, store, log)
	defer svc.Journey().Stop()

	log.Info("🚀 Taxicoin client is initializing...")

	// 7. Initialize the Driver Bot front end (optional)
	if cfg.DriverBotToken != "" {
		driverBot, err := bot.New(cfg, svc, store, bus, log)
		if err != nil {
			log.Error("Failed to initialize the driver bot", logger.Error(err))
			os.Exit(1)
		}
		defer driverBot.Stop()

		go driverBot.Start()
	} else {
		log.Info("DRIVER_BOT_TOKEN is empty, running without the Telegram front end")
	}

	log.Info("🚀 Taxicoin client is now running.")

	// 8. Graceful Shutdown listener
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	log.Info("Shutting down...")
}
