package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/susu3304/minishop/internal/api"
	"github.com/susu3304/minishop/internal/bot"
	"github.com/susu3304/minishop/internal/config"
	"github.com/susu3304/minishop/internal/db"
	"github.com/susu3304/minishop/internal/intake"
	"github.com/susu3304/minishop/internal/logging"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Connect to database
	database, err := db.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	// Run migrations
	if err := database.RunMigrations(context.Background()); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	// Initialize Telegram bot
	shopBot, err := bot.New(cfg.BotToken, cfg.AdminChatID, cfg.WebAppURL, logger.Named("bot"))
	if err != nil {
		logger.Fatal("failed to create telegram bot", zap.Error(err))
	}

	var notifier intake.Notifier
	if cfg.AdminChatID != 0 {
		notifier = shopBot.Notifier()
	} else {
		logger.Warn("ADMIN_CHAT_ID is not set, orders are stored without notification")
	}
	orders := intake.New(database, notifier, logger.Named("intake"))
	shopBot.SetAcceptor(orders)
	shopBot.SetOrderLog(database)

	redeliverer := intake.NewRedeliverer(orders, time.Minute)
	redeliverer.Start()
	defer redeliverer.Stop()

	// Initialize API server
	apiServer := api.New(cfg, orders, logger.Named("api"))

	// Start Telegram bot
	if err := shopBot.Start(); err != nil {
		logger.Fatal("failed to start telegram bot", zap.Error(err))
	}
	defer shopBot.Stop()

	// Start API server
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("API server error", zap.Error(err))
		}
	}()

	// Wait for signal to stop
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		logger.Error("API server shutdown", zap.Error(err))
	}
}
