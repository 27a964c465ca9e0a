package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rental-service/config"
	"rental-service/internal/broker"
	"rental-service/internal/redisclient"
	"rental-service/internal/scheduler"
	"rental-service/internal/service"
	"rental-service/internal/store"
	"rental-service/internal/util"

	"go.uber.org/zap"
)

func main() {
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting lifecycle sweeper", zap.Bool("once", *once))

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicRental)
	defer producer.Close()

	eventPublisher := broker.NewEventPublisher(producer)
	registryClient := service.NewRegistryClient(db, redisClient, cfg.Business.RegistryCacheTTL)
	settlementLedger := service.NewSettlementLedger()
	rentalService := service.NewRentalService(db, registryClient, settlementLedger, eventPublisher)
	sweeper := service.NewSweeper(db, redisClient, rentalService, eventPublisher, cfg.Business.SweepLockTTL)

	if *once {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		summary, err := sweeper.Sweep(ctx)
		if err != nil {
			log.Fatalf("Sweep failed: %v", err)
		}
		logger.Info("Sweep finished",
			zap.Int("orders_activated", summary.OrdersActivated),
			zap.Int("vehicles_rented", summary.VehiclesRented),
			zap.Int("orders_completed", summary.OrdersCompleted),
			zap.Int("vehicles_released", summary.VehiclesReleased),
			zap.Int("errors", summary.Errors))
		return
	}

	sweepScheduler, err := scheduler.NewScheduler(sweeper, cfg.Business.SweepSchedule)
	if err != nil {
		log.Fatalf("Invalid sweep schedule %q: %v", cfg.Business.SweepSchedule, err)
	}
	sweepScheduler.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down sweeper...")
	sweepScheduler.Stop()
	log.Println("Sweeper exited")
}
