package main

import (
	"context"
	"fmt"

	"game-mission-service/config"
	"game-mission-service/database"
	"game-mission-service/handlers"
	"game-mission-service/models"
	"game-mission-service/services"
	"game-mission-service/workers"

	"gorm.io/gorm"
)

// application is the fully wired service graph.
type application struct {
	Config    *config.Config
	DB        *gorm.DB
	Services  handlers.Services
	Rewards   *services.RewardService
	Queue     *workers.Queue
	Runner    *workers.Runner
	Scheduler *workers.Scheduler
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.Open(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func buildApplication(cfg *config.Config, db *gorm.DB) *application {
	notifier := services.NewNotificationService(db)
	wallet := services.NewWalletService(db, notifier)
	leveling := services.NewLevelingService(db, wallet, notifier)

	calculator := services.NewProgressCalculator(db, services.DefaultStrategies())
	tracker := services.NewProgressTracker(db, calculator)
	wallet.Refresher = tracker

	titles := services.NewTitleService(db, notifier)
	rewardables := services.NewRewardableRegistry()
	rewardables.Register(models.RewardableTitle, titles)

	rewards := services.NewRewardService(db, wallet, leveling, notifier, rewardables)
	rewards.Refresher = tracker

	queue := workers.NewQueue(db, workers.QueueOptions{
		MaxAttempts:       cfg.QueueMaxAttempts,
		BaseBackoff:       cfg.QueueBaseBackoff,
		VisibilityTimeout: cfg.QueueVisibilityTimeout,
	})
	rewardTasks := workers.NewRewardTasks(queue, rewards)
	runner := workers.NewRunner(queue, cfg.QueueWorkers, cfg.QueuePollInterval)
	rewardTasks.Register(runner)

	missions := services.NewMissionService(db, calculator, tracker, rewardTasks, rewardables)
	scheduler := workers.NewScheduler(queue, missions, workers.SchedulerConfig{
		ReclaimEvery:     cfg.QueueVisibilityTimeout / 2,
		MissionResetCron: cfg.MissionResetCron,
	})

	return &application{
		Config: cfg,
		DB:     db,
		Services: handlers.Services{
			Users:         services.NewUserService(db),
			Wallet:        wallet,
			Leveling:      leveling,
			Titles:        titles,
			Missions:      missions,
			Notifications: notifier,
		},
		Rewards:   rewards,
		Queue:     queue,
		Runner:    runner,
		Scheduler: scheduler,
	}
}

// validate fails fast on catalog rows the engine could not evaluate.
func (a *application) validate(ctx context.Context) error {
	if err := a.Services.Missions.ValidateCatalog(ctx); err != nil {
		return fmt.Errorf("invalid mission catalog: %w", err)
	}
	return nil
}
