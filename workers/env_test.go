package workers_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"game-mission-service/database"
	"game-mission-service/models"
	"game-mission-service/services"
	"game-mission-service/workers"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordedAlert struct {
	TaskID string
	Err    error
}

type alertRecorder struct {
	mu     sync.Mutex
	alerts []recordedAlert
}

func (a *alertRecorder) TaskDead(task *models.Task, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, recordedAlert{TaskID: task.ID, Err: err})
}

func (a *alertRecorder) All() []recordedAlert {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]recordedAlert(nil), a.alerts...)
}

type testEnv struct {
	Ctx      context.Context
	DB       *gorm.DB
	Clock    *clock
	Alerts   *alertRecorder
	Queue    *workers.Queue
	Runner   *workers.Runner
	Wallet   *services.WalletService
	Rewards  *services.RewardService
	Missions *services.MissionService
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	db, err := database.Open("sqlite", filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	clk := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	alerts := &alertRecorder{}
	queue := workers.NewQueue(db, workers.QueueOptions{
		MaxAttempts:       3,
		BaseBackoff:       10 * time.Second,
		VisibilityTimeout: time.Minute,
	})
	queue.Now = clk.Now
	queue.Alerts = alerts
	runner := workers.NewRunner(queue, 2, 10*time.Millisecond)

	notifier := services.NewNotificationService(db)
	wallet := services.NewWalletService(db, notifier)
	leveling := services.NewLevelingService(db, wallet, notifier)
	calculator := services.NewProgressCalculator(db, services.DefaultStrategies())
	tracker := services.NewProgressTracker(db, calculator)
	wallet.Refresher = tracker

	rewardables := services.NewRewardableRegistry()
	rewardables.Register(models.RewardableTitle, services.NewTitleService(db, notifier))
	rewards := services.NewRewardService(db, wallet, leveling, notifier, rewardables)
	rewards.Refresher = tracker

	rewardTasks := workers.NewRewardTasks(queue, rewards)
	rewardTasks.Register(runner)
	missions := services.NewMissionService(db, calculator, tracker, rewardTasks, rewardables)

	require.NoError(t, db.Create(&[]models.Level{
		{Level: 1, Experience: 0, Coins: 0},
		{Level: 2, Experience: 100, Coins: 50},
	}).Error)

	return testEnv{
		Ctx:      context.Background(),
		DB:       db,
		Clock:    clk,
		Alerts:   alerts,
		Queue:    queue,
		Runner:   runner,
		Wallet:   wallet,
		Rewards:  rewards,
		Missions: missions,
	}
}

func (e testEnv) task(t *testing.T, id string) models.Task {
	t.Helper()
	var task models.Task
	require.NoError(t, e.DB.First(&task, "id = ?", id).Error)
	return task
}
