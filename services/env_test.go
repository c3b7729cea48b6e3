package services_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"game-mission-service/database"
	"game-mission-service/models"
	"game-mission-service/services"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type scheduledReward struct {
	UserID    string
	MissionID string
	Cycle     int
}

// recordingScheduler stands in for the task queue: it remembers what would
// have been queued so tests can run the reward steps themselves.
type recordingScheduler struct {
	mu    sync.Mutex
	calls []scheduledReward
}

func (r *recordingScheduler) ScheduleRewards(tx *gorm.DB, userID, missionID string, cycle int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, scheduledReward{UserID: userID, MissionID: missionID, Cycle: cycle})
	return nil
}

func (r *recordingScheduler) Calls() []scheduledReward {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]scheduledReward(nil), r.calls...)
}

type testEnv struct {
	Ctx         context.Context
	DB          *gorm.DB
	Notifier    *services.NotificationService
	Wallet      *services.WalletService
	Leveling    *services.LevelingService
	Calculator  *services.ProgressCalculator
	Tracker     *services.ProgressTracker
	Titles      *services.TitleService
	Rewardables *services.RewardableRegistry
	Rewards     *services.RewardService
	Missions    *services.MissionService
	Users       *services.UserService
	Scheduler   *recordingScheduler
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	db, err := database.Open("sqlite", filepath.Join(t.TempDir(), "missions.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

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

	scheduler := &recordingScheduler{}
	missions := services.NewMissionService(db, calculator, tracker, scheduler, rewardables)
	missions.Now = func() time.Time { return time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC) }

	for _, l := range []models.Level{
		{Level: 1, Experience: 0, Coins: 0},
		{Level: 2, Experience: 100, Coins: 50},
		{Level: 3, Experience: 250, Coins: 100},
	} {
		l := l
		require.NoError(t, db.Create(&l).Error)
	}

	return testEnv{
		Ctx:         context.Background(),
		DB:          db,
		Notifier:    notifier,
		Wallet:      wallet,
		Leveling:    leveling,
		Calculator:  calculator,
		Tracker:     tracker,
		Titles:      titles,
		Rewardables: rewardables,
		Rewards:     rewards,
		Missions:    missions,
		Users:       services.NewUserService(db),
		Scheduler:   scheduler,
	}
}

func (e testEnv) user(t *testing.T, name string) string {
	t.Helper()
	u := models.User{Username: name}
	require.NoError(t, e.DB.Create(&u).Error)
	return u.ID
}

type missionDef struct {
	Title        string
	Coins        int64
	Experience   int64
	Frequency    models.MissionFrequency
	Status       models.MissionStatus
	Targets      []string
	Requirements map[string]int64
	Titles       []*models.Title
}

func (e testEnv) mission(t *testing.T, def missionDef) *models.Mission {
	t.Helper()
	m := models.Mission{
		Title:      def.Title,
		Coins:      def.Coins,
		Experience: def.Experience,
		Frequency:  models.FrequencyOnce,
		ForAll:     len(def.Targets) == 0,
		Status:     models.MissionAvailable,
	}
	if def.Frequency != "" {
		m.Frequency = def.Frequency
	}
	if def.Status != "" {
		m.Status = def.Status
	}
	pos := 0
	for key, goal := range def.Requirements {
		m.Requirements = append(m.Requirements, models.MissionRequirement{
			StrategyKey: key,
			Goal:        goal,
			Position:    pos,
		})
		pos++
	}
	require.NoError(t, e.DB.Create(&m).Error)

	for i, title := range def.Titles {
		require.NoError(t, e.DB.Create(&models.Reward{
			SourceableType: models.SourceMission,
			SourceableID:   m.ID,
			RewardableType: models.RewardableTitle,
			RewardableID:   title.ID,
			Position:       i,
		}).Error)
	}
	if len(def.Targets) > 0 {
		var users []models.User
		require.NoError(t, e.DB.Where("id IN ?", def.Targets).Find(&users).Error)
		require.NoError(t, e.DB.Model(&m).Association("TargetUsers").Append(users))
	}
	return &m
}

func (e testEnv) title(t *testing.T, name string) *models.Title {
	t.Helper()
	title := models.Title{Name: name, Icon: "🏅"}
	require.NoError(t, e.DB.Create(&title).Error)
	return &title
}

func (e testEnv) notifications(t *testing.T, userID string) []models.Notification {
	t.Helper()
	var out []models.Notification
	require.NoError(t, e.DB.Where("user_id = ?", userID).Order("created_at ASC").Find(&out).Error)
	return out
}

func (e testEnv) balance(t *testing.T, userID string) int64 {
	t.Helper()
	b, err := e.Wallet.Balance(e.Ctx, userID)
	require.NoError(t, err)
	return b
}

func kinds(ns []models.Notification) []models.NotificationKind {
	out := make([]models.NotificationKind, 0, len(ns))
	for _, n := range ns {
		out = append(out, n.Kind)
	}
	return out
}
