package services_test

import (
	"testing"
	"time"

	"game-mission-service/models"
	"game-mission-service/services"

	"github.com/stretchr/testify/require"
)

func TestCompleteRejectsInvalidRequests(t *testing.T) {
	env := newTestEnv(t)
	uid := env.user(t, "alice")
	other := env.user(t, "bob")

	_, err := env.Missions.Complete(env.Ctx, uid, "00000000-0000-0000-0000-000000000000")
	require.ErrorIs(t, err, services.ErrNotFound)

	closed := env.mission(t, missionDef{Title: "Closed", Status: models.MissionUnavailable})
	_, err = env.Missions.Complete(env.Ctx, uid, closed.ID)
	require.ErrorIs(t, err, services.ErrBadRequest)
	msg, _ := services.UserMessage(err)
	require.Equal(t, "mission not available", msg)

	targeted := env.mission(t, missionDef{Title: "Only bob", Targets: []string{other}})
	_, err = env.Missions.Complete(env.Ctx, uid, targeted.ID)
	require.ErrorIs(t, err, services.ErrForbidden)

	res, err := env.Missions.Complete(env.Ctx, other, targeted.ID)
	require.NoError(t, err)
	require.True(t, res.NewCompletion)

	require.Len(t, env.Scheduler.Calls(), 1)
}

func TestCompleteRequiresAllRequirements(t *testing.T) {
	env := newTestEnv(t)
	uid := env.user(t, "alice")
	m := env.mission(t, missionDef{
		Title:        "Make 3 transactions",
		Requirements: map[string]int64{services.StrategyTransactionsCount: 3},
	})

	_, err := env.Missions.Complete(env.Ctx, uid, m.ID)
	require.ErrorIs(t, err, services.ErrBadRequest)
	msg, _ := services.UserMessage(err)
	require.Equal(t, "mission not yet complete", msg)
	require.Empty(t, env.Scheduler.Calls())

	// progress was still stored
	var progress models.UserMissionProgress
	require.NoError(t, env.DB.Where("user_id = ?", uid).First(&progress).Error)
	require.Zero(t, progress.Progress)
}

func TestCompleteIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	uid := env.user(t, "alice")
	m := env.mission(t, missionDef{
		Title:        "Earn coins",
		Coins:        10,
		Requirements: map[string]int64{services.StrategyCoinsEarned: 5},
	})
	_, err := env.Wallet.AddFunds(env.Ctx, uid, 5, "seed")
	require.NoError(t, err)

	first, err := env.Missions.Complete(env.Ctx, uid, m.ID)
	require.NoError(t, err)
	require.True(t, first.NewCompletion)
	require.Equal(t, 1, first.UserMission.Cycle)
	require.True(t, first.UserMission.Completed)
	require.NotNil(t, first.UserMission.LastCompletedAt)

	second, err := env.Missions.Complete(env.Ctx, uid, m.ID)
	require.NoError(t, err)
	require.False(t, second.NewCompletion)
	require.Equal(t, 1, second.UserMission.Cycle)

	require.Equal(t, []scheduledReward{{UserID: uid, MissionID: m.ID, Cycle: 1}}, env.Scheduler.Calls())

	var count int64
	require.NoError(t, env.DB.Model(&models.UserMission{}).Where("user_id = ?", uid).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestMissionStateTransitions(t *testing.T) {
	env := newTestEnv(t)
	uid := env.user(t, "alice")
	other := env.user(t, "bob")
	title := env.title(t, "Starter")
	m := env.mission(t, missionDef{Title: "Say hello", Coins: 5, Titles: []*models.Title{title}})
	targeted := env.mission(t, missionDef{Title: "Bob only", Targets: []string{other}})

	state, err := env.Missions.State(env.Ctx, uid, targeted.ID)
	require.NoError(t, err)
	require.Equal(t, services.StateIneligible, state)

	state, err = env.Missions.State(env.Ctx, uid, m.ID)
	require.NoError(t, err)
	require.Equal(t, services.StateIncomplete, state)

	_, err = env.Missions.Complete(env.Ctx, uid, m.ID)
	require.NoError(t, err)
	state, err = env.Missions.State(env.Ctx, uid, m.ID)
	require.NoError(t, err)
	require.Equal(t, services.StatePendingReward, state)

	require.NoError(t, env.Rewards.AwardCoinsAndExperience(env.Ctx, uid, m.ID, 1))
	state, err = env.Missions.State(env.Ctx, uid, m.ID)
	require.NoError(t, err)
	require.Equal(t, services.StatePendingReward, state)

	require.NoError(t, env.Rewards.HandleMissionCompletion(env.Ctx, uid, m.ID, 1))
	state, err = env.Missions.State(env.Ctx, uid, m.ID)
	require.NoError(t, err)
	require.Equal(t, services.StateRewarded, state)

	var um models.UserMission
	require.NoError(t, env.DB.Where("user_id = ? AND mission_id = ?", uid, m.ID).First(&um).Error)
	require.NotNil(t, um.RewardedAt)
}

func TestListForUserShowsVisibleMissionsWithProgress(t *testing.T) {
	env := newTestEnv(t)
	uid := env.user(t, "alice")
	other := env.user(t, "bob")
	env.mission(t, missionDef{
		Title:        "Make 3 transactions",
		Requirements: map[string]int64{services.StrategyTransactionsCount: 3},
	})
	env.mission(t, missionDef{Title: "Closed", Status: models.MissionUnavailable})
	env.mission(t, missionDef{Title: "Bob only", Targets: []string{other}})
	env.mission(t, missionDef{Title: "Alice only", Targets: []string{uid}})

	_, err := env.Wallet.AddFunds(env.Ctx, uid, 3, "one")
	require.NoError(t, err)

	views, err := env.Missions.ListForUser(env.Ctx, uid)
	require.NoError(t, err)

	byTitle := map[string]services.MissionView{}
	for _, v := range views {
		byTitle[v.Title] = v
	}
	require.Len(t, byTitle, 2)
	require.Contains(t, byTitle, "Alice only")

	tx := byTitle["Make 3 transactions"]
	require.Equal(t, "make-3-transactions", tx.Slug)
	require.Equal(t, services.StateIncomplete, tx.State)
	require.Len(t, tx.Requirements, 1)
	require.Equal(t, int64(1), tx.Requirements[0].Progress)
	require.False(t, tx.Requirements[0].Completed)
}

func TestResetRepeatableReopensFinishedCycles(t *testing.T) {
	env := newTestEnv(t)
	uid := env.user(t, "alice")
	daily := env.mission(t, missionDef{Title: "Daily", Coins: 1, Frequency: models.FrequencyDaily})
	weekly := env.mission(t, missionDef{Title: "Weekly", Coins: 1, Frequency: models.FrequencyWeekly})
	once := env.mission(t, missionDef{Title: "Once", Coins: 1})

	// Wednesday 2024-03-06 12:00
	for _, m := range []*models.Mission{daily, weekly, once} {
		_, err := env.Missions.Complete(env.Ctx, uid, m.ID)
		require.NoError(t, err)
		require.NoError(t, env.Rewards.AwardRewards(env.Ctx, uid, m.ID, 1))
	}

	// same day: nothing to reset
	n, err := env.Missions.ResetRepeatable(env.Ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	// Thursday: only the daily mission reopens
	env.Missions.Now = func() time.Time { return time.Date(2024, 3, 7, 0, 5, 0, 0, time.UTC) }
	n, err = env.Missions.ResetRepeatable(env.Ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	res, err := env.Missions.Complete(env.Ctx, uid, daily.ID)
	require.NoError(t, err)
	require.True(t, res.NewCompletion)
	require.Equal(t, 2, res.UserMission.Cycle)

	// next Monday: weekly reopens; daily cycle 2 is not rewarded yet so it stays
	env.Missions.Now = func() time.Time { return time.Date(2024, 3, 11, 0, 5, 0, 0, time.UTC) }
	n, err = env.Missions.ResetRepeatable(env.Ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	state, err := env.Missions.State(env.Ctx, uid, weekly.ID)
	require.NoError(t, err)
	require.Equal(t, services.StateIncomplete, state)
	state, err = env.Missions.State(env.Ctx, uid, once.ID)
	require.NoError(t, err)
	require.Equal(t, services.StateRewarded, state)
	state, err = env.Missions.State(env.Ctx, uid, daily.ID)
	require.NoError(t, err)
	require.Equal(t, services.StatePendingReward, state)
}

func TestPeriodStart(t *testing.T) {
	wed := time.Date(2024, 3, 6, 15, 30, 0, 0, time.UTC)
	require.Equal(t, time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC), services.PeriodStart(models.FrequencyDaily, wed))
	require.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), services.PeriodStart(models.FrequencyWeekly, wed))

	sun := time.Date(2024, 3, 10, 23, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), services.PeriodStart(models.FrequencyWeekly, sun))
}

func TestValidateCatalog(t *testing.T) {
	env := newTestEnv(t)
	title := env.title(t, "Known")
	env.mission(t, missionDef{
		Title:        "Fine",
		Requirements: map[string]int64{services.StrategyTitlesCount: 1},
		Titles:       []*models.Title{title},
	})
	require.NoError(t, env.Missions.ValidateCatalog(env.Ctx))

	env.mission(t, missionDef{
		Title:        "Broken",
		Requirements: map[string]int64{"daily_logins": 3},
	})
	err := env.Missions.ValidateCatalog(env.Ctx)
	require.ErrorIs(t, err, services.ErrUnknownStrategy)

	require.NoError(t, env.DB.Create(&models.Reward{
		SourceableType: models.SourceMission,
		SourceableID:   title.ID,
		RewardableType: "avatar_frame",
		RewardableID:   title.ID,
	}).Error)
	err = env.Missions.ValidateCatalog(env.Ctx)
	require.ErrorIs(t, err, services.ErrUnknownRewardable)
}

func TestValidateCatalogRejectsUnknownFrequency(t *testing.T) {
	env := newTestEnv(t)
	env.mission(t, missionDef{Title: "Monthly", Frequency: models.MissionFrequency("monthly")})

	err := env.Missions.ValidateCatalog(env.Ctx)
	require.Error(t, err)
	require.Contains(t, err.Error(), `unknown frequency "monthly"`)
}
