package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"game-mission-service/models"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MissionState string

const (
	StateIneligible    MissionState = "ineligible"
	StateIncomplete    MissionState = "incomplete"
	StatePendingReward MissionState = "pending_reward"
	StateRewarded      MissionState = "rewarded"
)

// RewardScheduler defers the reward steps of a completion. It must write on tx
// so the work is queued if and only if the completion commits.
type RewardScheduler interface {
	ScheduleRewards(tx *gorm.DB, userID, missionID string, cycle int) error
}

type CompletionResult struct {
	UserMission   *models.UserMission
	NewCompletion bool
}

// RequirementProgress is a requirement with the user's stored progress on it.
type RequirementProgress struct {
	models.MissionRequirement
	Progress  int64 `json:"progress"`
	Completed bool  `json:"completed"`
}

type MissionView struct {
	ID           string                  `json:"id"`
	Title        string                  `json:"title"`
	Slug         string                  `json:"slug"`
	Description  string                  `json:"description"`
	Coins        int64                   `json:"coins"`
	Experience   int64                   `json:"experience"`
	Frequency    models.MissionFrequency `json:"frequency"`
	State        MissionState            `json:"state"`
	Requirements []RequirementProgress   `json:"requirements"`
}

// MissionService decides and records mission completion. Rewards are handed to
// the RewardScheduler and granted later.
type MissionService struct {
	DB          *gorm.DB
	Calculator  *ProgressCalculator
	Tracker     *ProgressTracker
	Scheduler   RewardScheduler
	Rewardables *RewardableRegistry
	Now         func() time.Time
}

func NewMissionService(db *gorm.DB, calculator *ProgressCalculator, tracker *ProgressTracker, scheduler RewardScheduler, rewardables *RewardableRegistry) *MissionService {
	return &MissionService{
		DB:          db,
		Calculator:  calculator,
		Tracker:     tracker,
		Scheduler:   scheduler,
		Rewardables: rewardables,
		Now:         time.Now,
	}
}

// Complete marks the mission completed for the user if every requirement is met
// and queues its rewards. Completing an already completed mission succeeds
// without queueing anything.
func (s *MissionService) Complete(ctx context.Context, userID, missionID string) (*CompletionResult, error) {
	mission, err := s.loadMission(ctx, missionID)
	if err != nil {
		return nil, err
	}
	if !mission.Available() {
		return nil, BadRequestError("mission not available")
	}
	targeted, err := s.isTargeted(s.DB.WithContext(ctx), mission, userID)
	if err != nil {
		return nil, err
	}
	if !targeted {
		return nil, ForbiddenError("mission is not available to this user")
	}

	for i := range mission.Requirements {
		if _, err := s.Tracker.UpdateProgress(ctx, userID, &mission.Requirements[i]); err != nil {
			return nil, err
		}
	}
	complete, err := s.Calculator.IsMissionComplete(ctx, userID, mission)
	if err != nil {
		return nil, err
	}
	if !complete {
		return nil, BadRequestError("mission not yet complete")
	}

	result := &CompletionResult{}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seed := models.UserMission{UserID: userID, MissionID: missionID}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "mission_id"}},
			DoNothing: true,
		}).Create(&seed).Error; err != nil {
			return fmt.Errorf("create user mission: %w", err)
		}

		var um models.UserMission
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND mission_id = ?", userID, missionID).
			First(&um).Error; err != nil {
			return err
		}
		result.UserMission = &um
		if um.Completed {
			return nil
		}

		now := s.Now().UTC()
		um.Completed = true
		um.LastCompletedAt = &now
		um.Cycle++
		if err := tx.Model(&um).Updates(map[string]any{
			"completed":         true,
			"last_completed_at": now,
			"cycle":             um.Cycle,
		}).Error; err != nil {
			return fmt.Errorf("complete user mission: %w", err)
		}
		if err := s.Scheduler.ScheduleRewards(tx, userID, missionID, um.Cycle); err != nil {
			return fmt.Errorf("schedule rewards: %w", err)
		}
		result.NewCompletion = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	fields := log.Fields{
		"user_id": userID,
		"mission": mission.Slug,
		"cycle":   result.UserMission.Cycle,
	}
	if !result.NewCompletion {
		log.WithFields(fields).Info("↩️ Mission already completed")
		return result, nil
	}
	log.WithFields(fields).Info("✅ Mission completed, rewards queued")

	if err := s.Tracker.RefreshStrategies(ctx, userID, StrategyMissionsCompleted); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("⚠️ Progress refresh after completion failed")
	}
	return result, nil
}

// State reports where the user stands on a mission.
func (s *MissionService) State(ctx context.Context, userID, missionID string) (MissionState, error) {
	mission, err := s.loadMission(ctx, missionID)
	if err != nil {
		return "", err
	}
	db := s.DB.WithContext(ctx)
	targeted, err := s.isTargeted(db, mission, userID)
	if err != nil {
		return "", err
	}
	if !mission.Available() || !targeted {
		return StateIneligible, nil
	}

	var um models.UserMission
	err = db.Where("user_id = ? AND mission_id = ?", userID, missionID).First(&um).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return StateIncomplete, nil
	}
	if err != nil {
		return "", err
	}
	return stateOf(&um), nil
}

func stateOf(um *models.UserMission) MissionState {
	switch {
	case um == nil || !um.Completed:
		return StateIncomplete
	case um.Rewarded():
		return StateRewarded
	default:
		return StatePendingReward
	}
}

// ListForUser returns the available missions the user may complete with their
// stored progress.
func (s *MissionService) ListForUser(ctx context.Context, userID string) ([]MissionView, error) {
	db := s.DB.WithContext(ctx)

	targets := db.Table("mission_user_targets").Select("mission_id").Where("user_id = ?", userID)
	var missions []models.Mission
	if err := db.
		Preload("Requirements", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("status = ?", models.MissionAvailable).
		Where("for_all = ? OR id IN (?)", true, targets).
		Order("created_at ASC").
		Find(&missions).Error; err != nil {
		return nil, err
	}

	var reqIDs, missionIDs []string
	for _, m := range missions {
		missionIDs = append(missionIDs, m.ID)
		for _, r := range m.Requirements {
			reqIDs = append(reqIDs, r.ID)
		}
	}
	progress, err := s.Tracker.ProgressFor(ctx, userID, reqIDs)
	if err != nil {
		return nil, err
	}

	userMissions := make(map[string]*models.UserMission, len(missions))
	if len(missionIDs) > 0 {
		var rows []models.UserMission
		if err := db.Where("user_id = ? AND mission_id IN ?", userID, missionIDs).Find(&rows).Error; err != nil {
			return nil, err
		}
		for i := range rows {
			userMissions[rows[i].MissionID] = &rows[i]
		}
	}

	views := make([]MissionView, 0, len(missions))
	for _, m := range missions {
		view := MissionView{
			ID:           m.ID,
			Title:        m.Title,
			Slug:         m.Slug,
			Description:  m.Description,
			Coins:        m.Coins,
			Experience:   m.Experience,
			Frequency:    m.Frequency,
			State:        stateOf(userMissions[m.ID]),
			Requirements: make([]RequirementProgress, 0, len(m.Requirements)),
		}
		for _, r := range m.Requirements {
			p := progress[r.ID]
			view.Requirements = append(view.Requirements, RequirementProgress{
				MissionRequirement: r,
				Progress:           p.Progress,
				Completed:          p.Completed,
			})
		}
		views = append(views, view)
	}
	return views, nil
}

// ResetRepeatable reopens daily and weekly missions whose last completion lies
// before the current period and whose rewards were fully granted. Returns the
// number of reopened rows.
func (s *MissionService) ResetRepeatable(ctx context.Context) (int64, error) {
	now := s.Now().UTC()
	db := s.DB.WithContext(ctx)

	var total int64
	for freq, start := range map[models.MissionFrequency]time.Time{
		models.FrequencyDaily:  PeriodStart(models.FrequencyDaily, now),
		models.FrequencyWeekly: PeriodStart(models.FrequencyWeekly, now),
	} {
		ids := db.Model(&models.Mission{}).Select("id").Where("frequency = ?", freq)
		res := db.Model(&models.UserMission{}).
			Where("completed = ?", true).
			Where("mission_id IN (?)", ids).
			Where("last_completed_at < ?", start).
			Where("coins_rewarded_cycle >= cycle AND links_rewarded_cycle >= cycle").
			Update("completed", false)
		if res.Error != nil {
			return total, fmt.Errorf("reset %s missions: %w", freq, res.Error)
		}
		total += res.RowsAffected
	}

	if total > 0 {
		log.WithField("reopened", total).Info("🔁 Repeatable missions reset")
	}
	return total, nil
}

// PeriodStart is the beginning of the period containing t: midnight UTC for
// daily missions, Monday midnight UTC for weekly ones.
func PeriodStart(freq models.MissionFrequency, t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	if freq == models.FrequencyWeekly {
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	}
	return day
}

// ValidateCatalog checks that every mission has a known frequency and status,
// every requirement uses a registered strategy and every reward link points at
// a known, existing rewardable.
func (s *MissionService) ValidateCatalog(ctx context.Context) error {
	db := s.DB.WithContext(ctx)
	var errs []error

	var missions []models.Mission
	if err := db.Select("id", "slug", "frequency", "status").Find(&missions).Error; err != nil {
		return err
	}
	for _, m := range missions {
		if !m.Frequency.Valid() {
			errs = append(errs, fmt.Errorf("mission %s has unknown frequency %q", m.Slug, m.Frequency))
		}
		if !m.Status.Valid() {
			errs = append(errs, fmt.Errorf("mission %s has unknown status %q", m.Slug, m.Status))
		}
	}

	var keys []string
	if err := db.Model(&models.MissionRequirement{}).Distinct().Pluck("strategy_key", &keys).Error; err != nil {
		return err
	}
	for _, key := range keys {
		if _, err := s.Calculator.Strategies.Lookup(key); err != nil {
			errs = append(errs, err)
		}
	}

	var links []models.Reward
	if err := db.Find(&links).Error; err != nil {
		return err
	}
	for _, link := range links {
		granter, err := s.Rewardables.Lookup(link.RewardableType)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ok, err := granter.Exists(db, link.RewardableID)
		if err != nil {
			return err
		}
		if !ok {
			errs = append(errs, fmt.Errorf("reward %s points at missing %s %s", link.ID, link.RewardableType, link.RewardableID))
		}
	}
	return errors.Join(errs...)
}

func (s *MissionService) loadMission(ctx context.Context, missionID string) (*models.Mission, error) {
	var mission models.Mission
	err := s.DB.WithContext(ctx).
		Preload("Requirements", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Rewards", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("id = ?", missionID).
		First(&mission).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NotFoundError("mission not found")
	}
	if err != nil {
		return nil, err
	}
	return &mission, nil
}

func (s *MissionService) isTargeted(db *gorm.DB, mission *models.Mission, userID string) (bool, error) {
	if mission.ForAll {
		return true, nil
	}
	var count int64
	err := db.Table("mission_user_targets").
		Where("mission_id = ? AND user_id = ?", mission.ID, userID).
		Count(&count).Error
	return count > 0, err
}
