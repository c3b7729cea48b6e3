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

// RewardService pays out a completed mission. Each step is guarded by its own
// per-cycle marker on UserMission so a retried step never grants twice.
type RewardService struct {
	DB          *gorm.DB
	Wallet      *WalletService
	Leveling    *LevelingService
	Notifier    *NotificationService
	Rewardables *RewardableRegistry
	Refresher   ProgressRefresher
	Now         func() time.Time
}

func NewRewardService(db *gorm.DB, wallet *WalletService, leveling *LevelingService, notifier *NotificationService, rewardables *RewardableRegistry) *RewardService {
	return &RewardService{
		DB:          db,
		Wallet:      wallet,
		Leveling:    leveling,
		Notifier:    notifier,
		Rewardables: rewardables,
		Now:         time.Now,
	}
}

// AwardRewards runs both reward steps in order. The queue runs them as two
// separate tasks; this is the synchronous form used by tooling and tests.
func (s *RewardService) AwardRewards(ctx context.Context, userID, missionID string, cycle int) error {
	if err := s.AwardCoinsAndExperience(ctx, userID, missionID, cycle); err != nil {
		return err
	}
	return s.HandleMissionCompletion(ctx, userID, missionID, cycle)
}

// AwardCoinsAndExperience credits the mission's coins and experience for cycle.
func (s *RewardService) AwardCoinsAndExperience(ctx context.Context, userID, missionID string, cycle int) error {
	var (
		granted  bool
		paid     bool
		mission  models.Mission
		levelsUp []int
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		um, err := lockUserMission(tx, userID, missionID, cycle)
		if err != nil {
			return err
		}
		if um.CoinsRewardedCycle >= cycle {
			return nil
		}
		if err := tx.Where("id = ?", missionID).First(&mission).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NotFoundError("mission not found")
			}
			return err
		}

		if mission.Coins > 0 {
			desc := fmt.Sprintf("You earned %d for completing the mission %s.", mission.Coins, mission.Title)
			if _, err := s.Wallet.AddFundsTx(tx, userID, mission.Coins, desc); err != nil {
				return err
			}
			paid = true
		}
		if mission.Experience > 0 {
			levelsUp, err = s.Leveling.AwardExperienceTx(tx, userID, mission.Experience)
			if err != nil {
				return err
			}
			msg := s.Notifier.ExperienceMessage(mission.Experience, "completing "+mission.Title)
			if err := s.Notifier.Notify(tx, userID, msg); err != nil {
				return err
			}
		}

		updates := map[string]any{"coins_rewarded_cycle": cycle}
		if um.LinksRewardedCycle >= cycle {
			updates["rewarded_at"] = s.Now().UTC()
		}
		if err := tx.Model(um).Updates(updates).Error; err != nil {
			return err
		}
		granted = true
		return nil
	})
	if err != nil {
		return err
	}
	if !granted {
		log.WithFields(log.Fields{
			"user_id":    userID,
			"mission_id": missionID,
			"cycle":      cycle,
		}).Info("⏭️ Coins and experience already granted")
		return nil
	}

	if paid {
		s.Wallet.Committed(ctx, userID)
	}
	if mission.Experience > 0 {
		s.Leveling.Committed(ctx, userID, len(levelsUp) > 0)
	}
	log.WithFields(log.Fields{
		"user_id":    userID,
		"mission":    mission.Slug,
		"cycle":      cycle,
		"coins":      mission.Coins,
		"experience": mission.Experience,
		"levels":     levelsUp,
	}).Info("🎁 Mission coins and experience granted")
	return nil
}

// HandleMissionCompletion grants every reward link of the mission for cycle.
func (s *RewardService) HandleMissionCompletion(ctx context.Context, userID, missionID string, cycle int) error {
	var granted int
	var done bool
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		um, err := lockUserMission(tx, userID, missionID, cycle)
		if err != nil {
			return err
		}
		if um.LinksRewardedCycle >= cycle {
			return nil
		}

		var links []models.Reward
		if err := tx.Where("sourceable_type = ? AND sourceable_id = ?", models.SourceMission, missionID).
			Order("position ASC").
			Find(&links).Error; err != nil {
			return err
		}
		for _, link := range links {
			granter, err := s.Rewardables.Lookup(link.RewardableType)
			if err != nil {
				return err
			}
			if err := granter.Grant(tx, userID, link.RewardableID); err != nil {
				return fmt.Errorf("grant %s %s: %w", link.RewardableType, link.RewardableID, err)
			}
			granted++
		}

		updates := map[string]any{"links_rewarded_cycle": cycle}
		if um.CoinsRewardedCycle >= cycle {
			updates["rewarded_at"] = s.Now().UTC()
		}
		if err := tx.Model(um).Updates(updates).Error; err != nil {
			return err
		}
		done = true
		return nil
	})
	if err != nil {
		return err
	}
	if !done {
		return nil
	}

	if s.Refresher != nil && granted > 0 {
		if err := s.Refresher.RefreshStrategies(ctx, userID, StrategyTitlesCount); err != nil {
			log.WithError(err).WithField("user_id", userID).Warn("⚠️ Progress refresh after rewards failed")
		}
	}
	log.WithFields(log.Fields{
		"user_id":    userID,
		"mission_id": missionID,
		"cycle":      cycle,
		"links":      granted,
	}).Info("🏁 Mission reward links granted")
	return nil
}

func lockUserMission(tx *gorm.DB, userID, missionID string, cycle int) (*models.UserMission, error) {
	var um models.UserMission
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND mission_id = ?", userID, missionID).
		First(&um).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NotFoundError("mission %s was never completed by user %s", missionID, userID)
	}
	if err != nil {
		return nil, err
	}
	if cycle < 1 || cycle > um.Cycle {
		return nil, BadRequestError("completion cycle %d does not exist (current %d)", cycle, um.Cycle)
	}
	return &um, nil
}
