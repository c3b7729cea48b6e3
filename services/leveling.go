package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"game-mission-service/models"

	"github.com/hashicorp/golang-lru/v2/expirable"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var experienceStrategies = []string{StrategyExperienceTotal, StrategyLevelReached}

const levelTableKey = "levels"

// LevelingService turns experience into levels using the threshold table and
// pays each crossed level's coin bonus exactly once.
type LevelingService struct {
	DB       *gorm.DB
	Wallet   *WalletService
	Notifier *NotificationService

	cache *expirable.LRU[string, []models.Level]
}

func NewLevelingService(db *gorm.DB, wallet *WalletService, notifier *NotificationService) *LevelingService {
	return &LevelingService{
		DB:       db,
		Wallet:   wallet,
		Notifier: notifier,
		cache:    expirable.NewLRU[string, []models.Level](1, nil, 5*time.Minute),
	}
}

// LevelStatus is the read model for the profile endpoint.
type LevelStatus struct {
	Experience     int64  `json:"experience"`
	Level          int    `json:"level"`
	NextLevel      *int   `json:"next_level,omitempty"`
	NextThreshold  *int64 `json:"next_threshold,omitempty"`
	ExperienceToGo int64  `json:"experience_to_go"`
}

// Levels returns the threshold table ordered by level. db is the handle to load
// through on a cache miss, so callers inside a transaction pass their tx.
func (s *LevelingService) Levels(db *gorm.DB) ([]models.Level, error) {
	if levels, ok := s.cache.Get(levelTableKey); ok {
		return levels, nil
	}
	var levels []models.Level
	if err := db.Order("level ASC").Find(&levels).Error; err != nil {
		return nil, fmt.Errorf("load level table: %w", err)
	}
	s.cache.Add(levelTableKey, levels)
	return levels, nil
}

// LevelFor returns the highest level whose threshold is at most experience.
// levels must be sorted by level; with an empty table every user is level 1.
func LevelFor(levels []models.Level, experience int64) int {
	level := 1
	for _, l := range levels {
		if l.Experience <= experience && l.Level > level {
			level = l.Level
		}
	}
	return level
}

// AwardExperience adds experience and pays out any levels crossed.
func (s *LevelingService) AwardExperience(ctx context.Context, userID string, amount int64) ([]int, error) {
	var reached []int
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		reached, err = s.AwardExperienceTx(tx, userID, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Committed(ctx, userID, len(reached) > 0)
	return reached, nil
}

// AwardExperienceTx is AwardExperience on a caller-owned transaction. It returns
// the levels newly reached, ascending.
func (s *LevelingService) AwardExperienceTx(tx *gorm.DB, userID string, amount int64) ([]int, error) {
	if amount <= 0 {
		return nil, BadRequestError("experience must be positive")
	}
	res := tx.Model(&models.User{}).
		Where("id = ?", userID).
		Update("experience", gorm.Expr("experience + ?", amount))
	if res.Error != nil {
		return nil, fmt.Errorf("award experience: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, NotFoundError("user not found")
	}

	log.WithFields(log.Fields{
		"user_id": userID,
		"amount":  amount,
	}).Info("🎮 Experience awarded")

	return s.HandleLevelUp(tx, userID)
}

// HandleLevelUp compares the user's recorded level with the level their
// experience reaches. Every level in between gets its coin bonus and a
// notification, lowest first, and the new level is recorded.
func (s *LevelingService) HandleLevelUp(tx *gorm.DB, userID string) ([]int, error) {
	var user models.User
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", userID).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundError("user not found")
		}
		return nil, err
	}

	levels, err := s.Levels(tx)
	if err != nil {
		return nil, err
	}
	target := LevelFor(levels, user.Experience)
	if target <= user.Level {
		return nil, nil
	}

	crossed := make([]models.Level, 0, target-user.Level)
	for _, l := range levels {
		if l.Level > user.Level && l.Level <= target {
			crossed = append(crossed, l)
		}
	}
	sort.Slice(crossed, func(i, j int) bool { return crossed[i].Level < crossed[j].Level })

	reached := make([]int, 0, len(crossed))
	for _, l := range crossed {
		if l.Coins > 0 {
			desc := fmt.Sprintf("You reached level %d and earned %s coins.", l.Level, s.Notifier.Number(l.Coins))
			if _, err := s.Wallet.AddFundsTx(tx, userID, l.Coins, desc); err != nil {
				return nil, fmt.Errorf("level %d bonus: %w", l.Level, err)
			}
		}
		if err := s.Notifier.Notify(tx, userID, s.Notifier.LevelUpMessage(l.Level)); err != nil {
			return nil, err
		}
		reached = append(reached, l.Level)
	}

	if err := tx.Model(&models.User{}).Where("id = ?", userID).Update("level", target).Error; err != nil {
		return nil, fmt.Errorf("record level: %w", err)
	}

	log.WithFields(log.Fields{
		"user_id": userID,
		"from":    user.Level,
		"to":      target,
	}).Info("🆙 Level up")
	return reached, nil
}

// Committed runs post-commit observers after experience changed. paid reports
// whether level bonuses were written to the ledger.
func (s *LevelingService) Committed(ctx context.Context, userID string, paid bool) {
	if s.Wallet == nil || s.Wallet.Refresher == nil {
		return
	}
	keys := experienceStrategies
	if paid {
		keys = append(append([]string{}, keys...), ledgerStrategies...)
	}
	if err := s.Wallet.Refresher.RefreshStrategies(ctx, userID, keys...); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("⚠️ Progress refresh after experience failed")
	}
}

// CurrentLevel reports the user's experience, level and the next threshold.
func (s *LevelingService) CurrentLevel(ctx context.Context, userID string) (*LevelStatus, error) {
	db := s.DB.WithContext(ctx)
	var user models.User
	if err := db.Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundError("user not found")
		}
		return nil, err
	}
	levels, err := s.Levels(db)
	if err != nil {
		return nil, err
	}

	status := &LevelStatus{Experience: user.Experience, Level: user.Level}
	for _, l := range levels {
		if l.Level > user.Level {
			next, threshold := l.Level, l.Experience
			status.NextLevel = &next
			status.NextThreshold = &threshold
			if threshold > user.Experience {
				status.ExperienceToGo = threshold - user.Experience
			}
			break
		}
	}
	return status, nil
}
