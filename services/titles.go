package services

import (
	"context"
	"errors"
	"fmt"

	"game-mission-service/models"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RewardGranter grants one kind of rewardable to a user inside tx. Granting
// something the user already owns is a no-op.
type RewardGranter interface {
	Grant(tx *gorm.DB, userID, rewardableID string) error
	// Exists reports whether the rewardable row is present in the catalog.
	Exists(db *gorm.DB, rewardableID string) (bool, error)
}

// RewardableRegistry maps a reward link's type discriminator to its granter.
type RewardableRegistry struct {
	granters map[string]RewardGranter
}

func NewRewardableRegistry() *RewardableRegistry {
	return &RewardableRegistry{granters: make(map[string]RewardGranter)}
}

func (r *RewardableRegistry) Register(kind string, g RewardGranter) {
	if _, exists := r.granters[kind]; exists {
		panic(fmt.Sprintf("rewardable %q registered twice", kind))
	}
	r.granters[kind] = g
}

func (r *RewardableRegistry) Lookup(kind string) (RewardGranter, error) {
	g, ok := r.granters[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRewardable, kind)
	}
	return g, nil
}

type TitleService struct {
	DB       *gorm.DB
	Notifier *NotificationService
}

func NewTitleService(db *gorm.DB, notifier *NotificationService) *TitleService {
	return &TitleService{DB: db, Notifier: notifier}
}

// Grant awards the title once. The notification is only written when the row
// was actually inserted.
func (s *TitleService) Grant(tx *gorm.DB, userID, titleID string) error {
	var title models.Title
	if err := tx.Where("id = ?", titleID).First(&title).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NotFoundError("title %s not found", titleID)
		}
		return err
	}

	ut := models.UserTitle{UserID: userID, TitleID: titleID}
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "title_id"}},
		DoNothing: true,
	}).Create(&ut)
	if res.Error != nil {
		return fmt.Errorf("grant title: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil
	}

	if err := s.Notifier.Notify(tx, userID, s.Notifier.TitleMessage(&title)); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"user_id": userID,
		"title":   title.Slug,
	}).Info("🎖️ Title awarded")
	return nil
}

func (s *TitleService) Exists(db *gorm.DB, titleID string) (bool, error) {
	var count int64
	err := db.Model(&models.Title{}).Where("id = ?", titleID).Count(&count).Error
	return count > 0, err
}

// UserTitles lists the titles a user owns, most recent first.
func (s *TitleService) UserTitles(ctx context.Context, userID string) ([]models.UserTitle, error) {
	var titles []models.UserTitle
	err := s.DB.WithContext(ctx).
		Preload("Title").
		Where("user_id = ?", userID).
		Order("awarded_at DESC").
		Find(&titles).Error
	return titles, err
}
