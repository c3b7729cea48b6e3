package services

import (
	"context"
	"errors"
	"strings"

	"game-mission-service/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserService keeps the local user rows the gateway identities map onto.
type UserService struct {
	DB *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{DB: db}
}

// EnsureUser creates the user and an empty wallet on first sight. Existing rows
// are left untouched.
func (s *UserService) EnsureUser(ctx context.Context, userID, username string) error {
	if strings.TrimSpace(username) == "" {
		username = userID
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user := models.User{UUIDModel: models.UUIDModel{ID: userID}, Username: username}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&user).Error; err != nil {
			return err
		}
		wallet := models.Wallet{UserID: userID}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).Create(&wallet).Error
	})
}

func (s *UserService) Get(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).Preload("Wallet").Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NotFoundError("user not found")
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Search matches usernames case-insensitively.
func (s *UserService) Search(ctx context.Context, query string, limit int) ([]models.User, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	db := s.DB.WithContext(ctx).Model(&models.User{}).Limit(limit).Order("username ASC")
	if query != "" {
		db = db.Where("LOWER(username) LIKE ?", "%"+strings.ToLower(strings.TrimSpace(query))+"%")
	}
	var users []models.User
	err := db.Find(&users).Error
	return users, err
}
