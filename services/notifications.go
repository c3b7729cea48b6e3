package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"game-mission-service/models"

	"github.com/gosimple/slug"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gorm.io/gorm"
)

// Message is the user-facing content of a notification.
type Message struct {
	Kind       models.NotificationKind
	Icon       string
	Title      string
	ActionPath string
}

type NotificationService struct {
	DB      *gorm.DB
	printer *message.Printer
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{DB: db, printer: message.NewPrinter(language.English)}
}

// Notify persists a notification on the given handle so it commits or rolls back
// with the change it describes.
func (s *NotificationService) Notify(tx *gorm.DB, userID string, msg Message) error {
	n := models.Notification{
		UserID:     userID,
		Kind:       msg.Kind,
		Icon:       msg.Icon,
		Title:      msg.Title,
		ActionPath: msg.ActionPath,
	}
	if err := tx.Create(&n).Error; err != nil {
		return fmt.Errorf("create %s notification: %w", msg.Kind, err)
	}
	return nil
}

// Number formats n with digit grouping ("12,500").
func (s *NotificationService) Number(n int64) string {
	return s.printer.Sprintf("%d", n)
}

func (s *NotificationService) TransactionMessage(t *models.Transaction) Message {
	msg := Message{
		Kind:       models.NotificationTransaction,
		Icon:       "🪙",
		Title:      t.Description,
		ActionPath: "/wallet/transactions",
	}
	if t.Type == models.TransactionSubtraction {
		msg.Icon = "💸"
	}
	if msg.Title == "" {
		msg.Title = s.printer.Sprintf("New transaction of %d coins.", t.Amount)
	}
	return msg
}

func (s *NotificationService) ExperienceMessage(amount int64, reason string) Message {
	title := s.printer.Sprintf("You gained %d experience.", amount)
	if reason != "" {
		title = s.printer.Sprintf("You gained %d experience for %s.", amount, reason)
	}
	return Message{
		Kind:       models.NotificationExperience,
		Icon:       "⭐",
		Title:      title,
		ActionPath: "/profile",
	}
}

func (s *NotificationService) LevelUpMessage(level int) Message {
	return Message{
		Kind:       models.NotificationLevelUp,
		Icon:       "🆙",
		Title:      fmt.Sprintf("Level up! You reached level %d.", level),
		ActionPath: "/profile",
	}
}

func (s *NotificationService) TitleMessage(t *models.Title) Message {
	icon := t.Icon
	if icon == "" {
		icon = "🏷️"
	}
	titleSlug := t.Slug
	if titleSlug == "" {
		titleSlug = slug.Make(t.Name)
	}
	return Message{
		Kind:       models.NotificationTitle,
		Icon:       icon,
		Title:      fmt.Sprintf("You unlocked the title %q!", t.Name),
		ActionPath: "/titles/" + titleSlug,
	}
}

// List returns a page of the user's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, userID string, page, size int, unreadOnly bool) ([]models.Notification, int64, error) {
	page, size = normalizePage(page, size)

	q := s.DB.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("read_at IS NULL")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []models.Notification
	err := q.Order("created_at DESC").
		Limit(size).Offset((page - 1) * size).
		Find(&items).Error
	return items, total, err
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Count(&count).Error
	return count, err
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) (*models.Notification, error) {
	var n models.Notification
	if err := s.DB.WithContext(ctx).Where("id = ? AND user_id = ?", notificationID, userID).First(&n).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundError("notification not found")
		}
		return nil, err
	}
	if n.ReadAt != nil {
		return &n, nil
	}
	now := time.Now().UTC()
	if err := s.DB.WithContext(ctx).Model(&n).Update("read_at", now).Error; err != nil {
		return nil, err
	}
	n.ReadAt = &now
	return &n, nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res := s.DB.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Update("read_at", time.Now().UTC())
	return res.RowsAffected, res.Error
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	return page, size
}
