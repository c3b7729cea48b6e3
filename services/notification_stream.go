package services

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"game-mission-service/models"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// StreamInterval is how often the SSE stream polls for new notifications.
var StreamInterval = 2 * time.Second

// StreamOverlap is how far back every poll reaches. created_at is stamped at
// insert, not at commit, so a row can become visible after newer ones; it is
// still delivered as long as its transaction commits within this window.
var StreamOverlap = time.Minute

// NotificationFeed yields each of a user's notifications once, in the order
// they become visible.
type NotificationFeed struct {
	DB      *gorm.DB
	UserID  string
	Overlap time.Duration
	Now     func() time.Time

	sent map[string]time.Time
}

// NewFeed opens a feed that skips everything already visible.
func (s *NotificationService) NewFeed(ctx context.Context, userID string) (*NotificationFeed, error) {
	f := &NotificationFeed{
		DB:      s.DB,
		UserID:  userID,
		Overlap: StreamOverlap,
		Now:     time.Now,
		sent:    make(map[string]time.Time),
	}
	if _, err := f.Poll(ctx); err != nil {
		return nil, err
	}
	return f, nil
}

// Poll returns the notifications that became visible since the previous call.
func (f *NotificationFeed) Poll(ctx context.Context) ([]models.Notification, error) {
	if f.sent == nil {
		f.sent = make(map[string]time.Time)
	}
	since := f.Now().UTC().Add(-f.Overlap)

	var rows []models.Notification
	err := f.DB.WithContext(ctx).
		Where("user_id = ? AND created_at >= ?", f.UserID, since).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	for id, at := range f.sent {
		if at.Before(since) {
			delete(f.sent, id)
		}
	}
	fresh := rows[:0]
	for _, n := range rows {
		if _, ok := f.sent[n.ID]; ok {
			continue
		}
		f.sent[n.ID] = n.CreatedAt
		fresh = append(fresh, n)
	}
	return fresh, nil
}

// StreamUserNotificationsSSE streams notifications that become visible after
// the connection opened for the authenticated user.
func (s *NotificationService) StreamUserNotificationsSSE(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	feed, err := s.NewFeed(c.UserContext(), userID)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("⚠️ SSE init failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	done := c.Context().Done()

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(StreamInterval)
		defer ticker.Stop()

		// comment event keeps proxies from timing out before the first tick
		w.WriteString(":\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		for {
			select {
			case <-ticker.C:
				fresh, err := feed.Poll(context.Background())
				if err != nil {
					log.WithError(err).WithField("user_id", userID).Warn("⚠️ SSE query failed")
					continue
				}
				if len(fresh) == 0 {
					w.WriteString(":\n\n")
				}
				for _, n := range fresh {
					payload, _ := json.Marshal(n)
					fmt.Fprintf(w, "event: notification\ndata: %s\n\n", payload)
				}
				if err := w.Flush(); err != nil {
					// client went away
					return
				}

			case <-done:
				return
			}
		}
	})

	return nil
}
