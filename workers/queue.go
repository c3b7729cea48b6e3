// Package workers runs deferred work: a database-backed task queue with chains
// and retries, its runner, and the periodic jobs.
package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"game-mission-service/models"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Job describes one task to enqueue.
type Job struct {
	Kind    string
	Payload any
}

// AlertSink receives tasks that exhausted their attempts.
type AlertSink interface {
	TaskDead(task *models.Task, err error)
}

// LogAlerts reports dead tasks at error level.
type LogAlerts struct{}

func (LogAlerts) TaskDead(task *models.Task, err error) {
	log.WithFields(log.Fields{
		"task_id":  task.ID,
		"kind":     task.Kind,
		"attempts": task.Attempts,
		"chain_id": task.ChainID,
	}).WithError(err).Error("🚨 Task exhausted its retries")
}

type QueueOptions struct {
	MaxAttempts       int
	BaseBackoff       time.Duration
	MaxBackoff        time.Duration
	VisibilityTimeout time.Duration
}

// Queue stores tasks in the tasks table. Delivery is at least once: a claimed
// task whose worker dies becomes claimable again after the visibility timeout.
type Queue struct {
	DB     *gorm.DB
	Opts   QueueOptions
	Alerts AlertSink
	Now    func() time.Time
}

func NewQueue(db *gorm.DB, opts QueueOptions) *Queue {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 8
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 5 * time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = time.Hour
	}
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = 2 * time.Minute
	}
	return &Queue{DB: db, Opts: opts, Alerts: LogAlerts{}, Now: time.Now}
}

func (q *Queue) now() time.Time {
	return q.Now().UTC()
}

// Enqueue adds a single task on tx.
func (q *Queue) Enqueue(tx *gorm.DB, job Job) (*models.Task, error) {
	tasks, err := q.Chain(tx, job)
	if err != nil {
		return nil, err
	}
	return &tasks[0], nil
}

// Chain adds tasks that run strictly in order: each one becomes claimable only
// after the previous one is done. Writing on the caller's tx makes the chain
// exist exactly when the caller's change commits.
func (q *Queue) Chain(tx *gorm.DB, jobs ...Job) ([]models.Task, error) {
	if len(jobs) == 0 {
		return nil, errors.New("empty chain")
	}
	chainID := uuid.NewString()
	now := q.now()

	tasks := make([]models.Task, 0, len(jobs))
	for i, job := range jobs {
		payload, err := json.Marshal(job.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", job.Kind, err)
		}
		status := models.TaskBlocked
		if i == 0 {
			status = models.TaskPending
		}
		tasks = append(tasks, models.Task{
			Kind:          job.Kind,
			Payload:       datatypes.JSON(payload),
			Status:        status,
			MaxAttempts:   q.Opts.MaxAttempts,
			AvailableAt:   now,
			ChainID:       chainID,
			ChainPosition: i,
		})
	}
	if err := tx.Create(&tasks).Error; err != nil {
		return nil, fmt.Errorf("enqueue chain: %w", err)
	}
	return tasks, nil
}

// Claim takes the next ready task, or returns nil when there is none.
func (q *Queue) Claim(ctx context.Context) (*models.Task, error) {
	db := q.DB.WithContext(ctx)
	for attempt := 0; attempt < 3; attempt++ {
		now := q.now()
		var task models.Task
		err := db.Where("status = ? AND available_at <= ?", models.TaskPending, now).
			Order("available_at ASC").Order("chain_position ASC").
			First(&task).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		lockedUntil := now.Add(q.Opts.VisibilityTimeout)
		// Only one worker can flip the row out of pending.
		res := db.Model(&models.Task{}).
			Where("id = ? AND status = ?", task.ID, models.TaskPending).
			Updates(map[string]any{
				"status":       models.TaskRunning,
				"locked_until": lockedUntil,
				"attempts":     gorm.Expr("attempts + 1"),
			})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			continue
		}
		task.Status = models.TaskRunning
		task.LockedUntil = &lockedUntil
		task.Attempts++
		return &task, nil
	}
	return nil, nil
}

// Complete marks the task done and releases the next task of its chain.
func (q *Queue) Complete(ctx context.Context, task *models.Task) error {
	return q.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Task{}).
			Where("id = ? AND status = ?", task.ID, models.TaskRunning).
			Updates(map[string]any{
				"status":       models.TaskDone,
				"locked_until": nil,
				"last_error":   "",
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Reclaimed after a timeout; the other run owns the chain now.
			log.WithField("task_id", task.ID).Warn("⚠️ Completed task was no longer running")
			return nil
		}
		task.Status = models.TaskDone

		return tx.Model(&models.Task{}).
			Where("chain_id = ? AND chain_position = ? AND status = ?", task.ChainID, task.ChainPosition+1, models.TaskBlocked).
			Updates(map[string]any{
				"status":       models.TaskPending,
				"available_at": q.now(),
			}).Error
	})
}

// Fail schedules a retry with exponential backoff, or marks the task dead once
// its attempts are used up.
func (q *Queue) Fail(ctx context.Context, task *models.Task, cause error) error {
	updates := map[string]any{
		"locked_until": nil,
		"last_error":   cause.Error(),
	}
	dead := task.Attempts >= task.MaxAttempts
	if dead {
		updates["status"] = models.TaskDead
	} else {
		updates["status"] = models.TaskPending
		updates["available_at"] = q.now().Add(q.Backoff(task.Attempts))
	}

	res := q.DB.WithContext(ctx).Model(&models.Task{}).
		Where("id = ? AND status = ?", task.ID, models.TaskRunning).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil
	}

	task.LastError = cause.Error()
	if dead {
		task.Status = models.TaskDead
		if q.Alerts != nil {
			q.Alerts.TaskDead(task, cause)
		}
		return nil
	}
	task.Status = models.TaskPending
	log.WithFields(log.Fields{
		"task_id":  task.ID,
		"kind":     task.Kind,
		"attempts": task.Attempts,
	}).WithError(cause).Warn("🔁 Task failed, retry scheduled")
	return nil
}

// Backoff is the delay before retry number attempts+1.
func (q *Queue) Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if attempts > 32 {
		return q.Opts.MaxBackoff
	}
	d := time.Duration(float64(q.Opts.BaseBackoff) * math.Pow(2, float64(attempts-1)))
	if d <= 0 || d > q.Opts.MaxBackoff {
		return q.Opts.MaxBackoff
	}
	return d
}

// ReclaimStale returns running tasks whose lock expired to the pending state,
// or to dead when they have no attempts left.
func (q *Queue) ReclaimStale(ctx context.Context) (int64, error) {
	now := q.now()
	db := q.DB.WithContext(ctx)

	var stale []models.Task
	if err := db.Where("status = ? AND locked_until < ?", models.TaskRunning, now).Find(&stale).Error; err != nil {
		return 0, err
	}

	var reclaimed int64
	for i := range stale {
		task := &stale[i]
		if task.Attempts >= task.MaxAttempts {
			if err := q.Fail(ctx, task, errors.New("visibility timeout expired")); err != nil {
				return reclaimed, err
			}
			continue
		}
		res := db.Model(&models.Task{}).
			Where("id = ? AND status = ?", task.ID, models.TaskRunning).
			Updates(map[string]any{
				"status":       models.TaskPending,
				"locked_until": nil,
				"available_at": now,
			})
		if res.Error != nil {
			return reclaimed, res.Error
		}
		reclaimed += res.RowsAffected
	}
	if reclaimed > 0 {
		log.WithField("tasks", reclaimed).Warn("⏰ Reclaimed tasks with expired locks")
	}
	return reclaimed, nil
}

// Stats counts tasks per status.
func (q *Queue) Stats(ctx context.Context) (map[models.TaskStatus]int64, error) {
	var rows []struct {
		Status models.TaskStatus
		Count  int64
	}
	if err := q.DB.WithContext(ctx).Model(&models.Task{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[models.TaskStatus]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}
