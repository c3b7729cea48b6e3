package workers

import (
	"context"
	"fmt"
	"time"

	"game-mission-service/services"

	"github.com/go-co-op/gocron/v2"
	log "github.com/sirupsen/logrus"
)

type SchedulerConfig struct {
	ReclaimEvery     time.Duration
	MissionResetCron string
}

// Scheduler owns the periodic maintenance jobs: reclaiming tasks with expired
// locks and reopening repeatable missions.
type Scheduler struct {
	Queue    *Queue
	Missions *services.MissionService
	Config   SchedulerConfig
}

func NewScheduler(queue *Queue, missions *services.MissionService, cfg SchedulerConfig) *Scheduler {
	if cfg.ReclaimEvery <= 0 {
		cfg.ReclaimEvery = time.Minute
	}
	if cfg.MissionResetCron == "" {
		cfg.MissionResetCron = "0 0 * * *"
	}
	return &Scheduler{Queue: queue, Missions: missions, Config: cfg}
}

// Run starts the jobs and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(s.Config.ReclaimEvery),
		gocron.NewTask(func() {
			if _, err := s.Queue.ReclaimStale(ctx); err != nil {
				log.WithError(err).Error("[Scheduler] ❌ Reclaiming stale tasks failed")
			}
		}),
		gocron.WithName("reclaim-stale-tasks"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("schedule reclaim job: %w", err)
	}

	_, err = sched.NewJob(
		gocron.CronJob(s.Config.MissionResetCron, false),
		gocron.NewTask(func() {
			if _, err := s.Missions.ResetRepeatable(ctx); err != nil {
				log.WithError(err).Error("[Scheduler] ❌ Repeatable mission reset failed")
			}
		}),
		gocron.WithName("reset-repeatable-missions"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("schedule mission reset job %q: %w", s.Config.MissionResetCron, err)
	}

	sched.Start()
	log.WithField("reset_cron", s.Config.MissionResetCron).Info("⏱️ Scheduler started")
	<-ctx.Done()
	return sched.Shutdown()
}
