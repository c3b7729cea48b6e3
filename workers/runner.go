package workers

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"game-mission-service/models"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// HandlerFunc executes one task. A returned error schedules a retry.
type HandlerFunc func(ctx context.Context, task *models.Task) error

// Runner claims tasks from the queue and dispatches them by kind.
type Runner struct {
	Queue        *Queue
	Workers      int
	PollInterval time.Duration

	handlers map[string]HandlerFunc
}

func NewRunner(queue *Queue, workers int, pollInterval time.Duration) *Runner {
	if workers < 1 {
		workers = 1
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Runner{
		Queue:        queue,
		Workers:      workers,
		PollInterval: pollInterval,
		handlers:     make(map[string]HandlerFunc),
	}
}

func (r *Runner) Handle(kind string, fn HandlerFunc) {
	if _, exists := r.handlers[kind]; exists {
		panic(fmt.Sprintf("task handler %q registered twice", kind))
	}
	r.handlers[kind] = fn
}

// RunOnce claims and executes a single task. It reports whether a task was found.
func (r *Runner) RunOnce(ctx context.Context) (bool, error) {
	task, err := r.Queue.Claim(ctx)
	if err != nil {
		return false, fmt.Errorf("claim task: %w", err)
	}
	if task == nil {
		return false, nil
	}

	if err := r.execute(ctx, task); err != nil {
		return true, r.Queue.Fail(ctx, task, err)
	}
	return true, r.Queue.Complete(ctx, task)
}

// Drain runs tasks until none is ready and returns how many ran.
func (r *Runner) Drain(ctx context.Context) (int, error) {
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, nil
		}
		found, err := r.RunOnce(ctx)
		if err != nil {
			return n, err
		}
		if !found {
			return n, nil
		}
		n++
	}
}

// Start runs Workers polling loops until ctx is cancelled.
func (r *Runner) Start(ctx context.Context) error {
	log.WithFields(log.Fields{
		"workers":  r.Workers,
		"interval": r.PollInterval,
	}).Info("⚙️ Task runner started")

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < r.Workers; i++ {
		worker := i
		g.Go(func() error {
			r.loop(ctx, worker)
			return nil
		})
	}
	err := g.Wait()
	log.Info("Task runner stopped.")
	return err
}

func (r *Runner) loop(ctx context.Context, worker int) {
	ticker := time.NewTicker(r.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.Drain(ctx)
			if err != nil {
				log.WithError(err).WithField("worker", worker).Error("❌ Task drain failed")
				continue
			}
			if n > 0 {
				log.WithFields(log.Fields{"worker": worker, "tasks": n}).Debug("📥 Tasks processed")
			}
		}
	}
}

func (r *Runner) execute(ctx context.Context, task *models.Task) (err error) {
	fn, ok := r.handlers[task.Kind]
	if !ok {
		return fmt.Errorf("no handler for task kind %q", task.Kind)
	}
	defer func() {
		if p := recover(); p != nil {
			log.WithFields(log.Fields{
				"task_id": task.ID,
				"kind":    task.Kind,
				"stack":   string(debug.Stack()),
			}).Error("💥 Task handler panicked")
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return fn(ctx, task)
}
