package workers

import (
	"context"
	"encoding/json"
	"fmt"

	"game-mission-service/models"
	"game-mission-service/services"

	"gorm.io/gorm"
)

const (
	KindAwardCoinsExperience = "mission.award_coins_experience"
	KindAwardRewardLinks     = "mission.award_reward_links"
)

// RewardPayload identifies one completion cycle of a mission.
type RewardPayload struct {
	UserID    string `json:"user_id"`
	MissionID string `json:"mission_id"`
	Cycle     int    `json:"cycle"`
}

// RewardTasks queues mission rewards as a two step chain and executes the steps.
type RewardTasks struct {
	Queue   *Queue
	Rewards *services.RewardService
}

func NewRewardTasks(queue *Queue, rewards *services.RewardService) *RewardTasks {
	return &RewardTasks{Queue: queue, Rewards: rewards}
}

// ScheduleRewards implements services.RewardScheduler.
func (t *RewardTasks) ScheduleRewards(tx *gorm.DB, userID, missionID string, cycle int) error {
	payload := RewardPayload{UserID: userID, MissionID: missionID, Cycle: cycle}
	_, err := t.Queue.Chain(tx,
		Job{Kind: KindAwardCoinsExperience, Payload: payload},
		Job{Kind: KindAwardRewardLinks, Payload: payload},
	)
	return err
}

func (t *RewardTasks) Register(r *Runner) {
	r.Handle(KindAwardCoinsExperience, func(ctx context.Context, task *models.Task) error {
		p, err := decodeRewardPayload(task)
		if err != nil {
			return err
		}
		return t.Rewards.AwardCoinsAndExperience(ctx, p.UserID, p.MissionID, p.Cycle)
	})
	r.Handle(KindAwardRewardLinks, func(ctx context.Context, task *models.Task) error {
		p, err := decodeRewardPayload(task)
		if err != nil {
			return err
		}
		return t.Rewards.HandleMissionCompletion(ctx, p.UserID, p.MissionID, p.Cycle)
	})
}

func decodeRewardPayload(task *models.Task) (RewardPayload, error) {
	var p RewardPayload
	if err := json.Unmarshal(task.Payload, &p); err != nil {
		return p, fmt.Errorf("decode %s payload: %w", task.Kind, err)
	}
	return p, nil
}
