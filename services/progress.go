package services

import (
	"context"
	"errors"
	"fmt"

	"game-mission-service/models"

	"gorm.io/gorm"
)

// ProgressCalculator evaluates requirements without writing anything.
type ProgressCalculator struct {
	DB         *gorm.DB
	Strategies *StrategyRegistry
}

func NewProgressCalculator(db *gorm.DB, strategies *StrategyRegistry) *ProgressCalculator {
	return &ProgressCalculator{DB: db, Strategies: strategies}
}

func (c *ProgressCalculator) DetermineProgress(ctx context.Context, userID string, req *models.MissionRequirement) (int64, error) {
	strategy, err := c.Strategies.Lookup(req.StrategyKey)
	if err != nil {
		return 0, err
	}
	n, err := strategy.Count(c.DB.WithContext(ctx), userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, NotFoundError("user not found")
	}
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", req.StrategyKey, err)
	}
	return n, nil
}

func (c *ProgressCalculator) IsRequirementComplete(ctx context.Context, userID string, req *models.MissionRequirement) (bool, error) {
	n, err := c.DetermineProgress(ctx, userID, req)
	if err != nil {
		return false, err
	}
	return n >= req.Goal, nil
}

// IsMissionComplete is true when every requirement is met. A mission without
// requirements is complete.
func (c *ProgressCalculator) IsMissionComplete(ctx context.Context, userID string, mission *models.Mission) (bool, error) {
	for i := range mission.Requirements {
		ok, err := c.IsRequirementComplete(ctx, userID, &mission.Requirements[i])
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
