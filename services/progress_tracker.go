package services

import (
	"context"
	"fmt"

	"game-mission-service/models"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProgressTracker stores the latest computed progress per (user, requirement).
type ProgressTracker struct {
	DB         *gorm.DB
	Calculator *ProgressCalculator
}

func NewProgressTracker(db *gorm.DB, calculator *ProgressCalculator) *ProgressTracker {
	return &ProgressTracker{DB: db, Calculator: calculator}
}

// UpdateProgress recomputes the requirement and overwrites the stored row.
// Running it twice without underlying changes stores the same values.
func (t *ProgressTracker) UpdateProgress(ctx context.Context, userID string, req *models.MissionRequirement) (*models.UserMissionProgress, error) {
	n, err := t.Calculator.DetermineProgress(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	row := models.UserMissionProgress{
		UserID:        userID,
		RequirementID: req.ID,
		Progress:      n,
		Completed:     n >= req.Goal,
	}
	err = t.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "requirement_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"progress", "completed", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return nil, fmt.Errorf("store progress: %w", err)
	}
	return &row, nil
}

// RefreshStrategies updates every stored requirement that uses one of keys.
// It never completes missions; completion is always requested explicitly.
func (t *ProgressTracker) RefreshStrategies(ctx context.Context, userID string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	var reqs []models.MissionRequirement
	if err := t.DB.WithContext(ctx).
		Joins("JOIN missions ON missions.id = mission_requirements.mission_id").
		Where("mission_requirements.strategy_key IN ?", keys).
		Where("missions.status = ?", models.MissionAvailable).
		Find(&reqs).Error; err != nil {
		return err
	}
	for i := range reqs {
		if _, err := t.UpdateProgress(ctx, userID, &reqs[i]); err != nil {
			return err
		}
	}
	log.WithFields(log.Fields{
		"user_id":      userID,
		"keys":         keys,
		"requirements": len(reqs),
	}).Debug("🔄 Progress refreshed")
	return nil
}

// ProgressFor returns the stored progress rows of a user keyed by requirement id.
func (t *ProgressTracker) ProgressFor(ctx context.Context, userID string, requirementIDs []string) (map[string]models.UserMissionProgress, error) {
	out := make(map[string]models.UserMissionProgress, len(requirementIDs))
	if len(requirementIDs) == 0 {
		return out, nil
	}
	var rows []models.UserMissionProgress
	if err := t.DB.WithContext(ctx).
		Where("user_id = ? AND requirement_id IN ?", userID, requirementIDs).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.RequirementID] = r
	}
	return out, nil
}
