package services

import (
	"fmt"
	"sort"

	"game-mission-service/models"

	"gorm.io/gorm"
)

// Built-in strategy keys.
const (
	StrategyTransactionsCount = "transactions_count"
	StrategyFriendsCount      = "friends_count"
	StrategyTitlesCount       = "titles_count"
	StrategyMissionsCompleted = "missions_completed"
	StrategyExperienceTotal   = "experience_total"
	StrategyLevelReached      = "level_reached"
	StrategyCoinsEarned       = "coins_earned"
)

// ProgressStrategy counts how far a user is along one kind of requirement.
// Implementations must be read-only.
type ProgressStrategy interface {
	Count(db *gorm.DB, userID string) (int64, error)
}

// StrategyFunc adapts a plain function to ProgressStrategy.
type StrategyFunc func(db *gorm.DB, userID string) (int64, error)

func (f StrategyFunc) Count(db *gorm.DB, userID string) (int64, error) {
	return f(db, userID)
}

type StrategyRegistry struct {
	strategies map[string]ProgressStrategy
}

func NewStrategyRegistry() *StrategyRegistry {
	return &StrategyRegistry{strategies: make(map[string]ProgressStrategy)}
}

// DefaultStrategies returns a registry holding every built-in strategy.
func DefaultStrategies() *StrategyRegistry {
	r := NewStrategyRegistry()
	r.Register(StrategyTransactionsCount, StrategyFunc(countTransactions))
	r.Register(StrategyFriendsCount, StrategyFunc(countFriends))
	r.Register(StrategyTitlesCount, StrategyFunc(countTitles))
	r.Register(StrategyMissionsCompleted, StrategyFunc(countCompletedMissions))
	r.Register(StrategyExperienceTotal, StrategyFunc(totalExperience))
	r.Register(StrategyLevelReached, StrategyFunc(levelReached))
	r.Register(StrategyCoinsEarned, StrategyFunc(coinsEarned))
	return r
}

// Register adds a strategy under key. Registering a key twice is a programming
// error and panics.
func (r *StrategyRegistry) Register(key string, s ProgressStrategy) {
	if _, exists := r.strategies[key]; exists {
		panic(fmt.Sprintf("progress strategy %q registered twice", key))
	}
	r.strategies[key] = s
}

func (r *StrategyRegistry) Lookup(key string) (ProgressStrategy, error) {
	s, ok := r.strategies[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, key)
	}
	return s, nil
}

func (r *StrategyRegistry) Keys() []string {
	keys := make([]string, 0, len(r.strategies))
	for k := range r.strategies {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func countTransactions(db *gorm.DB, userID string) (int64, error) {
	var n int64
	err := db.Model(&models.Transaction{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}

// Accepted friendships count whichever side sent the request.
func countFriends(db *gorm.DB, userID string) (int64, error) {
	var n int64
	err := db.Model(&models.Friendship{}).
		Where("status = ?", models.FriendshipAccepted).
		Where("requester_id = ? OR addressee_id = ?", userID, userID).
		Count(&n).Error
	return n, err
}

func countTitles(db *gorm.DB, userID string) (int64, error) {
	var n int64
	err := db.Model(&models.UserTitle{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}

// A repeatable mission counts once no matter how many cycles it ran.
func countCompletedMissions(db *gorm.DB, userID string) (int64, error) {
	var n int64
	err := db.Model(&models.UserMission{}).Where("user_id = ? AND cycle > 0", userID).Count(&n).Error
	return n, err
}

func totalExperience(db *gorm.DB, userID string) (int64, error) {
	var user models.User
	if err := db.Select("experience").Where("id = ?", userID).Take(&user).Error; err != nil {
		return 0, err
	}
	return user.Experience, nil
}

func levelReached(db *gorm.DB, userID string) (int64, error) {
	var user models.User
	if err := db.Select("level").Where("id = ?", userID).Take(&user).Error; err != nil {
		return 0, err
	}
	return int64(user.Level), nil
}

func coinsEarned(db *gorm.DB, userID string) (int64, error) {
	var sum int64
	err := db.Model(&models.Transaction{}).
		Where("user_id = ? AND type = ?", userID, models.TransactionAddition).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	return sum, err
}
