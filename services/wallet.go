package services

import (
	"context"
	"errors"
	"fmt"

	"game-mission-service/models"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Strategy keys whose counts change whenever a ledger row is written.
var ledgerStrategies = []string{StrategyTransactionsCount, StrategyCoinsEarned}

// ProgressRefresher recomputes stored progress for the given strategy keys.
type ProgressRefresher interface {
	RefreshStrategies(ctx context.Context, userID string, keys ...string) error
}

// WalletService is the coin ledger. Every balance change writes exactly one
// Transaction row in the same database transaction.
type WalletService struct {
	DB        *gorm.DB
	Notifier  *NotificationService
	Refresher ProgressRefresher
}

func NewWalletService(db *gorm.DB, notifier *NotificationService) *WalletService {
	return &WalletService{DB: db, Notifier: notifier}
}

// EnsureWallet creates the user's wallet if it does not exist yet.
func (s *WalletService) EnsureWallet(tx *gorm.DB, userID string) error {
	wallet := models.Wallet{UserID: userID}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&wallet).Error
}

// AddFunds credits the wallet and records an addition.
func (s *WalletService) AddFunds(ctx context.Context, userID string, amount int64, description string) (*models.Transaction, error) {
	var t *models.Transaction
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		t, err = s.AddFundsTx(tx, userID, amount, description)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Committed(ctx, userID)
	return t, nil
}

// DeductFunds debits the wallet and records a subtraction. The balance never
// goes below zero; a short wallet is left untouched.
func (s *WalletService) DeductFunds(ctx context.Context, userID string, amount int64, description string) (*models.Transaction, error) {
	var t *models.Transaction
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		t, err = s.DeductFundsTx(tx, userID, amount, description)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Committed(ctx, userID)
	return t, nil
}

// AddFundsTx is AddFunds on a caller-owned transaction. The caller must call
// Committed after its transaction commits.
func (s *WalletService) AddFundsTx(tx *gorm.DB, userID string, amount int64, description string) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, BadRequestError("amount must be positive")
	}
	if err := s.requireUser(tx, userID); err != nil {
		return nil, err
	}
	if err := s.EnsureWallet(tx, userID); err != nil {
		return nil, fmt.Errorf("ensure wallet: %w", err)
	}

	res := tx.Model(&models.Wallet{}).
		Where("user_id = ?", userID).
		Update("balance", gorm.Expr("balance + ?", amount))
	if res.Error != nil {
		return nil, fmt.Errorf("credit wallet: %w", res.Error)
	}

	return s.record(tx, userID, amount, models.TransactionAddition, description)
}

// DeductFundsTx is DeductFunds on a caller-owned transaction.
func (s *WalletService) DeductFundsTx(tx *gorm.DB, userID string, amount int64, description string) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, BadRequestError("amount must be positive")
	}
	if err := s.requireUser(tx, userID); err != nil {
		return nil, err
	}
	if err := s.EnsureWallet(tx, userID); err != nil {
		return nil, fmt.Errorf("ensure wallet: %w", err)
	}

	// Conditional update: concurrent debits cannot both pass the balance check.
	res := tx.Model(&models.Wallet{}).
		Where("user_id = ? AND balance >= ?", userID, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if res.Error != nil {
		return nil, fmt.Errorf("debit wallet: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var wallet models.Wallet
		if err := tx.Where("user_id = ?", userID).First(&wallet).Error; err != nil {
			return nil, err
		}
		return nil, InsufficientFundsError(wallet.Balance, amount)
	}

	return s.record(tx, userID, -amount, models.TransactionSubtraction, description)
}

func (s *WalletService) record(tx *gorm.DB, userID string, signed int64, kind models.TransactionType, description string) (*models.Transaction, error) {
	t := models.Transaction{
		UserID:      userID,
		Amount:      signed,
		Type:        kind,
		Description: description,
	}
	if err := tx.Create(&t).Error; err != nil {
		return nil, fmt.Errorf("record transaction: %w", err)
	}
	if s.Notifier != nil {
		if err := s.Notifier.Notify(tx, userID, s.Notifier.TransactionMessage(&t)); err != nil {
			return nil, err
		}
	}

	log.WithFields(log.Fields{
		"user_id": userID,
		"amount":  signed,
		"type":    kind,
	}).Info("💰 Ledger transaction recorded")
	return &t, nil
}

func (s *WalletService) requireUser(tx *gorm.DB, userID string) error {
	var count int64
	if err := tx.Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return NotFoundError("user not found")
	}
	return nil
}

// Committed runs the post-commit observers for a ledger write. Failures are
// logged only; stored progress is recomputed again on the next trigger.
func (s *WalletService) Committed(ctx context.Context, userID string) {
	if s.Refresher == nil {
		return
	}
	if err := s.Refresher.RefreshStrategies(ctx, userID, ledgerStrategies...); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("⚠️ Progress refresh after transaction failed")
	}
}

// Balance returns the current balance, zero for users without a wallet yet.
func (s *WalletService) Balance(ctx context.Context, userID string) (int64, error) {
	var wallet models.Wallet
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return wallet.Balance, nil
}

// Transactions returns a page of the user's ledger, newest first.
func (s *WalletService) Transactions(ctx context.Context, userID string, page, size int) ([]models.Transaction, int64, error) {
	page, size = normalizePage(page, size)

	q := s.DB.WithContext(ctx).Model(&models.Transaction{}).Where("user_id = ?", userID)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []models.Transaction
	err := q.Order("created_at DESC").Order("id").
		Limit(size).Offset((page - 1) * size).
		Find(&items).Error
	return items, total, err
}

// LedgerSum is the sum of the user's signed transaction amounts. It always
// equals the wallet balance.
func (s *WalletService) LedgerSum(ctx context.Context, userID string) (int64, error) {
	var sum int64
	err := s.DB.WithContext(ctx).Model(&models.Transaction{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	return sum, err
}
