package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/orris-inc/paygate/internal/domain/payment"
	vo "github.com/orris-inc/paygate/internal/domain/payment/valueobjects"
	"github.com/orris-inc/paygate/internal/infrastructure/persistence/mappers"
	"github.com/orris-inc/paygate/internal/infrastructure/persistence/models"
	"github.com/orris-inc/paygate/internal/shared/db"
	"github.com/orris-inc/paygate/internal/shared/utils"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

var _ payment.TransactionRepository = (*TransactionRepository)(nil)

func (r *TransactionRepository) Create(ctx context.Context, t *payment.Transaction) error {
	model, err := mappers.TransactionToModel(t)
	if err != nil {
		return err
	}

	if err := db.GetTxFromContext(ctx, r.db).Create(model).Error; err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	t.SetID(model.ID)
	return nil
}

func (r *TransactionRepository) GetByTransactionID(ctx context.Context, transactionID string) (*payment.Transaction, error) {
	var model models.TransactionModel

	if err := db.GetTxFromContext(ctx, r.db).
		Where("transaction_id = ?", transactionID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, payment.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	return mappers.TransactionToDomain(&model)
}

func (r *TransactionRepository) GetByProviderTransactionID(ctx context.Context, gatewayCode, providerTransactionID string) (*payment.Transaction, error) {
	var model models.TransactionModel

	if err := db.GetTxFromContext(ctx, r.db).
		Where("gateway_code = ? AND provider_transaction_id = ?", gatewayCode, providerTransactionID).
		Order("id DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, payment.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction by provider id: %w", err)
	}

	return mappers.TransactionToDomain(&model)
}

// CompareAndUpdate writes the mutable columns only when the row still holds
// expectedStatus and expectedVersion.
func (r *TransactionRepository) CompareAndUpdate(ctx context.Context, t *payment.Transaction, expectedStatus vo.TransactionStatus, expectedVersion int) (bool, error) {
	model, err := mappers.TransactionToModel(t)
	if err != nil {
		return false, err
	}

	result := db.GetTxFromContext(ctx, r.db).
		Model(&models.TransactionModel{}).
		Where("transaction_id = ? AND status = ? AND version = ?", model.TransactionID, expectedStatus.String(), expectedVersion).
		Updates(map[string]interface{}{
			"status":                  model.Status,
			"provider_transaction_id": model.ProviderTransactionID,
			"raw_response":            model.RawResponse,
			"failure_reason":          model.FailureReason,
			"needs_review":            model.NeedsReview,
			"review_reason":           model.ReviewReason,
			"expires_at":              model.ExpiresAt,
			"captured_at":             model.CapturedAt,
			"version":                 model.Version,
			"updated_at":              model.UpdatedAt,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to update transaction: %w", result.Error)
	}

	return result.RowsAffected == 1, nil
}

// MarkNeedsReview flags the row without touching status or version, so it
// never races a concurrent transition.
func (r *TransactionRepository) MarkNeedsReview(ctx context.Context, transactionID, reason string) error {
	result := db.GetTxFromContext(ctx, r.db).
		Model(&models.TransactionModel{}).
		Where("transaction_id = ?", transactionID).
		Updates(map[string]interface{}{
			"needs_review":  true,
			"review_reason": utils.CutUTF8(reason, 500),
			"updated_at":    time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to flag transaction for review: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return payment.ErrTransactionNotFound
	}
	return nil
}

func (r *TransactionRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*payment.Transaction, error) {
	var ms []models.TransactionModel

	notified := r.db.Model(&models.RecoveryNotificationModel{}).
		Select("1").
		Where("payment_recovery_notifications.transaction_id = payment_transactions.transaction_id")

	if err := db.GetTxFromContext(ctx, r.db).
		Scopes(db.StatusIn(vo.StatusPending.String()), db.CreatedBefore(cutoff)).
		Where("NOT EXISTS (?)", notified).
		Order("created_at ASC").
		Limit(limit).
		Find(&ms).Error; err != nil {
		return nil, fmt.Errorf("failed to list stale pending transactions: %w", err)
	}

	return mappers.TransactionsToDomain(ms)
}

func (r *TransactionRepository) ListExpirable(ctx context.Context, now time.Time, limit int) ([]*payment.Transaction, error) {
	var ms []models.TransactionModel

	if err := db.GetTxFromContext(ctx, r.db).
		Scopes(db.StatusIn(vo.StatusPending.String(), vo.StatusProcessing.String())).
		Where("expires_at IS NOT NULL AND expires_at < ?", now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&ms).Error; err != nil {
		return nil, fmt.Errorf("failed to list expirable transactions: %w", err)
	}

	return mappers.TransactionsToDomain(ms)
}

func (r *TransactionRepository) ListNeedsReview(ctx context.Context, page, pageSize int) ([]*payment.Transaction, int64, error) {
	var (
		ms    []models.TransactionModel
		total int64
	)

	query := db.GetTxFromContext(ctx, r.db).
		Model(&models.TransactionModel{}).
		Where("needs_review = ?", true)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions for review: %w", err)
	}
	if err := query.
		Order("updated_at DESC").
		Scopes(db.Paginate(page, pageSize)).
		Find(&ms).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions for review: %w", err)
	}

	txns, err := mappers.TransactionsToDomain(ms)
	if err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

