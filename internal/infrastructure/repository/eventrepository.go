package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/orris-inc/paygate/internal/domain/payment"
	"github.com/orris-inc/paygate/internal/infrastructure/persistence/mappers"
	"github.com/orris-inc/paygate/internal/infrastructure/persistence/models"
	"github.com/orris-inc/paygate/internal/shared/db"
	apperrors "github.com/orris-inc/paygate/internal/shared/errors"
)

type TransactionEventRepository struct {
	db *gorm.DB
}

func NewTransactionEventRepository(db *gorm.DB) *TransactionEventRepository {
	return &TransactionEventRepository{db: db}
}

func (r *TransactionEventRepository) Append(ctx context.Context, e *payment.TransactionEvent) error {
	model, err := mappers.TransactionEventToModel(e)
	if err != nil {
		return err
	}
	if err := db.GetTxFromContext(ctx, r.db).Create(model).Error; err != nil {
		return fmt.Errorf("failed to append transaction event: %w", err)
	}
	e.ID = model.ID
	return nil
}

func (r *TransactionEventRepository) ListByTransactionID(ctx context.Context, transactionID string) ([]*payment.TransactionEvent, error) {
	var ms []models.TransactionEventModel
	if err := db.GetTxFromContext(ctx, r.db).
		Where("transaction_id = ?", transactionID).
		Order("id ASC").
		Find(&ms).Error; err != nil {
		return nil, fmt.Errorf("failed to list transaction events: %w", err)
	}

	events := make([]*payment.TransactionEvent, 0, len(ms))
	for i := range ms {
		e, err := mappers.TransactionEventToDomain(&ms[i])
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

type CallbackEventRepository struct {
	db *gorm.DB
}

func NewCallbackEventRepository(db *gorm.DB) *CallbackEventRepository {
	return &CallbackEventRepository{db: db}
}

func (r *CallbackEventRepository) Save(ctx context.Context, e *payment.CallbackEvent) error {
	if err := db.GetTxFromContext(ctx, r.db).Create(mappers.CallbackEventToModel(e)).Error; err != nil {
		return fmt.Errorf("failed to save callback event: %w", err)
	}
	return nil
}

func (r *CallbackEventRepository) ListByTransactionID(ctx context.Context, transactionID string) ([]*payment.CallbackEvent, error) {
	var ms []models.CallbackEventModel
	if err := db.GetTxFromContext(ctx, r.db).
		Where("transaction_id = ?", transactionID).
		Order("received_at ASC").
		Find(&ms).Error; err != nil {
		return nil, fmt.Errorf("failed to list callback events: %w", err)
	}

	events := make([]*payment.CallbackEvent, 0, len(ms))
	for i := range ms {
		events = append(events, mappers.CallbackEventToDomain(&ms[i]))
	}
	return events, nil
}

type RecoveryNotificationRepository struct {
	db *gorm.DB
}

func NewRecoveryNotificationRepository(db *gorm.DB) *RecoveryNotificationRepository {
	return &RecoveryNotificationRepository{db: db}
}

func (r *RecoveryNotificationRepository) Record(ctx context.Context, n *payment.RecoveryNotification) error {
	model := &models.RecoveryNotificationModel{
		TransactionID: n.TransactionID,
		Recipient:     n.Recipient,
		Template:      n.Template,
		SentAt:        n.SentAt,
	}
	if err := db.GetTxFromContext(ctx, r.db).Create(model).Error; err != nil {
		if apperrors.IsDuplicateError(err) || errors.Is(err, gorm.ErrDuplicatedKey) {
			return payment.ErrAlreadyNotified
		}
		return fmt.Errorf("failed to record recovery notification: %w", err)
	}
	n.ID = model.ID
	return nil
}

func (r *RecoveryNotificationRepository) Exists(ctx context.Context, transactionID string) (bool, error) {
	var count int64
	if err := db.GetTxFromContext(ctx, r.db).
		Model(&models.RecoveryNotificationModel{}).
		Where("transaction_id = ?", transactionID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check recovery notification: %w", err)
	}
	return count > 0, nil
}

var (
	_ payment.TransactionEventRepository     = (*TransactionEventRepository)(nil)
	_ payment.CallbackEventRepository        = (*CallbackEventRepository)(nil)
	_ payment.RecoveryNotificationRepository = (*RecoveryNotificationRepository)(nil)
)
