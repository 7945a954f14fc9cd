package mappers

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/orris-inc/paygate/internal/domain/payment"
	vo "github.com/orris-inc/paygate/internal/domain/payment/valueobjects"
	"github.com/orris-inc/paygate/internal/infrastructure/persistence/models"
)

func TransactionToModel(t *payment.Transaction) (*models.TransactionModel, error) {
	orderIDs, err := marshalJSON(t.OrderIDs())
	if err != nil {
		return nil, fmt.Errorf("failed to encode order ids: %w", err)
	}
	metadata, err := marshalJSON(t.Metadata())
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	raw, err := marshalJSON(t.RawResponse())
	if err != nil {
		return nil, fmt.Errorf("failed to encode raw response: %w", err)
	}

	customer := t.Customer()
	model := &models.TransactionModel{
		ID:            t.ID(),
		TransactionID: t.TransactionID(),
		GatewayCode:   t.GatewayCode(),
		UserID:        t.UserID(),
		OrderIDs:      orderIDs,
		Amount:        t.Amount().Amount(),
		Currency:      t.Amount().Currency(),
		Status:        t.Status().String(),
		FailureReason: t.FailureReason(),
		NeedsReview:   t.NeedsReview(),
		ReviewReason:  t.ReviewReason(),
		CustomerName:  customer.Name,
		CustomerEmail: customer.Email,
		CustomerPhone: customer.Phone,
		Metadata:      metadata,
		RawResponse:   raw,
		SuccessURL:    t.SuccessURL(),
		CancelURL:     t.CancelURL(),
		ExpiresAt:     t.ExpiresAt(),
		CapturedAt:    t.CapturedAt(),
		Version:       t.Version(),
		CreatedAt:     t.CreatedAt(),
		UpdatedAt:     t.UpdatedAt(),
	}
	if t.HasProviderTransactionID() {
		id := t.ProviderTransactionID()
		model.ProviderTransactionID = &id
	}
	if c := t.Conversion(); c != nil {
		currency := c.Amount.Currency()
		model.ConvertedAmount = decimal.NewNullDecimal(c.Amount.Amount())
		model.ConvertedCurrency = &currency
		model.ConversionRate = decimal.NewNullDecimal(c.Rate)
	}
	return model, nil
}

func TransactionToDomain(model *models.TransactionModel) (*payment.Transaction, error) {
	amount, err := vo.NewMoney(model.Amount, model.Currency)
	if err != nil {
		return nil, fmt.Errorf("invalid amount on %s: %w", model.TransactionID, err)
	}

	var conversion *payment.Conversion
	if model.ConvertedAmount.Valid && model.ConvertedCurrency != nil {
		converted, err := vo.NewMoney(model.ConvertedAmount.Decimal, *model.ConvertedCurrency)
		if err != nil {
			return nil, fmt.Errorf("invalid converted amount on %s: %w", model.TransactionID, err)
		}
		conversion = &payment.Conversion{Amount: converted, Rate: model.ConversionRate.Decimal}
	}

	var orderIDs []string
	if err := unmarshalJSON(model.OrderIDs, &orderIDs); err != nil {
		return nil, fmt.Errorf("invalid order ids on %s: %w", model.TransactionID, err)
	}
	var metadata map[string]string
	if err := unmarshalJSON(model.Metadata, &metadata); err != nil {
		return nil, fmt.Errorf("invalid metadata on %s: %w", model.TransactionID, err)
	}
	var raw map[string]any
	if err := unmarshalJSON(model.RawResponse, &raw); err != nil {
		return nil, fmt.Errorf("invalid raw response on %s: %w", model.TransactionID, err)
	}

	var providerID string
	if model.ProviderTransactionID != nil {
		providerID = *model.ProviderTransactionID
	}

	return payment.ReconstructTransaction(payment.ReconstructParams{
		ID:                    model.ID,
		TransactionID:         model.TransactionID,
		GatewayCode:           model.GatewayCode,
		ProviderTransactionID: providerID,
		UserID:                model.UserID,
		OrderIDs:              orderIDs,
		Amount:                amount,
		Conversion:            conversion,
		Status:                vo.TransactionStatus(model.Status),
		FailureReason:         model.FailureReason,
		NeedsReview:           model.NeedsReview,
		ReviewReason:          model.ReviewReason,
		Customer: payment.Customer{
			Name:  model.CustomerName,
			Email: model.CustomerEmail,
			Phone: model.CustomerPhone,
		},
		Metadata:    metadata,
		RawResponse: raw,
		SuccessURL:  model.SuccessURL,
		CancelURL:   model.CancelURL,
		ExpiresAt:   model.ExpiresAt,
		CapturedAt:  model.CapturedAt,
		Version:     model.Version,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	})
}

func TransactionsToDomain(ms []models.TransactionModel) ([]*payment.Transaction, error) {
	out := make([]*payment.Transaction, 0, len(ms))
	for i := range ms {
		t, err := TransactionToDomain(&ms[i])
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func TransactionEventToModel(e *payment.TransactionEvent) (*models.TransactionEventModel, error) {
	evidence, err := marshalJSON(e.Evidence)
	if err != nil {
		return nil, fmt.Errorf("failed to encode evidence: %w", err)
	}
	return &models.TransactionEventModel{
		ID:            e.ID,
		TransactionID: e.TransactionID,
		Kind:          string(e.Kind),
		FromStatus:    string(e.FromStatus),
		ToStatus:      string(e.ToStatus),
		Source:        e.Source,
		Evidence:      evidence,
		CreatedAt:     e.CreatedAt,
	}, nil
}

func TransactionEventToDomain(m *models.TransactionEventModel) (*payment.TransactionEvent, error) {
	var evidence map[string]any
	if err := unmarshalJSON(m.Evidence, &evidence); err != nil {
		return nil, fmt.Errorf("invalid evidence on event %d: %w", m.ID, err)
	}
	return &payment.TransactionEvent{
		ID:            m.ID,
		TransactionID: m.TransactionID,
		Kind:          payment.EventKind(m.Kind),
		FromStatus:    vo.TransactionStatus(m.FromStatus),
		ToStatus:      vo.TransactionStatus(m.ToStatus),
		Source:        m.Source,
		Evidence:      evidence,
		CreatedAt:     m.CreatedAt,
	}, nil
}

func CallbackEventToModel(e *payment.CallbackEvent) *models.CallbackEventModel {
	return &models.CallbackEventModel{
		ID:            e.ID,
		GatewayCode:   e.GatewayCode,
		Method:        e.Method,
		Payload:       e.Payload,
		Signature:     e.Signature,
		TransactionID: e.TransactionID,
		Outcome:       string(e.Outcome),
		Detail:        e.Detail,
		ReceivedAt:    e.ReceivedAt,
	}
}

func CallbackEventToDomain(m *models.CallbackEventModel) *payment.CallbackEvent {
	return &payment.CallbackEvent{
		ID:            m.ID,
		GatewayCode:   m.GatewayCode,
		Method:        m.Method,
		Payload:       m.Payload,
		Signature:     m.Signature,
		TransactionID: m.TransactionID,
		Outcome:       payment.CallbackOutcome(m.Outcome),
		Detail:        m.Detail,
		ReceivedAt:    m.ReceivedAt,
	}
}

func marshalJSON(v any) (datatypes.JSON, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(data) == "null" {
		return nil, nil
	}
	return datatypes.JSON(data), nil
}

func unmarshalJSON(data datatypes.JSON, out any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, out)
}
