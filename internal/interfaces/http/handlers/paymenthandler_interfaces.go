package handlers

import (
	"context"

	"github.com/orris-inc/paygate/internal/application/payment/ledger"
	"github.com/orris-inc/paygate/internal/application/payment/usecases"
	"github.com/orris-inc/paygate/internal/domain/payment"
)

// Use case interfaces for PaymentHandler

type createPaymentUseCase interface {
	Execute(ctx context.Context, cmd usecases.CreatePaymentCommand) (*usecases.CreatePaymentResult, error)
}

type getPaymentUseCase interface {
	Execute(ctx context.Context, q usecases.GetPaymentQuery) (*payment.Transaction, error)
}

type capturePaymentUseCase interface {
	Execute(ctx context.Context, cmd usecases.CapturePaymentCommand) (*ledger.TransitionResult, error)
}

// Use case interfaces for CallbackHandler

type handleCallbackUseCase interface {
	Execute(ctx context.Context, cmd usecases.HandleCallbackCommand) (*usecases.HandleCallbackResult, error)
}
