package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orris-inc/paygate/internal/application/payment/usecases"
	"github.com/orris-inc/paygate/internal/domain/payment"
	"github.com/orris-inc/paygate/internal/interfaces/dto"
	"github.com/orris-inc/paygate/internal/interfaces/http/middleware"
	apperrors "github.com/orris-inc/paygate/internal/shared/errors"
	"github.com/orris-inc/paygate/internal/shared/logger"
	"github.com/orris-inc/paygate/internal/shared/utils"
)

const paymentNotStarted = "payment could not be started"

type PaymentHandler struct {
	createPaymentUC  createPaymentUseCase
	getPaymentUC     getPaymentUseCase
	capturePaymentUC capturePaymentUseCase
	logger           logger.Interface
}

func NewPaymentHandler(
	createPaymentUC createPaymentUseCase,
	getPaymentUC getPaymentUseCase,
	capturePaymentUC capturePaymentUseCase,
	logger logger.Interface,
) *PaymentHandler {
	return &PaymentHandler{
		createPaymentUC:  createPaymentUC,
		getPaymentUC:     getPaymentUC,
		capturePaymentUC: capturePaymentUC,
		logger:           logger,
	}
}

// @Summary		Create payment
// @Description	Start a payment for one or more order quotes on the chosen gateway
// @Tags			payments
// @Accept			json
// @Produce		json
// @Security		Bearer
// @Param			payment	body		dto.CreatePaymentRequest								true	"Payment data"
// @Success		201		{object}	utils.APIResponse{data=dto.CreatePaymentResponse}	"Payment started"
// @Failure		400		{object}	utils.APIResponse									"Bad request"
// @Failure		401		{object}	utils.APIResponse									"Unauthorized"
// @Failure		502		{object}	utils.APIResponse									"Provider unavailable"
// @Failure		500		{object}	utils.APIResponse									"Internal server error"
// @Router			/payments [post]
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.ErrorResponseWithError(c, apperrors.NewUnauthorizedError("user not authenticated"))
		return
	}

	var req dto.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warnw("invalid create payment request", "user_id", userID, "error", err)
		utils.ErrorResponseWithError(c, apperrors.NewValidationError(paymentNotStarted, err.Error()))
		return
	}

	result, err := h.createPaymentUC.Execute(c.Request.Context(), req.ToCommand(userID))
	if err != nil {
		h.logger.Errorw("failed to create payment",
			"user_id", userID,
			"gateway", req.Gateway,
			"error", err,
		)
		utils.ErrorResponseWithError(c, createError(err))
		return
	}

	utils.CreatedResponse(c, dto.ToCreatePaymentResponse(result), "payment started")
}

// createError hides provider and storage details behind one message and
// keeps only the status class.
func createError(err error) error {
	if appErr := apperrors.GetAppError(err); appErr != nil && appErr.Type == apperrors.ErrorTypeValidation {
		detail := appErr.Details
		if detail == "" {
			detail = appErr.Message
		}
		return apperrors.NewValidationError(paymentNotStarted, detail)
	}
	switch {
	case errors.Is(err, payment.ErrGatewayMisconfigured),
		errors.Is(err, payment.ErrUnsupportedCurrency),
		errors.Is(err, payment.ErrInvalidAmount):
		return apperrors.NewValidationError(paymentNotStarted)
	case errors.Is(err, payment.ErrUpstream):
		return apperrors.NewBadGatewayError(paymentNotStarted)
	default:
		return apperrors.NewInternalError(paymentNotStarted)
	}
}

// @Summary		Get payment
// @Description	Get the status of one of the caller's payments
// @Tags			payments
// @Produce		json
// @Security		Bearer
// @Param			transaction_id	path		string												true	"Transaction ID"
// @Success		200				{object}	utils.APIResponse{data=dto.TransactionResponse}	"Payment"
// @Failure		401				{object}	utils.APIResponse									"Unauthorized"
// @Failure		404				{object}	utils.APIResponse									"Not found"
// @Router			/payments/{transaction_id} [get]
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.ErrorResponseWithError(c, apperrors.NewUnauthorizedError("user not authenticated"))
		return
	}

	txnID := c.Param("transaction_id")
	txn, err := h.getPaymentUC.Execute(c.Request.Context(), usecases.GetPaymentQuery{
		TransactionID: txnID,
		UserID:        userID,
	})
	if err != nil {
		if !errors.Is(err, payment.ErrTransactionNotFound) {
			h.logger.Errorw("failed to get payment", "transaction_id", txnID, "error", err)
		}
		utils.ErrorResponseWithError(c, lookupError(err))
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", dto.ToTransactionResponse(txn))
}

// @Summary		Capture payment
// @Description	Settle an approved payment on gateways that require an explicit capture
// @Tags			payments
// @Produce		json
// @Security		Bearer
// @Param			transaction_id	path		string												true	"Transaction ID"
// @Success		200				{object}	utils.APIResponse{data=dto.TransactionResponse}	"Capture result"
// @Failure		401				{object}	utils.APIResponse									"Unauthorized"
// @Failure		404				{object}	utils.APIResponse									"Not found"
// @Failure		409				{object}	utils.APIResponse									"Not capturable"
// @Failure		502				{object}	utils.APIResponse									"Provider unavailable"
// @Router			/payments/{transaction_id}/capture [post]
func (h *PaymentHandler) CapturePayment(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.ErrorResponseWithError(c, apperrors.NewUnauthorizedError("user not authenticated"))
		return
	}

	txnID := c.Param("transaction_id")
	result, err := h.capturePaymentUC.Execute(c.Request.Context(), usecases.CapturePaymentCommand{
		TransactionID: txnID,
		UserID:        userID,
	})
	if err != nil {
		h.logger.Warnw("capture failed", "transaction_id", txnID, "user_id", userID, "error", err)
		utils.ErrorResponseWithError(c, captureError(err))
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", dto.ToTransactionResponse(result.Transaction))
}

func lookupError(err error) error {
	if errors.Is(err, payment.ErrTransactionNotFound) {
		return apperrors.NewNotFoundError("payment not found")
	}
	return apperrors.NewInternalError("failed to load payment")
}

func captureError(err error) error {
	switch {
	case errors.Is(err, payment.ErrTransactionNotFound):
		return apperrors.NewNotFoundError("payment not found")
	case errors.Is(err, payment.ErrCaptureNotSupported):
		return apperrors.NewConflictError("gateway does not capture explicitly")
	case errors.Is(err, payment.ErrInvalidTransition),
		errors.Is(err, payment.ErrConflictingFinalState):
		return apperrors.NewConflictError("payment cannot be captured in its current state")
	case errors.Is(err, payment.ErrUpstream):
		return apperrors.NewBadGatewayError("payment provider unavailable")
	case errors.Is(err, payment.ErrGatewayMisconfigured):
		return apperrors.NewUnavailableError("gateway unavailable")
	default:
		return apperrors.NewInternalError("failed to capture payment")
	}
}
