package admin

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orris-inc/paygate/internal/application/payment/usecases"
	"github.com/orris-inc/paygate/internal/domain/payment"
	"github.com/orris-inc/paygate/internal/interfaces/dto"
	apperrors "github.com/orris-inc/paygate/internal/shared/errors"
	"github.com/orris-inc/paygate/internal/shared/logger"
	"github.com/orris-inc/paygate/internal/shared/utils"
)

type listReviewQueueUseCase interface {
	Execute(ctx context.Context, page, pageSize int) ([]*payment.Transaction, int64, error)
}

type getTransactionAuditUseCase interface {
	Execute(ctx context.Context, transactionID string) (*usecases.TransactionAudit, error)
}

type recoverySweepUseCase interface {
	Sweep(ctx context.Context) (*usecases.SweepReport, error)
}

// SweepObserver records sweeps triggered over HTTP next to scheduled ones.
type SweepObserver interface {
	SweepCompleted(report *usecases.SweepReport)
}

// PaymentReviewHandler serves operator endpoints for transactions that need
// a human decision and for running the recovery sweep on demand.
type PaymentReviewHandler struct {
	listReviewQueueUC listReviewQueueUseCase
	getAuditUC        getTransactionAuditUseCase
	sweepUC           recoverySweepUseCase
	observer          SweepObserver
	logger            logger.Interface
}

func NewPaymentReviewHandler(
	listReviewQueueUC listReviewQueueUseCase,
	getAuditUC getTransactionAuditUseCase,
	sweepUC recoverySweepUseCase,
	logger logger.Interface,
) *PaymentReviewHandler {
	return &PaymentReviewHandler{
		listReviewQueueUC: listReviewQueueUC,
		getAuditUC:        getAuditUC,
		sweepUC:           sweepUC,
		logger:            logger,
	}
}

// SetSweepObserver sets the sweep observer (optional dependency injection)
func (h *PaymentReviewHandler) SetSweepObserver(o SweepObserver) {
	h.observer = o
}

// ListReviewQueue returns transactions flagged for review
//
// @Summary		List transactions needing review
// @Description	Transactions that received conflicting final states, newest first
// @Tags			admin-payments
// @Produce		json
// @Security		Bearer
// @Param			page		query		int																false	"Page number"
// @Param			page_size	query		int																false	"Page size"
// @Success		200			{object}	utils.APIResponse{data=utils.ListResponse{items=[]dto.AdminTransactionResponse}}	"Review queue"
// @Failure		401			{object}	utils.APIResponse												"Unauthorized"
// @Failure		403			{object}	utils.APIResponse												"Forbidden"
// @Router			/admin/transactions/review [get]
func (h *PaymentReviewHandler) ListReviewQueue(c *gin.Context) {
	p := utils.ParsePagination(c)

	txns, total, err := h.listReviewQueueUC.Execute(c.Request.Context(), p.Page, p.PageSize)
	if err != nil {
		h.logger.Errorw("failed to list review queue", "error", err)
		utils.ErrorResponseWithError(c, apperrors.NewInternalError("failed to list review queue"))
		return
	}

	utils.ListSuccessResponse(c, dto.ToAdminTransactionResponses(txns), total, p.Page, p.PageSize)
}

// GetTransactionEvents returns the audit trail of one transaction
//
// @Summary		Transaction audit trail
// @Description	Status events and received callbacks of a transaction
// @Tags			admin-payments
// @Produce		json
// @Security		Bearer
// @Param			transaction_id	path		string													true	"Transaction ID"
// @Success		200				{object}	utils.APIResponse{data=dto.TransactionAuditResponse}	"Audit trail"
// @Failure		404				{object}	utils.APIResponse										"Not found"
// @Router			/admin/transactions/{transaction_id}/events [get]
func (h *PaymentReviewHandler) GetTransactionEvents(c *gin.Context) {
	txnID := c.Param("transaction_id")

	audit, err := h.getAuditUC.Execute(c.Request.Context(), txnID)
	if err != nil {
		if errors.Is(err, payment.ErrTransactionNotFound) {
			utils.ErrorResponseWithError(c, apperrors.NewNotFoundError("transaction not found"))
			return
		}
		h.logger.Errorw("failed to load transaction audit", "transaction_id", txnID, "error", err)
		utils.ErrorResponseWithError(c, apperrors.NewInternalError("failed to load transaction audit"))
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", dto.ToTransactionAuditResponse(audit))
}

// RunRecoverySweep runs one recovery sweep and returns its report
//
// @Summary		Run recovery sweep
// @Description	Remind payers of abandoned pending transactions now instead of waiting for the worker
// @Tags			admin-payments
// @Produce		json
// @Security		Bearer
// @Success		200	{object}	utils.APIResponse{data=usecases.SweepReport}	"Sweep report"
// @Failure		409	{object}	utils.APIResponse								"Another sweep is running"
// @Failure		500	{object}	utils.APIResponse								"Sweep failed"
// @Router			/admin/recovery/sweep [post]
func (h *PaymentReviewHandler) RunRecoverySweep(c *gin.Context) {
	report, err := h.sweepUC.Sweep(c.Request.Context())
	if err != nil {
		h.logger.Errorw("recovery sweep failed", "error", err)
		utils.ErrorResponseWithError(c, apperrors.NewInternalError("recovery sweep failed"))
		return
	}
	if h.observer != nil {
		h.observer.SweepCompleted(report)
	}
	if report.LockHeld {
		utils.ErrorResponseWithError(c, apperrors.NewConflictError("another recovery sweep is running"))
		return
	}

	h.logger.Infow("recovery sweep triggered by admin",
		"scanned", report.Scanned,
		"notified", report.Notified,
		"errors", len(report.Errors),
	)
	utils.SuccessResponse(c, http.StatusOK, "recovery sweep completed", report)
}
