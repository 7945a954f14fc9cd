package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orris-inc/paygate/internal/application/payment/gateway"
	"github.com/orris-inc/paygate/internal/application/payment/usecases"
	"github.com/orris-inc/paygate/internal/domain/payment"
	"github.com/orris-inc/paygate/internal/shared/logger"
	"github.com/orris-inc/paygate/internal/shared/utils"
)

// CallbackHandler receives payer redirects and provider webhooks. It is
// mounted without authentication; the adapters verify every payload.
type CallbackHandler struct {
	handleCallbackUC handleCallbackUseCase
	logger           logger.Interface
}

func NewCallbackHandler(handleCallbackUC handleCallbackUseCase, logger logger.Interface) *CallbackHandler {
	return &CallbackHandler{
		handleCallbackUC: handleCallbackUC,
		logger:           logger,
	}
}

type CallbackAck struct {
	Outcome string `json:"outcome" example:"applied"`
}

// HandleCallback godoc
//
// Interactive callbacks for a known transaction always redirect the payer to
// the merchant's success or cancel URL. Webhooks are acknowledged with 200
// once handled, so the provider stops retrying; processing errors answer 5xx
// so it retries later.
//
// @Summary		Payment provider callback
// @Description	Payer redirect or provider webhook for a gateway
// @Tags			callbacks
// @Accept			json,x-www-form-urlencoded
// @Produce		json
// @Param			gateway	path		string									true	"Gateway code"
// @Success		200		{object}	utils.APIResponse{data=CallbackAck}	"Acknowledged"
// @Success		303		"Redirect to the merchant"
// @Failure		400		{object}	utils.APIResponse						"Malformed or forged callback"
// @Failure		404		{object}	utils.APIResponse						"Unknown gateway"
// @Failure		502		{object}	utils.APIResponse						"Provider unavailable"
// @Router			/callbacks/{gateway} [get]
// @Router			/callbacks/{gateway} [post]
func (h *CallbackHandler) HandleCallback(c *gin.Context) {
	code := c.Param("gateway")

	payload, err := gateway.ParseCallbackRequest(c.Request)
	if err != nil {
		h.logger.Warnw("unreadable callback", "gateway", code, "error", err)
		utils.ErrorResponse(c, http.StatusBadRequest, "malformed callback")
		return
	}

	result, err := h.handleCallbackUC.Execute(c.Request.Context(), usecases.HandleCallbackCommand{
		GatewayCode: code,
		Payload:     payload,
	})

	if result != nil && result.Interactive && result.RedirectURL != "" {
		if err != nil {
			h.logger.Errorw("interactive callback failed, redirecting payer",
				"gateway", code,
				"transaction_id", result.Transaction.TransactionID(),
				"error", err,
			)
		}
		c.Redirect(http.StatusSeeOther, result.RedirectURL)
		return
	}

	switch {
	case err == nil:
		utils.SuccessResponse(c, http.StatusOK, "", CallbackAck{Outcome: string(result.Outcome)})
	case errors.Is(err, payment.ErrSignatureInvalid):
		utils.ErrorResponse(c, http.StatusBadRequest, "callback rejected")
	case errors.Is(err, payment.ErrGatewayMisconfigured):
		utils.ErrorResponse(c, http.StatusNotFound, "unknown gateway")
	case errors.Is(err, payment.ErrUpstream):
		h.logger.Errorw("callback verification failed upstream", "gateway", code, "error", err)
		utils.ErrorResponse(c, http.StatusBadGateway, "callback could not be verified")
	default:
		h.logger.Errorw("callback processing failed", "gateway", code, "error", err)
		utils.ErrorResponse(c, http.StatusInternalServerError, "callback could not be processed")
	}
}
