package controller

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/factory"
	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/mapper"
	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/service"
	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/types"
)

// Gateway callbacks are small JSON documents; anything larger is not a
// webhook this service can process.
const maxWebhookBodyBytes = 1 << 20

type PaymentController struct {
	paymentService *service.PaymentService
	logger         logrus.FieldLogger
}

func NewPaymentController(paymentService *service.PaymentService) *PaymentController {
	return &PaymentController{
		paymentService: paymentService,
		logger:         factory.NewModuleLogger("payments-controller"),
	}
}

func (c *PaymentController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func (c *PaymentController) CreatePayment(ctx echo.Context) error {
	req, err := types.NewCreatePaymentRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.paymentService.CreatePayment(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrGatewayNotSupported):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Create payment failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusCreated, &types.PaymentEnvelopeResponse{Payment: mapper.PaymentToResponse(item)})
}

func (c *PaymentController) GetPayment(ctx echo.Context) error {
	req := types.NewGetPaymentRequestFromContext(ctx)
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.paymentService.GetPayment(ctx.Request().Context(), req.PaymentID)
	if err != nil {
		if errors.Is(err, service.ErrIntentNotFound) {
			return c.writeError(ctx, http.StatusNotFound, "payment not found")
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Get payment failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.PaymentEnvelopeResponse{Payment: mapper.PaymentToResponse(item)})
}

// HandleWebhook receives a gateway callback. The body is passed to the
// verifier byte for byte as received; providers sign the exact payload they
// send, so any re-encoding here would break signature checks. Responses carry
// status codes only, no detail a caller could learn verification rules from.
func (c *PaymentController) HandleWebhook(ctx echo.Context) error {
	gatewayRaw := ctx.Param("gateway")

	payload, err := io.ReadAll(io.LimitReader(ctx.Request().Body, maxWebhookBodyBytes+1))
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if len(payload) > maxWebhookBodyBytes {
		return c.writeError(ctx, http.StatusRequestEntityTooLarge, "payload too large")
	}

	_, err = c.paymentService.HandleWebhook(ctx.Request().Context(), gatewayRaw, payload, ctx.Request().Header)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrGatewayNotSupported),
			errors.Is(err, service.ErrCallbackRejected),
			errors.Is(err, service.ErrMissingBookingReference):
			return c.writeError(ctx, http.StatusBadRequest, "webhook rejected")
		case errors.Is(err, service.ErrStatusConflict):
			return c.writeError(ctx, http.StatusConflict, "conflicting transaction status")
		case errors.Is(err, service.ErrConfirmFailed):
			return c.writeError(ctx, http.StatusBadGateway, "confirmation pending")
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Handle webhook failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, &types.WebhookAckResponse{Received: true})
}

func (c *PaymentController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Message: message})
}
