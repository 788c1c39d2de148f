package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zad/exchange-api/internal/interfaces"
	"github.com/zad/exchange-api/internal/ledger"
	"github.com/zad/exchange-api/internal/models"
	"github.com/zad/exchange-api/internal/ratelimit"
	"github.com/zad/exchange-api/internal/rates"
	"github.com/zad/exchange-api/internal/status"
)

// Handler serves the transaction endpoints. Deposit and withdraw are
// accepted asynchronously: the handler admits, validates and enqueues, and
// the queue consumer is the only mutator. Exchange runs synchronously.
type Handler struct {
	Limiter  *ratelimit.Limiter
	Ledger   *ledger.Service
	Producer interfaces.IntentPublisher
	Status   *status.Cache
	Log      *slog.Logger
}

type depositRequest struct {
	UserID   int64           `json:"user_id"`
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

type exchangeRequest struct {
	FromUserID   int64           `json:"from_user_id"`
	ToUserID     int64           `json:"to_user_id"`
	FromCurrency string          `json:"from_currency"`
	ToCurrency   string          `json:"to_currency"`
	Amount       decimal.Decimal `json:"amount"`
}

// Deposit admits the request and publishes a deposit intent. The caller gets
// the operation id to poll; the balance moves on the async leg.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	return h.enqueue(c, models.OperationDeposit)
}

// Withdraw admits the request and publishes a withdraw intent. The
// synchronous leg additionally rejects insufficient balance at request time,
// independent of the async leg's own validation.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	return h.enqueue(c, models.OperationWithdraw)
}

func (h *Handler) enqueue(c *fiber.Ctx, operation models.OperationType) error {
	var req depositRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	currency, ok := models.ParseCurrency(req.Currency)
	if !ok {
		return badRequest(c, "Unsupported currency: "+req.Currency)
	}
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return badRequest(c, ledger.ErrInvalidAmount.Error())
	}

	if !h.Limiter.IsAllowed(c.Context(), strconv.FormatInt(req.UserID, 10)) {
		return tooManyRequests(c)
	}

	intent := models.TransactionIntent{
		OperationID: uuid.NewString(),
		Operation:   operation,
		UserID:      req.UserID,
		Currency:    currency,
		Amount:      req.Amount,
	}
	send := h.Producer.SendDeposit
	if operation == models.OperationWithdraw {
		send = h.Producer.SendWithdraw
	}
	if err := send(c.Context(), intent); err != nil {
		h.Log.Error("intent publish failed", "operation", operation, "user_id", req.UserID, "error", err)
		return serverError(c)
	}
	h.Log.Info("transaction request queued",
		"operation", operation,
		"operation_id", intent.OperationID,
		"user_id", req.UserID)

	// Synchronous leg: answer now from current state. The intent is already
	// queued, so a rejection here still settles as a terminal FAILURE on the
	// async leg.
	account, err := h.Ledger.GetAccount(c.Context(), req.UserID, currency)
	if err != nil {
		return h.fail(c, err)
	}
	if operation == models.OperationWithdraw {
		if err := ledger.ValidateSufficientBalance(account, req.Amount); err != nil {
			return h.fail(c, err)
		}
	}

	return c.Status(http.StatusAccepted).JSON(fiber.Map{
		"accepted":     true,
		"operation_id": intent.OperationID,
	})
}

// Exchange converts between two accounts synchronously.
func (h *Handler) Exchange(c *fiber.Ctx) error {
	var req exchangeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	from, ok := models.ParseCurrency(req.FromCurrency)
	if !ok {
		return badRequest(c, "Unsupported currency: "+req.FromCurrency)
	}
	to, ok := models.ParseCurrency(req.ToCurrency)
	if !ok {
		return badRequest(c, "Unsupported currency: "+req.ToCurrency)
	}

	if !h.Limiter.IsAllowed(c.Context(), strconv.FormatInt(req.FromUserID, 10)) {
		return tooManyRequests(c)
	}

	if err := h.Ledger.Exchange(c.Context(), req.FromUserID, req.ToUserID, from, to, req.Amount); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "message": "Exchange completed successfully"})
}

// GetBalance returns the user's USD balance.
func (h *Handler) GetBalance(c *fiber.Ctx) error {
	userID, err := strconv.ParseInt(c.Params("userId"), 10, 64)
	if err != nil {
		return badRequest(c, "Invalid user id")
	}

	account, err := h.Ledger.GetBalance(c.Context(), userID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"user_id":  account.UserID,
		"currency": account.Currency,
		"balance":  account.Balance,
	})
}

// GetOperationStatus is the caller's only visibility into the async leg.
func (h *Handler) GetOperationStatus(c *fiber.Ctx) error {
	operationID := c.Params("operationId")

	outcome, err := h.Status.Get(c.Context(), operationID)
	if err != nil {
		h.Log.Error("status lookup failed", "operation_id", operationID, "error", err)
		return serverError(c)
	}
	return c.JSON(fiber.Map{
		"operation_id": operationID,
		"status":       outcome,
	})
}

// fail maps domain errors onto HTTP statuses.
func (h *Handler) fail(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return respond(c, http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrSameCurrency),
		errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrInvalidBalance),
		errors.Is(err, rates.ErrRateUnavailable):
		return respond(c, http.StatusBadRequest, err.Error())
	default:
		h.Log.Error("request failed", "error", err)
		return serverError(c)
	}
}

func badRequest(c *fiber.Ctx, message string) error {
	return respond(c, http.StatusBadRequest, message)
}

func tooManyRequests(c *fiber.Ctx) error {
	return respond(c, http.StatusTooManyRequests, "Too many requests. Please try again later.")
}

func serverError(c *fiber.Ctx) error {
	return respond(c, http.StatusInternalServerError, "Internal server error")
}

func respond(c *fiber.Ctx, code int, message string) error {
	return c.Status(code).JSON(fiber.Map{"success": false, "message": message})
}
