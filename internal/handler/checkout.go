package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/booking"
)

// CheckoutHandler serves the combo and payment step.
type CheckoutHandler struct {
	Sessions *booking.Manager
	Log      *zap.Logger
}

func NewCheckoutHandler(sessions *booking.Manager, log *zap.Logger) *CheckoutHandler {
	if sessions == nil {
		panic("nil manager passed to NewCheckoutHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CheckoutHandler{Sessions: sessions, Log: log}
}

// Resume handles GET /v1/checkout.  It returns the handed-off bill, or
// recovers it from the persisted id after a reload.  When there is nothing
// to resume, or the bill is gone, the client is sent back to the start
// (409 with redirect "/").
func (h *CheckoutHandler) Resume(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	handoff, err := h.Sessions.Resume(c.Request().Context(), user)
	if err != nil {
		return h.fail(c, user, err)
	}
	return c.JSON(http.StatusOK, handoff)
}

type comboQuantity struct {
	ComboID  int64 `json:"combo_id"`
	Quantity int   `json:"quantity"`
}

// Confirm handles POST /v1/checkout/confirm with
// {"combos": [{"combo_id": 1, "quantity": 2}]}.  Quantities for the same
// combo add up.  The response is the receipt of the paid bill; without a
// resumed hand-off the client is sent back to the start.
func (h *CheckoutHandler) Confirm(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		Combos []comboQuantity `json:"combos"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	quantities := make(map[int64]int, len(body.Combos))
	for _, cq := range body.Combos {
		if cq.ComboID <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid combo id"})
		}
		quantities[cq.ComboID] += cq.Quantity
	}

	receipt, err := h.Sessions.Session(user).Checkout(c.Request().Context(), quantities)
	if err != nil {
		return h.fail(c, user, err)
	}
	return c.JSON(http.StatusOK, receipt)
}

func (h *CheckoutHandler) fail(c echo.Context, user booking.User, err error) error {
	if errors.Is(err, booking.ErrNothingToResume) || errors.Is(err, booking.ErrSessionExpired) {
		return c.JSON(http.StatusConflict, startOver(err.Error()))
	}
	status, msg := statusFor(err)
	if status == http.StatusUnauthorized {
		if derr := h.Sessions.Drop(c.Request().Context(), user.ID); derr != nil {
			h.Log.Warn("dropping expired session failed", zap.Int64("user_id", user.ID), zap.Error(derr))
		}
	}
	if status >= http.StatusInternalServerError {
		h.Log.Error("checkout request failed", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	return c.JSON(status, echo.Map{"error": msg})
}
