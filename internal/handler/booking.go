package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/booking"
	"github.com/iliyamo/cinema-booking/internal/cinemaapi"
	"github.com/iliyamo/cinema-booking/internal/model"
)

// ShowtimeLookup fetches one showtime from the cinema API.
type ShowtimeLookup interface {
	Showtime(ctx context.Context, id int64) (model.Showtime, error)
}

// BookingHandler serves the seat step: picking a showtime, toggling seats
// and handing the bill over to checkout.  Every route needs JWTAuth.
type BookingHandler struct {
	Sessions    *booking.Manager
	Showtimes   ShowtimeLookup
	Log         *zap.Logger
	WaitTimeout time.Duration // bound on ?wait=true toggles
}

func NewBookingHandler(sessions *booking.Manager, showtimes ShowtimeLookup, log *zap.Logger) *BookingHandler {
	if sessions == nil || showtimes == nil {
		panic("nil dependency passed to NewBookingHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &BookingHandler{Sessions: sessions, Showtimes: showtimes, Log: log, WaitTimeout: 15 * time.Second}
}

// SelectShowtime handles PUT /v1/booking/showtime with {"showtime_id": n}.
// It opens a fresh bill for the showtime and returns the seat state.  An
// initialization failure clears the showtime (502, pick again).
func (h *BookingHandler) SelectShowtime(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return h.fail(c, user, err, nil)
	}
	var body struct {
		ShowtimeID int64 `json:"showtime_id"`
	}
	if err := c.Bind(&body); err != nil || body.ShowtimeID <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "showtime_id is required"})
	}

	ctx := c.Request().Context()
	s := h.Sessions.Session(user)
	st, err := h.Showtimes.Showtime(cinemaapi.WithToken(ctx, user.Token), body.ShowtimeID)
	if err != nil {
		return h.fail(c, user, err, nil)
	}
	state, err := s.SelectShowtime(ctx, st)
	if err != nil {
		var initErr *booking.InitError
		if errors.As(err, &initErr) {
			return c.JSON(http.StatusBadGateway, echo.Map{
				"error": "could not open showtime, please pick it again",
				"step":  initErr.Step,
			})
		}
		return h.fail(c, user, err, nil)
	}
	return c.JSON(http.StatusOK, state)
}

// State handles GET /v1/booking.
func (h *BookingHandler) State(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return h.fail(c, user, err, nil)
	}
	return c.JSON(http.StatusOK, h.Sessions.Session(user).State())
}

// ToggleSeat handles POST /v1/booking/seats/:seatId/toggle.  The selection
// flips at once and the upstream call is queued; with ?wait=true the
// response is held until the queue drains so it reflects the outcome.
func (h *BookingHandler) ToggleSeat(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return h.fail(c, user, err, nil)
	}
	seatID, err := strconv.ParseInt(c.Param("seatId"), 10, 64)
	if err != nil || seatID <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid seat id"})
	}

	s := h.Sessions.Session(user)
	state, err := s.Toggle(c.Request().Context(), seatID)
	if err != nil {
		return h.fail(c, user, err, &state)
	}
	if wait, _ := strconv.ParseBool(c.QueryParam("wait")); wait {
		ctx, cancel := context.WithTimeout(c.Request().Context(), h.WaitTimeout)
		defer cancel()
		if err := s.WaitIdle(ctx); err != nil {
			// Still syncing; the client polls GET /v1/booking.
			return c.JSON(http.StatusAccepted, s.State())
		}
		state = s.State()
	}
	return c.JSON(http.StatusOK, state)
}

// Continue handles POST /v1/booking/continue: the hand-off to checkout.
// Refused (409) while seat changes are syncing.
func (h *BookingHandler) Continue(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return h.fail(c, user, err, nil)
	}
	s := h.Sessions.Session(user)
	handoff, err := s.Continue(c.Request().Context())
	if err != nil {
		state := s.State()
		return h.fail(c, user, err, &state)
	}
	return c.JSON(http.StatusOK, handoff)
}

// Reset handles DELETE /v1/booking: the user navigated away.
func (h *BookingHandler) Reset(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return h.fail(c, user, err, nil)
	}
	if err := h.Sessions.Drop(c.Request().Context(), user.ID); err != nil {
		h.Log.Warn("dropping active bill failed", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	return c.NoContent(http.StatusNoContent)
}

// fail writes the error response.  A rejected credential also tears the
// user's booking down, mirroring a logout.
func (h *BookingHandler) fail(c echo.Context, user booking.User, err error, state *booking.State) error {
	status, msg := statusFor(err)
	if status == http.StatusUnauthorized && user.ID > 0 {
		if derr := h.Sessions.Drop(c.Request().Context(), user.ID); derr != nil {
			h.Log.Warn("dropping expired session failed", zap.Int64("user_id", user.ID), zap.Error(derr))
		}
	}
	if status >= http.StatusInternalServerError {
		h.Log.Error("booking request failed", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	body := echo.Map{"error": msg}
	if state != nil && status != http.StatusUnauthorized {
		body["state"] = state
	}
	return c.JSON(status, body)
}
