package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking/internal/booking"
	"github.com/iliyamo/cinema-booking/internal/cinemaapi"
	"github.com/iliyamo/cinema-booking/internal/middleware"
)

// errUnauthenticated means JWTAuth did not run for the route.
var errUnauthenticated = errors.New("unauthenticated")

// currentUser builds the booking identity from what JWTAuth stored.
func currentUser(c echo.Context) (booking.User, error) {
	id := middleware.UserID(c)
	if id <= 0 {
		return booking.User{}, errUnauthenticated
	}
	return booking.User{ID: id, Token: middleware.Token(c)}, nil
}

// startOver is the body returned when the client must go back to the
// showtime picker.
func startOver(msg string) echo.Map {
	return echo.Map{"error": msg, "redirect": "/"}
}

// statusFor maps workflow and upstream errors to an HTTP status and a
// short client-facing message.
func statusFor(err error) (int, string) {
	var initErr *booking.InitError
	var apiErr *cinemaapi.APIError
	switch {
	case errors.Is(err, cinemaapi.ErrUnauthorized), errors.Is(err, errUnauthenticated):
		return http.StatusUnauthorized, "session expired"
	case errors.Is(err, cinemaapi.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.As(err, &initErr):
		return http.StatusBadGateway, "could not open showtime, please pick it again"
	case errors.Is(err, booking.ErrNotReady):
		return http.StatusConflict, "no showtime selected"
	case errors.Is(err, booking.ErrSeatUnavailable):
		return http.StatusConflict, "seat is not available"
	case errors.Is(err, booking.ErrRemovalPending):
		return http.StatusConflict, "a seat removal is still syncing, retry shortly"
	case errors.Is(err, booking.ErrSelectionLimit):
		return http.StatusUnprocessableEntity, "seat selection limit reached"
	case errors.Is(err, booking.ErrSyncing):
		return http.StatusConflict, "seat changes are still syncing"
	case errors.Is(err, booking.ErrNoSeats):
		return http.StatusUnprocessableEntity, "no seats selected"
	case errors.Is(err, booking.ErrLocked):
		return http.StatusConflict, "booking is already in checkout"
	case errors.Is(err, booking.ErrSuperseded):
		return http.StatusConflict, "showtime selection superseded"
	case errors.Is(err, booking.ErrUnknownCombo):
		return http.StatusUnprocessableEntity, "unknown combo"
	case errors.Is(err, cinemaapi.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.As(err, &apiErr):
		if apiErr.Message == "" {
			return http.StatusBadGateway, "upstream error"
		}
		return http.StatusBadGateway, apiErr.Message
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
