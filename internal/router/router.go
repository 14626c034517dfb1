// Package router registers the HTTP routes of the booking service.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking/internal/handler"
)

// RegisterRoutes registers routes that need no authentication.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// Guards are the middleware applied to route groups.  Auth is required;
// Limit and Cache may be pass-throughs when redis is unavailable.
type Guards struct {
	Auth  echo.MiddlewareFunc // JWTAuth
	Limit echo.MiddlewareFunc // token bucket on seat toggles
	Cache echo.MiddlewareFunc // response cache on catalogue listings
}

func (g Guards) orPass() Guards {
	pass := func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	if g.Auth == nil {
		panic("router: auth middleware is required")
	}
	if g.Limit == nil {
		g.Limit = pass
	}
	if g.Cache == nil {
		g.Cache = pass
	}
	return g
}

// RegisterBooking registers the seat step under /v1/booking.
func RegisterBooking(e *echo.Echo, h *handler.BookingHandler, g Guards) {
	g = g.orPass()
	b := e.Group("/v1/booking", g.Auth)
	b.GET("", h.State)
	b.DELETE("", h.Reset)
	b.PUT("/showtime", h.SelectShowtime)
	b.POST("/seats/:seatId/toggle", h.ToggleSeat, g.Limit)
	b.POST("/continue", h.Continue)
}

// RegisterCheckout registers the combo and payment step under /v1/checkout.
func RegisterCheckout(e *echo.Echo, h *handler.CheckoutHandler, g Guards) {
	g = g.orPass()
	c := e.Group("/v1/checkout", g.Auth)
	c.GET("", h.Resume)
	c.POST("/confirm", h.Confirm)
}

// RegisterBrowse registers the pickers and the booking history.  The
// showtime and combo listings are the same for every user and are cached;
// the history is per user and never is.
func RegisterBrowse(e *echo.Echo, h *handler.BrowseHandler, g Guards) {
	g = g.orPass()
	v := e.Group("/v1", g.Auth)
	v.GET("/showtimes", h.ListShowtimes, g.Cache)
	v.GET("/combos", h.ListCombos, g.Cache)
	v.GET("/bills", h.ListBills)
}
