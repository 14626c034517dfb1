package handler

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/booking"
	"github.com/iliyamo/cinema-booking/internal/cinemaapi"
	"github.com/iliyamo/cinema-booking/internal/model"
)

// BrowseAPI is the read side of the cinema API used by the pickers and the
// booking history.
type BrowseAPI interface {
	Showtimes(ctx context.Context) ([]model.Showtime, error)
	Combos(ctx context.Context) ([]model.Combo, error)
	BillsByUser(ctx context.Context, userID int64) ([]model.Bill, error)
}

// BrowseHandler serves the cinema → date → showtime picker, the combo
// catalogue and the booking history.
type BrowseHandler struct {
	API      BrowseAPI
	Sessions *booking.Manager // optional; dropped for users whose token the API rejects
	Loc      *time.Location
	Now      func() time.Time
	Log      *zap.Logger
}

func NewBrowseHandler(api BrowseAPI, sessions *booking.Manager, loc *time.Location, log *zap.Logger) *BrowseHandler {
	if api == nil {
		panic("nil api passed to NewBrowseHandler")
	}
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &BrowseHandler{API: api, Sessions: sessions, Loc: loc, Now: time.Now, Log: log}
}

// ListShowtimes handles GET /v1/showtimes.  Filters: cinema_id, cinema
// (case-insensitive substring of the name), movie_id, date (YYYY-MM-DD)
// and upcoming (default true: drop showtimes that already started).  Along
// with the matches it returns the cinemas and dates available under the
// remaining filters so the picker can narrow step by step.
func (h *BrowseHandler) ListShowtimes(c echo.Context) error {
	cinemaID, _ := strconv.ParseInt(c.QueryParam("cinema_id"), 10, 64)
	movieID, _ := strconv.ParseInt(c.QueryParam("movie_id"), 10, 64)
	cinemaName := strings.ToLower(strings.TrimSpace(c.QueryParam("cinema")))
	date := strings.TrimSpace(c.QueryParam("date"))
	if date != "" {
		if _, err := time.Parse("2006-01-02", date); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "date must be YYYY-MM-DD"})
		}
	}
	upcoming := true
	if v := c.QueryParam("upcoming"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "upcoming must be a boolean"})
		}
		upcoming = b
	}

	all, err := h.API.Showtimes(h.authed(c))
	if err != nil {
		return h.fail(c, err)
	}

	now := h.Now().In(h.Loc)
	cinemas := map[int64]string{}
	dates := map[string]bool{}
	out := make([]model.Showtime, 0, len(all))
	for _, st := range all {
		if movieID != 0 && st.MovieID != movieID {
			continue
		}
		if upcoming {
			if t := st.StartsAt(h.Loc); !t.IsZero() && t.Before(now) {
				continue
			}
		}
		cinemaOK := (cinemaID == 0 || st.CinemaID == cinemaID) &&
			(cinemaName == "" || strings.Contains(strings.ToLower(st.CinemaName), cinemaName))
		if cinemaOK && st.Date != "" {
			dates[st.Date] = true
		}
		if date == "" || st.Date == date {
			cinemas[st.CinemaID] = st.CinemaName
		}
		if cinemaOK && (date == "" || st.Date == date) {
			out = append(out, st)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := out[i].StartsAt(h.Loc), out[j].StartsAt(h.Loc)
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return out[i].ID < out[j].ID
	})

	return c.JSON(http.StatusOK, echo.Map{
		"data":    out,
		"total":   len(out),
		"cinemas": cinemaOptions(cinemas),
		"dates":   sortedKeys(dates),
	})
}

// ListCombos handles GET /v1/combos.
func (h *BrowseHandler) ListCombos(c echo.Context) error {
	combos, err := h.API.Combos(h.authed(c))
	if err != nil {
		return h.fail(c, err)
	}
	sort.Slice(combos, func(i, j int) bool { return combos[i].ID < combos[j].ID })
	return c.JSON(http.StatusOK, echo.Map{"data": combos})
}

// ListBills handles GET /v1/bills: the caller's booking history, newest
// first.  ?status=DONE keeps only paid bills.
func (h *BrowseHandler) ListBills(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	bills, err := h.API.BillsByUser(h.authed(c), user.ID)
	if err != nil {
		return h.fail(c, err)
	}
	status := strings.TrimSpace(c.QueryParam("status"))
	out := make([]model.Bill, 0, len(bills))
	for _, b := range bills {
		if status == "" || strings.EqualFold(b.PaymentStatus, status) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return c.JSON(http.StatusOK, echo.Map{"data": out, "total": len(out)})
}

func (h *BrowseHandler) authed(c echo.Context) context.Context {
	user, _ := currentUser(c)
	return cinemaapi.WithToken(c.Request().Context(), user.Token)
}

func (h *BrowseHandler) fail(c echo.Context, err error) error {
	status, msg := statusFor(err)
	if user, uerr := currentUser(c); uerr == nil && status == http.StatusUnauthorized && h.Sessions != nil {
		if derr := h.Sessions.Drop(c.Request().Context(), user.ID); derr != nil {
			h.Log.Warn("dropping expired session failed", zap.Int64("user_id", user.ID), zap.Error(derr))
		}
	}
	if status >= http.StatusInternalServerError {
		h.Log.Error("browse request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.JSON(status, echo.Map{"error": msg})
}

func cinemaOptions(m map[int64]string) []model.Cinema {
	out := make([]model.Cinema, 0, len(m))
	for id, name := range m {
		out = append(out, model.Cinema{ID: id, Name: name})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
