package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking/internal/booking"
	"github.com/iliyamo/cinema-booking/internal/cinemaapi"
	"github.com/iliyamo/cinema-booking/internal/model"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{cinemaapi.ErrUnauthorized, http.StatusUnauthorized},
		{errUnauthenticated, http.StatusUnauthorized},
		{cinemaapi.ErrForbidden, http.StatusForbidden},
		{&booking.InitError{Step: "load seats", Err: errors.New("x")}, http.StatusBadGateway},
		{booking.ErrNotReady, http.StatusConflict},
		{booking.ErrSeatUnavailable, http.StatusConflict},
		{booking.ErrSyncing, http.StatusConflict},
		{booking.ErrLocked, http.StatusConflict},
		{booking.ErrSuperseded, http.StatusConflict},
		{booking.ErrSelectionLimit, http.StatusUnprocessableEntity},
		{booking.ErrRemovalPending, http.StatusConflict},
		{booking.ErrNoSeats, http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: 9", booking.ErrUnknownCombo), http.StatusUnprocessableEntity},
		{cinemaapi.ErrNotFound, http.StatusNotFound},
		{&cinemaapi.APIError{Status: 500}, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		status, msg := statusFor(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.NotEmpty(t, msg)
	}
	_, msg := statusFor(&cinemaapi.APIError{Message: "seat taken"})
	assert.Equal(t, "seat taken", msg)
}

func TestBookingFlowEndToEnd(t *testing.T) {
	ts := newTestServer()
	defer ts.sessions.Close()

	rec := ts.do(http.MethodPut, "/v1/booking/showtime", "7", `{"showtime_id":1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	state := decode(t, rec)
	assert.Equal(t, true, state["ready"])
	assert.EqualValues(t, 101, state["billId"])

	rec = ts.do(http.MethodPost, "/v1/booking/seats/1/toggle?wait=true", "7", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	state = decode(t, rec)
	assert.Equal(t, true, state["canContinue"])
	assert.Len(t, state["selected"], 1)

	rec = ts.do(http.MethodPost, "/v1/booking/continue", "7", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 75000, decode(t, rec)["subtotal"])

	rec = ts.do(http.MethodPost, "/v1/booking/seats/2/toggle", "7", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decode(t, rec), "state")

	rec = ts.do(http.MethodGet, "/v1/checkout", "7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 101, decode(t, rec)["bill"].(map[string]any)["billId"])

	rec = ts.do(http.MethodPost, "/v1/checkout/confirm", "7", `{"combos":[{"combo_id":1,"quantity":1},{"combo_id":1,"quantity":1},{"combo_id":2,"quantity":0}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	receipt := decode(t, rec)
	assert.EqualValues(t, 100000, receipt["comboTotal"])
	assert.EqualValues(t, 175000, receipt["grandTotal"])
	assert.Equal(t, model.PaymentStatusDone, ts.api.bills[101].PaymentStatus)

	rec = ts.do(http.MethodGet, "/v1/checkout", "7", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "/", decode(t, rec)["redirect"])
}

func TestToggleValidation(t *testing.T) {
	ts := newTestServer()
	defer ts.sessions.Close()

	rec := ts.do(http.MethodPost, "/v1/booking/seats/1/toggle", "7", "")
	assert.Equal(t, http.StatusConflict, rec.Code, "no showtime yet")

	require.Equal(t, http.StatusOK, ts.do(http.MethodPut, "/v1/booking/showtime", "7", `{"showtime_id":1}`).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodPost, "/v1/booking/seats/abc/toggle", "7", "").Code)
	rec = ts.do(http.MethodPost, "/v1/booking/seats/99/toggle", "7", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "seat is not available", decode(t, rec)["error"])
}

func TestContinueWithoutSeats(t *testing.T) {
	ts := newTestServer()
	defer ts.sessions.Close()
	require.Equal(t, http.StatusOK, ts.do(http.MethodPut, "/v1/booking/showtime", "7", `{"showtime_id":1}`).Code)

	rec := ts.do(http.MethodPost, "/v1/booking/continue", "7", "")

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSelectShowtimeErrors(t *testing.T) {
	ts := newTestServer()
	defer ts.sessions.Close()

	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodPut, "/v1/booking/showtime", "7", `{}`).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodPut, "/v1/booking/showtime", "7", `{"showtime_id":5}`).Code)

	ts.api.seatsErr = errors.New("down")
	rec := ts.do(http.MethodPut, "/v1/booking/showtime", "7", `{"showtime_id":1}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "load seats", decode(t, rec)["step"])
}

func TestUnauthenticatedRequests(t *testing.T) {
	ts := newTestServer()
	defer ts.sessions.Close()

	assert.Equal(t, http.StatusUnauthorized, ts.do(http.MethodGet, "/v1/booking", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, ts.do(http.MethodGet, "/v1/checkout", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, ts.do(http.MethodPost, "/v1/checkout/confirm", "", `{}`).Code)
}

func TestExpiredTokenDropsSession(t *testing.T) {
	ts := newTestServer()
	defer ts.sessions.Close()
	require.Equal(t, http.StatusOK, ts.do(http.MethodPut, "/v1/booking/showtime", "7", `{"showtime_id":1}`).Code)
	ts.api.ticketErr = cinemaapi.ErrUnauthorized

	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/v1/booking/seats/1/toggle?wait=true", "7", "").Code)
	rec := ts.do(http.MethodPost, "/v1/booking/seats/2/toggle", "7", "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotContains(t, decode(t, rec), "state")
	_, ok := ts.sessions.Lookup(7)
	assert.False(t, ok)
}

func TestResetDropsBooking(t *testing.T) {
	ts := newTestServer()
	defer ts.sessions.Close()
	require.Equal(t, http.StatusOK, ts.do(http.MethodPut, "/v1/booking/showtime", "7", `{"showtime_id":1}`).Code)

	assert.Equal(t, http.StatusNoContent, ts.do(http.MethodDelete, "/v1/booking", "7", "").Code)

	rec := ts.do(http.MethodGet, "/v1/booking", "7", "")
	assert.Equal(t, false, decode(t, rec)["ready"])
	assert.Equal(t, http.StatusConflict, ts.do(http.MethodGet, "/v1/checkout", "7", "").Code)
}

func TestConfirmRejectsBadBody(t *testing.T) {
	ts := newTestServer()
	defer ts.sessions.Close()

	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodPost, "/v1/checkout/confirm", "7", `{"combos":[{"combo_id":0,"quantity":1}]}`).Code)
	assert.Equal(t, http.StatusConflict, ts.do(http.MethodPost, "/v1/checkout/confirm", "7", `{"combos":[]}`).Code)
}

func browseServer(api *stubAPI) *echo.Echo {
	h := NewBrowseHandler(api, nil, time.UTC, nil)
	h.Now = func() time.Time { return time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC) }
	e := echo.New()
	v := e.Group("/v1", fakeAuth)
	v.GET("/showtimes", h.ListShowtimes)
	v.GET("/combos", h.ListCombos)
	v.GET("/bills", h.ListBills)
	return e
}

func get(e *echo.Echo, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("X-User", "7")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestListShowtimesFilters(t *testing.T) {
	api := newStubAPI()
	api.showtimes = []model.Showtime{
		{ID: 1, CinemaID: 1, CinemaName: "CGV Vincom", MovieID: 8, Date: "2025-03-02", StartTime: "10:00"},
		{ID: 2, CinemaID: 1, CinemaName: "CGV Vincom", MovieID: 8, Date: "2025-03-02", StartTime: "19:30"},
		{ID: 3, CinemaID: 2, CinemaName: "Lotte", MovieID: 9, Date: "2025-03-03", StartTime: "09:00"},
		{ID: 4, CinemaID: 1, CinemaName: "CGV Vincom", MovieID: 9, Date: "2025-03-03", StartTime: "08:00"},
	}
	e := browseServer(api)

	body := decode(t, get(e, "/v1/showtimes"))
	assert.EqualValues(t, 3, body["total"], "the 10:00 showing already started")
	assert.Equal(t, []any{"2025-03-02", "2025-03-03"}, body["dates"])
	assert.Len(t, body["cinemas"], 2)

	body = decode(t, get(e, "/v1/showtimes?cinema=cgv&date=2025-03-03"))
	data := body["data"].([]any)
	require.Len(t, data, 1)
	assert.EqualValues(t, 4, data[0].(map[string]any)["showtimeId"])

	body = decode(t, get(e, "/v1/showtimes?upcoming=false&movie_id=8"))
	assert.EqualValues(t, 2, body["total"])

	body = decode(t, get(e, "/v1/showtimes?cinema_id=2"))
	assert.EqualValues(t, 1, body["total"])
	assert.Equal(t, []any{"2025-03-03"}, body["dates"])

	assert.Equal(t, http.StatusBadRequest, get(e, "/v1/showtimes?date=03/03/2025").Code)
	assert.Equal(t, http.StatusBadRequest, get(e, "/v1/showtimes?upcoming=maybe").Code)
}

func TestListCombosSorted(t *testing.T) {
	body := decode(t, get(browseServer(newStubAPI()), "/v1/combos"))

	data := body["data"].([]any)
	require.Len(t, data, 2)
	assert.Equal(t, "Popcorn", data[0].(map[string]any)["name"])
}

func TestListBillsNewestFirst(t *testing.T) {
	api := newStubAPI()
	api.history = []model.Bill{
		{ID: 3, PaymentStatus: "DONE"},
		{ID: 9, PaymentStatus: "PENDING"},
		{ID: 5, PaymentStatus: "DONE"},
	}
	e := browseServer(api)

	body := decode(t, get(e, "/v1/bills"))
	data := body["data"].([]any)
	require.Len(t, data, 3)
	assert.EqualValues(t, 9, data[0].(map[string]any)["billId"])

	body = decode(t, get(e, "/v1/bills?status=done"))
	assert.EqualValues(t, 2, body["total"])
}

func TestBrowseUpstreamErrors(t *testing.T) {
	api := newStubAPI()
	api.browseErr = cinemaapi.ErrUnauthorized
	e := browseServer(api)

	assert.Equal(t, http.StatusUnauthorized, get(e, "/v1/showtimes").Code)

	api.browseErr = &cinemaapi.APIError{Status: 500, Message: "db down"}
	rec := get(e, "/v1/combos")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "db down", decode(t, rec)["error"])
}

func TestHealth(t *testing.T) {
	e := echo.New()
	e.GET("/healthz", Health)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
