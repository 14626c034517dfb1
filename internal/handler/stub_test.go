package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/booking"
	"github.com/iliyamo/cinema-booking/internal/cinemaapi"
	"github.com/iliyamo/cinema-booking/internal/middleware"
	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/store"
)

// stubAPI is a small in-memory cinema API covering every interface the
// handlers and the booking manager need.
type stubAPI struct {
	mu sync.Mutex

	showtimes []model.Showtime
	seats     []model.Seat
	combos    []model.Combo
	history   []model.Bill

	bills   map[int64]model.Bill
	tickets map[int64]model.Ticket
	next    int64

	seatsErr  error
	ticketErr error
	browseErr error
}

func newStubAPI() *stubAPI {
	return &stubAPI{
		showtimes: []model.Showtime{{ID: 1, RoomID: 1, Title: "Dune", CinemaID: 1, CinemaName: "CGV", Date: "2025-03-02", StartTime: "19:30"}},
		seats: []model.Seat{
			{ID: 1, Row: "A", Number: 1, RawStatus: "Trống"},
			{ID: 2, Row: "A", Number: 2, RawStatus: "Trống"},
		},
		combos:  []model.Combo{{ID: 2, Name: "Coke", Price: 30000}, {ID: 1, Name: "Popcorn", Price: 50000}},
		bills:   map[int64]model.Bill{},
		tickets: map[int64]model.Ticket{},
		next:    100,
	}
}

func (s *stubAPI) CreateBill(ctx context.Context, d model.BillDraft) (model.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	b := model.Bill{ID: s.next, UserID: d.UserID}
	s.bills[b.ID] = b
	return b, nil
}

func (s *stubAPI) GetBill(ctx context.Context, id int64) (model.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bills[id]
	if !ok {
		return model.Bill{}, cinemaapi.ErrNotFound
	}
	return b, nil
}

func (s *stubAPI) UpdateBill(ctx context.Context, id int64, p model.BillPayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bills[id]
	b.PaymentMethod, b.PaymentStatus, b.PaymentAt = p.PaymentMethod, p.PaymentStatus, p.PaymentAt
	s.bills[id] = b
	return nil
}

func (s *stubAPI) CreateBillCombo(ctx context.Context, line model.BillCombo) error { return nil }

func (s *stubAPI) SeatsByRoom(ctx context.Context, roomID int64) ([]model.Seat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seatsErr != nil {
		return nil, s.seatsErr
	}
	out := make([]model.Seat, len(s.seats))
	for i, seat := range s.seats {
		seat.Status = model.ParseSeatStatus(seat.RawStatus)
		out[i] = seat
	}
	return out, nil
}

func (s *stubAPI) TicketsByShowtime(ctx context.Context, showtimeID int64) ([]model.Ticket, error) {
	return nil, nil
}

func (s *stubAPI) TicketsByBill(ctx context.Context, billID int64) ([]model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Ticket
	for _, t := range s.tickets {
		if t.BillID == billID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *stubAPI) CreateTicket(ctx context.Context, d model.TicketDraft) (model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticketErr != nil {
		return model.Ticket{}, s.ticketErr
	}
	s.next++
	t := model.Ticket{ID: s.next, SeatID: d.SeatID, ShowtimeID: d.ShowtimeID, BillID: d.BillID, Price: d.Price, Name: d.Name}
	s.tickets[t.ID] = t
	return t, nil
}

func (s *stubAPI) DeleteTicket(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tickets, id)
	return nil
}

func (s *stubAPI) Combos(ctx context.Context) ([]model.Combo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browseErr != nil {
		return nil, s.browseErr
	}
	return append([]model.Combo(nil), s.combos...), nil
}

func (s *stubAPI) Showtime(ctx context.Context, id int64) (model.Showtime, error) {
	for _, st := range s.showtimes {
		if st.ID == id {
			return st, nil
		}
	}
	return model.Showtime{}, cinemaapi.ErrNotFound
}

func (s *stubAPI) Showtimes(ctx context.Context) ([]model.Showtime, error) {
	if s.browseErr != nil {
		return nil, s.browseErr
	}
	return append([]model.Showtime(nil), s.showtimes...), nil
}

func (s *stubAPI) BillsByUser(ctx context.Context, userID int64) ([]model.Bill, error) {
	if s.browseErr != nil {
		return nil, s.browseErr
	}
	return append([]model.Bill(nil), s.history...), nil
}

// fakeAuth stands in for JWTAuth: X-User carries the user id.
func fakeAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if id := c.Request().Header.Get("X-User"); id != "" {
			var n int64
			for _, r := range id {
				n = n*10 + int64(r-'0')
			}
			c.Set(middleware.CtxUserID, n)
			c.Set(middleware.CtxToken, "tok-"+id)
		}
		return next(c)
	}
}

type testServer struct {
	e        *echo.Echo
	api      *stubAPI
	bills    *store.MemoryStore
	sessions *booking.Manager
}

func newTestServer() *testServer {
	api := newStubAPI()
	bills := store.NewMemoryStore(0)
	sessions := booking.NewManager(booking.Deps{API: api, Bills: bills, Log: zap.NewNop()}, booking.Settings{})

	e := echo.New()
	bh := NewBookingHandler(sessions, api, nil)
	b := e.Group("/v1/booking", fakeAuth)
	b.GET("", bh.State)
	b.DELETE("", bh.Reset)
	b.PUT("/showtime", bh.SelectShowtime)
	b.POST("/seats/:seatId/toggle", bh.ToggleSeat)
	b.POST("/continue", bh.Continue)

	ch := NewCheckoutHandler(sessions, nil)
	c := e.Group("/v1/checkout", fakeAuth)
	c.GET("", ch.Resume)
	c.POST("/confirm", ch.Confirm)

	return &testServer{e: e, api: api, bills: bills, sessions: sessions}
}

func (ts *testServer) do(method, path, user, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if user != "" {
		req.Header.Set("X-User", user)
	}
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	return rec
}
