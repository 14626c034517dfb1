package booking

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/cinemaapi"
	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/queue"
	"github.com/iliyamo/cinema-booking/internal/store"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeBackend is an in-memory cinema API.  When gate is set, ticket calls
// block until the test sends on it, which makes "faster than the network"
// interleavings deterministic.
type fakeBackend struct {
	mu sync.Mutex

	nextBill   int64
	nextTicket int64

	rooms     map[int64][]model.Seat   // room id → seats
	sold      map[int64][]model.Ticket // showtime id → sold tickets
	showtimes map[int64]model.Showtime
	combos    []model.Combo

	bills    map[int64]model.Bill
	live     map[int64]model.Ticket // ticket id → ticket
	lines    []model.BillCombo
	payments map[int64]model.BillPayment

	createBillErr error
	seatsErr      error
	getBillErr    error
	ticketsErr    error
	failCreate    map[int64]error // seat id → error
	failDelete    map[int64]error // seat id → error
	tokens        []string        // bearer tokens seen on ticket calls

	gate      chan struct{} // ticket calls
	seatsGate chan struct{} // SeatsByRoom

	calls       []string
	inFlight    int
	maxInFlight int
	violations  int // a second live ticket for the same bill and seat
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		nextBill:   100,
		nextTicket: 500,
		rooms:      map[int64][]model.Seat{},
		sold:       map[int64][]model.Ticket{},
		showtimes:  map[int64]model.Showtime{},
		bills:      map[int64]model.Bill{},
		live:       map[int64]model.Ticket{},
		payments:   map[int64]model.BillPayment{},
		failCreate: map[int64]error{},
		failDelete: map[int64]error{},
	}
}

func seat(id int64, row string, n int, status string) model.Seat {
	return model.Seat{ID: id, RoomID: 1, Row: row, Number: n, Status: model.ParseSeatStatus(status), RawStatus: status}
}

// rowOf returns n available seats A1..An with ids first..first+n-1.
func rowOf(first int64, row string, n int) []model.Seat {
	out := make([]model.Seat, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, seat(first+int64(i), row, i+1, "Trống"))
	}
	return out
}

func (f *fakeBackend) addShowtime(id, roomID int64, seats []model.Seat, soldSeatIDs ...int64) model.Showtime {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := model.Showtime{ID: id, RoomID: roomID, RoomName: fmt.Sprintf("Room %d", roomID), Title: "Dune", CinemaName: "CGV", Date: "2025-03-02", StartTime: "19:30"}
	f.showtimes[id] = st
	f.rooms[roomID] = seats
	for _, sid := range soldSeatIDs {
		f.sold[id] = append(f.sold[id], model.Ticket{ID: 9000 + sid, SeatID: sid, ShowtimeID: id})
	}
	return st
}

func (f *fakeBackend) enter(kind string, label string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, kind+":"+label)
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
}

func (f *fakeBackend) leave() {
	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
}

func wait(ctx context.Context, gate chan struct{}) error {
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeBackend) CreateBill(ctx context.Context, d model.BillDraft) (model.Bill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createBillErr != nil {
		return model.Bill{}, f.createBillErr
	}
	f.nextBill++
	b := model.Bill{ID: f.nextBill, UserID: d.UserID, TicketIDs: []int64{}, ComboIDs: []int64{}}
	f.bills[b.ID] = b
	return b, nil
}

func (f *fakeBackend) GetBill(ctx context.Context, id int64) (model.Bill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getBillErr != nil {
		return model.Bill{}, f.getBillErr
	}
	b, ok := f.bills[id]
	if !ok {
		return model.Bill{}, fmt.Errorf("%w: bill %d", cinemaapi.ErrNotFound, id)
	}
	return b, nil
}

func (f *fakeBackend) UpdateBill(ctx context.Context, id int64, p model.BillPayment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bills[id]
	if !ok {
		return cinemaapi.ErrNotFound
	}
	b.PaymentMethod, b.PaymentStatus, b.PaymentAt = p.PaymentMethod, p.PaymentStatus, p.PaymentAt
	f.bills[id] = b
	f.payments[id] = p
	return nil
}

func (f *fakeBackend) CreateBillCombo(ctx context.Context, line model.BillCombo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, line)
	return nil
}

func (f *fakeBackend) SeatsByRoom(ctx context.Context, roomID int64) ([]model.Seat, error) {
	if err := wait(ctx, f.seatsGate); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seatsErr != nil {
		return nil, f.seatsErr
	}
	return append([]model.Seat(nil), f.rooms[roomID]...), nil
}

func (f *fakeBackend) TicketsByShowtime(ctx context.Context, showtimeID int64) ([]model.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Ticket(nil), f.sold[showtimeID]...), nil
}

func (f *fakeBackend) TicketsByBill(ctx context.Context, billID int64) ([]model.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ticketsErr != nil {
		return nil, f.ticketsErr
	}
	var out []model.Ticket
	for _, t := range f.live {
		if t.BillID == billID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeBackend) CreateTicket(ctx context.Context, d model.TicketDraft) (model.Ticket, error) {
	f.enter("add", d.Name)
	defer f.leave()
	if err := wait(ctx, f.gate); err != nil {
		return model.Ticket{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, cinemaapi.TokenFrom(ctx))
	if err := f.failCreate[d.SeatID]; err != nil {
		return model.Ticket{}, err
	}
	for _, t := range f.live {
		if t.BillID == d.BillID && t.SeatID == d.SeatID {
			f.violations++
		}
	}
	f.nextTicket++
	t := model.Ticket{ID: f.nextTicket, SeatID: d.SeatID, ShowtimeID: d.ShowtimeID, BillID: d.BillID, UserID: d.UserID, Price: d.Price, Name: d.Name}
	f.live[t.ID] = t
	return t, nil
}

func (f *fakeBackend) DeleteTicket(ctx context.Context, id int64) error {
	f.mu.Lock()
	label := f.live[id].Name
	f.mu.Unlock()
	f.enter("del", label)
	defer f.leave()
	if err := wait(ctx, f.gate); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.live[id]
	if !ok {
		return cinemaapi.ErrNotFound
	}
	if err := f.failDelete[t.SeatID]; err != nil {
		return err
	}
	delete(f.live, id)
	return nil
}

func (f *fakeBackend) Combos(ctx context.Context) ([]model.Combo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Combo(nil), f.combos...), nil
}

func (f *fakeBackend) Showtime(ctx context.Context, id int64) (model.Showtime, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.showtimes[id]
	if !ok {
		return model.Showtime{}, cinemaapi.ErrNotFound
	}
	return st, nil
}

func (f *fakeBackend) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// liveFor counts live tickets of a bill, optionally for one seat (0 = all).
func (f *fakeBackend) liveFor(billID, seatID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.live {
		if t.BillID == billID && (seatID == 0 || t.SeatID == seatID) {
			n++
		}
	}
	return n
}

func (f *fakeBackend) release(n int) {
	for i := 0; i < n; i++ {
		f.gate <- struct{}{}
	}
}

type fakePublisher struct {
	mu     sync.Mutex
	events []queue.BookingConfirmedEvent
	err    error
}

func (p *fakePublisher) PublishBookingConfirmed(ctx context.Context, ev queue.BookingConfirmedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

type harness struct {
	api    *fakeBackend
	bills  *store.MemoryStore
	events *fakePublisher
	mgr    *Manager
}

func newHarness() *harness {
	h := &harness{api: newFakeBackend(), bills: store.NewMemoryStore(0), events: &fakePublisher{}}
	h.mgr = NewManager(
		Deps{API: h.api, Bills: h.bills, Events: h.events, Log: zap.NewNop()},
		Settings{Now: func() time.Time { return testNow }},
	)
	return h
}

func selectedIDs(st State) []int64 {
	out := make([]int64, 0, len(st.Selected))
	for _, s := range st.Selected {
		out = append(out, s.SeatID)
	}
	return out
}
