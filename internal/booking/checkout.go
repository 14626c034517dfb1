package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/cinema-booking/internal/cinemaapi"
	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/queue"
	"github.com/iliyamo/cinema-booking/internal/store"
)

// ComboLine is one priced combo of a receipt.
type ComboLine struct {
	ComboID  int64  `json:"comboId"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
	Total    int64  `json:"total"`
}

// Receipt summarizes a paid bill.
type Receipt struct {
	BillID     int64           `json:"billId"`
	Showtime   *model.Showtime `json:"showtime,omitempty"`
	Seats      []SelectedSeat  `json:"seats"`
	SeatTotal  int64           `json:"seatTotal"`
	Combos     []ComboLine     `json:"combos"`
	ComboTotal int64           `json:"comboTotal"`
	GrandTotal int64           `json:"grandTotal"`
	PaidAt     string          `json:"paidAt"`
}

// Continue hands the bill over to checkout.  It fails with ErrSyncing while
// any toggle is queued or in flight and with ErrNoSeats when nothing is
// selected.  Afterwards the seat map is read-only.
func (s *Session) Continue(ctx context.Context) (Handoff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expired {
		return Handoff{}, cinemaapi.ErrUnauthorized
	}
	return s.continueLocked()
}

func (s *Session) continueLocked() (Handoff, error) {
	if s.handoff != nil {
		return *s.handoff, nil
	}
	if s.bill == nil || s.stage != stageSeats {
		return Handoff{}, ErrNotReady
	}
	if s.queue != nil && s.queue.Syncing() {
		return Handoff{}, ErrSyncing
	}
	if len(s.selected) == 0 {
		return Handoff{}, ErrNoSeats
	}
	seats := s.selectedLocked()
	h := &Handoff{
		Bill:     *s.bill,
		Showtime: s.showtime,
		Seats:    seats,
		Subtotal: int64(len(seats)) * s.settings.SeatPrice,
	}
	h.Bill.TicketIDs = make([]int64, 0, len(seats))
	for _, seat := range seats {
		h.Bill.TicketIDs = append(h.Bill.TicketIDs, seat.TicketID)
	}
	s.handoff = h
	s.stage = stageCheckout
	s.log.Info("bill handed off to checkout", zap.Int64("bill_id", h.Bill.ID), zap.Int("seats", len(seats)))
	return *h, nil
}

// Resume returns what the checkout stage should show.  A hand-off still in
// memory is returned as is (an open seat step is handed off first).
// Otherwise the bill id persisted for the user is fetched from the API and
// its seats are rebuilt from the bill's tickets.  With nothing persisted
// the result is ErrNothingToResume; when the bill cannot be fetched, has
// already been paid or holds no tickets, the persisted id is dropped and the
// result is ErrSessionExpired.  While a showtime is still initializing the
// result is ErrNotReady.
func (s *Session) Resume(ctx context.Context) (Handoff, error) {
	s.mu.Lock()
	if s.handoff != nil || (s.bill != nil && s.stage == stageSeats) {
		defer s.mu.Unlock()
		return s.continueLocked()
	}
	if s.stage != stageIdle {
		s.mu.Unlock()
		return Handoff{}, ErrNotReady
	}
	gen := s.gen
	userID := s.user.ID
	s.mu.Unlock()

	billID, err := s.deps.Bills.Load(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return Handoff{}, ErrNothingToResume
	}
	if err != nil {
		return Handoff{}, fmt.Errorf("booking: load active bill: %w", err)
	}

	callCtx := s.authed(ctx)
	bill, err := s.deps.API.GetBill(callCtx, billID)
	if errors.Is(err, cinemaapi.ErrUnauthorized) {
		return Handoff{}, err
	}
	if err == nil && bill.PaymentStatus == model.PaymentStatusDone {
		err = errors.New("bill already paid")
	}
	if err != nil {
		s.log.Info("active bill cannot be resumed", zap.Int64("bill_id", billID), zap.Error(err))
		if derr := s.deps.Bills.Delete(ctx, userID); derr != nil {
			s.log.Warn("dropping active bill failed", zap.Int64("bill_id", billID), zap.Error(derr))
		}
		return Handoff{}, fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}

	tickets, err := s.deps.API.TicketsByBill(callCtx, bill.ID)
	switch {
	case errors.Is(err, cinemaapi.ErrUnauthorized):
		return Handoff{}, err
	case err != nil:
		s.log.Warn("rebuilding seats of resumed bill failed", zap.Int64("bill_id", bill.ID), zap.Error(err))
		return Handoff{}, fmt.Errorf("%w: rebuild seats: %w", ErrSessionExpired, err)
	case len(tickets) == 0:
		s.log.Info("resumed bill holds no tickets", zap.Int64("bill_id", bill.ID))
		if derr := s.deps.Bills.Delete(ctx, userID); derr != nil {
			s.log.Warn("dropping active bill failed", zap.Int64("bill_id", billID), zap.Error(derr))
		}
		return Handoff{}, fmt.Errorf("%w: %w", ErrSessionExpired, ErrNoSeats)
	}
	h := Handoff{Bill: bill, Seats: make([]SelectedSeat, 0, len(tickets))}
	var showtimeID int64
	sort.Slice(tickets, func(i, j int) bool { return tickets[i].ID < tickets[j].ID })
	for _, t := range tickets {
		h.Seats = append(h.Seats, SelectedSeat{SeatID: t.SeatID, Label: t.Name, TicketID: t.ID})
		price := t.Price
		if price <= 0 {
			price = s.settings.SeatPrice
		}
		h.Subtotal += price
		if showtimeID == 0 {
			showtimeID = t.ShowtimeID
		}
	}
	if showtimeID != 0 {
		if st, err := s.deps.API.Showtime(callCtx, showtimeID); err == nil {
			h.Showtime = &st
		} else {
			s.log.Warn("loading showtime of resumed bill failed", zap.Int64("showtime_id", showtimeID), zap.Error(err))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.stage != stageIdle {
		return Handoff{}, ErrSuperseded
	}
	s.bill = &h.Bill
	s.showtime = h.Showtime
	for _, seat := range h.Seats {
		s.tickets[seat.SeatID] = seat.TicketID
	}
	s.handoff = &h
	s.stage = stageCheckout
	s.log.Info("bill resumed", zap.Int64("bill_id", bill.ID), zap.Int("seats", len(h.Seats)))
	return h, nil
}

// Checkout finalizes the handed-off bill: one bill-combo line per combo
// with a positive quantity, then the payment update.  On success the
// persisted bill id is dropped, a booking.confirmed event is published and
// the session is reset.
func (s *Session) Checkout(ctx context.Context, quantities map[int64]int) (Receipt, error) {
	s.mu.Lock()
	if s.expired {
		s.mu.Unlock()
		return Receipt{}, cinemaapi.ErrUnauthorized
	}
	if s.handoff == nil {
		s.mu.Unlock()
		return Receipt{}, ErrNothingToResume
	}
	if len(s.handoff.Seats) == 0 {
		s.mu.Unlock()
		return Receipt{}, ErrNoSeats
	}
	h := *s.handoff
	gen := s.gen
	userID := s.user.ID
	s.mu.Unlock()

	callCtx := s.authed(ctx)
	lines, err := s.priceCombos(callCtx, quantities)
	if err != nil {
		return Receipt{}, err
	}

	g, gctx := errgroup.WithContext(callCtx)
	for _, l := range lines {
		line := model.BillCombo{BillID: h.Bill.ID, ComboID: l.ComboID, Quantity: l.Quantity}
		g.Go(func() error { return s.deps.API.CreateBillCombo(gctx, line) })
	}
	if err := g.Wait(); err != nil {
		return Receipt{}, fmt.Errorf("booking: attach combos: %w", err)
	}

	paidAt := s.settings.Now().UTC()
	payment := model.BillPayment{
		UserID:        userID,
		PaymentMethod: model.PaymentMethodBanking,
		PaymentStatus: model.PaymentStatusDone,
		PaymentAt:     paidAt.Format(time.RFC3339),
	}
	if err := s.deps.API.UpdateBill(callCtx, h.Bill.ID, payment); err != nil {
		return Receipt{}, fmt.Errorf("booking: pay bill: %w", err)
	}

	r := Receipt{
		BillID:    h.Bill.ID,
		Showtime:  h.Showtime,
		Seats:     h.Seats,
		SeatTotal: h.Subtotal,
		Combos:    lines,
		PaidAt:    payment.PaymentAt,
	}
	for _, l := range lines {
		r.ComboTotal += l.Total
	}
	r.GrandTotal = r.SeatTotal + r.ComboTotal

	s.mu.Lock()
	if gen == s.gen {
		s.resetLocked()
	}
	s.mu.Unlock()
	if err := s.deps.Bills.Delete(ctx, userID); err != nil {
		s.log.Warn("dropping active bill failed", zap.Int64("bill_id", h.Bill.ID), zap.Error(err))
	}
	s.publish(ctx, userID, r, paidAt)
	s.log.Info("bill paid", zap.Int64("bill_id", r.BillID), zap.Int64("grand_total", r.GrandTotal))
	return r, nil
}

// priceCombos resolves quantities against the combo catalogue.  Lines come
// back ordered by combo id; zero and negative quantities are dropped.
func (s *Session) priceCombos(ctx context.Context, quantities map[int64]int) ([]ComboLine, error) {
	lines := []ComboLine{}
	if len(quantities) == 0 {
		return lines, nil
	}
	catalogue, err := s.deps.API.Combos(ctx)
	if err != nil {
		return nil, fmt.Errorf("booking: load combos: %w", err)
	}
	byID := make(map[int64]model.Combo, len(catalogue))
	for _, c := range catalogue {
		byID[c.ID] = c
	}
	for id, qty := range quantities {
		if qty <= 0 {
			continue
		}
		c, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownCombo, id)
		}
		lines = append(lines, ComboLine{ComboID: id, Name: c.Name, Quantity: qty, Price: c.Price, Total: int64(qty) * c.Price})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ComboID < lines[j].ComboID })
	return lines, nil
}

func (s *Session) publish(ctx context.Context, userID int64, r Receipt, at time.Time) {
	if s.deps.Events == nil {
		return
	}
	ev := queue.NewBookingConfirmedEvent(r.BillID, userID, at)
	if st := r.Showtime; st != nil {
		ev.ShowtimeID = st.ID
		ev.CinemaName = st.CinemaName
		ev.RoomName = st.RoomName
		ev.MovieTitle = st.Title
		if t := st.StartsAt(time.Local); !t.IsZero() {
			ev.StartsAt = t.Format(time.RFC3339)
		}
	}
	for _, seat := range r.Seats {
		ev.SeatLabels = append(ev.SeatLabels, seat.Label)
	}
	ev.SeatTotal = r.SeatTotal
	ev.ComboTotal = r.ComboTotal
	ev.GrandTotal = r.GrandTotal
	if err := s.deps.Events.PublishBookingConfirmed(ctx, ev); err != nil {
		s.log.Warn("publishing booking confirmation failed", zap.Int64("bill_id", r.BillID), zap.Error(err))
	}
}
