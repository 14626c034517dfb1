package booking

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/cinema-booking/internal/cinemaapi"
	"github.com/iliyamo/cinema-booking/internal/model"
)

type stage int

const (
	stageIdle     stage = iota // no showtime selected
	stageLoading               // bill creation / seat fetch in progress
	stageSeats                 // seat selection open
	stageCheckout              // handed off to checkout; seats are read-only
)

// Session is one customer's booking in progress.  It owns the active bill,
// the seat directory and sold set of the selected showtime, the optimistic
// selection, the seat→ticket map and the toggle queue feeding the upstream
// API.  All fields are guarded by mu; upstream calls are made without it.
type Session struct {
	deps     Deps
	settings Settings
	log      *zap.Logger
	root     context.Context

	mu      sync.Mutex
	user    User
	gen     uint64 // bumped on every showtime selection and reset
	stage   stage
	expired bool // a queued call hit 401 with the current token

	cancelInit  context.CancelFunc
	cancelQueue context.CancelFunc
	queue       *ToggleQueue

	showtime *model.Showtime
	bill     *model.Bill
	dir      *Directory
	sold     SoldSet
	selected []model.Seat
	tickets  map[int64]int64 // seat id → ticket id, for tickets live upstream
	queued   map[int64]int   // seat id → tasks queued or in flight
	handoff  *Handoff
}

func newSession(root context.Context, user User, deps Deps, settings Settings) *Session {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	s := &Session{
		deps:     deps,
		settings: settings.withDefaults(),
		log:      log.With(zap.Int64("user_id", user.ID)),
		root:     root,
		user:     user,
	}
	s.clearLocked()
	return s
}

// setToken records the caller's latest bearer token.
func (s *Session) setToken(token string) {
	s.mu.Lock()
	if token != s.user.Token {
		s.user.Token = token
		s.expired = false
	}
	s.mu.Unlock()
}

// authed attaches the session's bearer token to ctx.
func (s *Session) authed(ctx context.Context) context.Context {
	s.mu.Lock()
	tok := s.user.Token
	s.mu.Unlock()
	return cinemaapi.WithToken(ctx, tok)
}

// clearLocked drops everything tied to the current bill.
func (s *Session) clearLocked() {
	s.showtime = nil
	s.bill = nil
	s.dir = NewDirectory(nil)
	s.sold = SoldSet{}
	s.selected = nil
	s.tickets = map[int64]int64{}
	s.queued = map[int64]int{}
	s.handoff = nil
	s.stage = stageIdle
}

// resetLocked abandons any initialization and queue of the previous bill
// and clears local state.  Work still in flight observes the generation
// change (and its cancelled context) and discards its result.
func (s *Session) resetLocked() {
	s.gen++
	if s.cancelInit != nil {
		s.cancelInit()
		s.cancelInit = nil
	}
	if s.cancelQueue != nil {
		s.cancelQueue()
		s.cancelQueue = nil
	}
	s.queue = nil
	s.clearLocked()
}

// Reset abandons the current booking, e.g. when the user navigates away.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

// SelectShowtime starts a fresh transaction for st: any previous
// initialization is cancelled, the selection is cleared, a new empty bill is
// created upstream, and the room's seat directory and the showtime's sold
// seats are fetched in parallel.  Only when all three succeed does the
// session accept toggles.  On failure the showtime is cleared and an
// *InitError is returned.  If another SelectShowtime call overtakes this
// one, ErrSuperseded is returned and nothing is applied.
func (s *Session) SelectShowtime(ctx context.Context, st model.Showtime) (State, error) {
	s.mu.Lock()
	prev := s.queue
	s.resetLocked()
	gen := s.gen
	initCtx, cancel := context.WithCancel(ctx)
	s.cancelInit = cancel
	s.showtime = &st
	s.stage = stageLoading
	userID := s.user.ID
	s.mu.Unlock()
	defer cancel()

	// The old worker was cancelled above; let its in-flight call unwind so
	// no request for the previous bill overlaps the new one.
	if prev != nil {
		select {
		case <-prev.Done():
		case <-initCtx.Done():
			return State{}, s.failInit(gen, st.ID, "stop previous queue", initCtx.Err())
		}
	}

	callCtx := s.authed(initCtx)
	bill, err := s.deps.API.CreateBill(callCtx, model.NewBillDraft(userID))
	if err != nil {
		return State{}, s.failInit(gen, st.ID, "create bill", err)
	}

	var (
		seats   []model.Seat
		tickets []model.Ticket
	)
	g, gctx := errgroup.WithContext(callCtx)
	g.Go(func() error {
		var err error
		seats, err = s.deps.API.SeatsByRoom(gctx, st.RoomID)
		return err
	})
	g.Go(func() error {
		var err error
		tickets, err = s.deps.API.TicketsByShowtime(gctx, st.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return State{}, s.failInit(gen, st.ID, "load seats", err)
	}

	s.mu.Lock()
	if gen != s.gen || initCtx.Err() != nil {
		s.mu.Unlock()
		s.log.Info("discarding stale showtime initialization", zap.Int64("showtime_id", st.ID), zap.Int64("bill_id", bill.ID))
		return State{}, ErrSuperseded
	}
	s.bill = &bill
	s.handoff = nil
	s.dir = NewDirectory(seats)
	s.sold = NewSoldSet(tickets)
	s.stage = stageSeats
	s.cancelInit = nil
	qctx, qcancel := context.WithCancel(s.root)
	s.cancelQueue = qcancel
	s.queue = newToggleQueue(qctx, s.process(gen))
	state := s.stateLocked()
	s.mu.Unlock()

	if err := s.deps.Bills.Save(ctx, userID, bill.ID); err != nil {
		s.log.Warn("persisting active bill failed", zap.Int64("bill_id", bill.ID), zap.Error(err))
	}
	s.log.Info("showtime selected",
		zap.Int64("showtime_id", st.ID),
		zap.Int64("room_id", st.RoomID),
		zap.Int64("bill_id", bill.ID),
		zap.Int("seats", len(seats)),
		zap.Int("sold", len(state.SoldSeatIDs)),
	)
	return state, nil
}

func (s *Session) failInit(gen uint64, showtimeID int64, step string, err error) error {
	s.mu.Lock()
	current := gen == s.gen
	if current {
		s.resetLocked()
	}
	s.mu.Unlock()
	if !current {
		return ErrSuperseded
	}
	s.log.Warn("showtime initialization failed", zap.Int64("showtime_id", showtimeID), zap.String("step", step), zap.Error(err))
	return &InitError{ShowtimeID: showtimeID, Step: step, Err: err}
}

// Toggle flips the selection of one seat.  The local selection changes
// immediately and an add or remove task is queued for the upstream API.
// Sold, unavailable and unknown seats, and a selection beyond MaxSeats, are
// rejected before anything is queued.
func (s *Session) Toggle(ctx context.Context, seatID int64) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.expired:
		return s.stateLocked(), cinemaapi.ErrUnauthorized
	case s.stage == stageCheckout:
		return s.stateLocked(), ErrLocked
	case s.bill == nil || s.queue == nil:
		return s.stateLocked(), ErrNotReady
	}
	seat, ok := s.dir.Seat(seatID)
	if !ok || !s.dir.Selectable(seatID, s.sold) {
		return s.stateLocked(), ErrSeatUnavailable
	}

	before := s.selected
	kind := taskAdd
	if i := s.selectedIndexLocked(seatID); i >= 0 {
		kind = taskRemove
		s.selected = append(s.selected[:i:i], s.selected[i+1:]...)
	} else {
		switch {
		case len(s.selected) >= s.settings.MaxSeats:
			return s.stateLocked(), ErrSelectionLimit
		case s.heldCountLocked() >= s.settings.MaxSeats:
			return s.stateLocked(), ErrRemovalPending
		}
		s.selected = append(s.selected[:len(s.selected):len(s.selected)], seat)
	}
	if !s.queue.push(toggleTask{kind: kind, seat: seat}) {
		s.selected = before
		return s.stateLocked(), ErrNotReady
	}
	s.queued[seatID]++
	return s.stateLocked(), nil
}

// heldCountLocked counts seats that are selected or still hold a live
// ticket upstream (a remove not yet processed).  Counting the latter keeps
// the number of live tickets within MaxSeats even if a remove fails and
// its seat has to be restored.
func (s *Session) heldCountLocked() int {
	n := len(s.selected)
	for seatID := range s.tickets {
		if s.selectedIndexLocked(seatID) < 0 {
			n++
		}
	}
	return n
}

func (s *Session) selectedIndexLocked(seatID int64) int {
	for i, seat := range s.selected {
		if seat.ID == seatID {
			return i
		}
	}
	return -1
}

// process returns the queue handler bound to generation gen.
func (s *Session) process(gen uint64) func(context.Context, toggleTask) {
	return func(ctx context.Context, t toggleTask) {
		switch t.kind {
		case taskAdd:
			s.addTicket(ctx, gen, t.seat)
		case taskRemove:
			s.removeTicket(ctx, gen, t.seat)
		}
	}
}

// doneLocked records that one task for seatID finished and reports whether
// later tasks for the same seat are still waiting.
func (s *Session) doneLocked(seatID int64) (more bool) {
	if n := s.queued[seatID] - 1; n > 0 {
		s.queued[seatID] = n
		return true
	}
	delete(s.queued, seatID)
	return false
}

func (s *Session) addTicket(ctx context.Context, gen uint64, seat model.Seat) {
	s.mu.Lock()
	if gen != s.gen || s.bill == nil {
		s.mu.Unlock()
		return
	}
	if _, held := s.tickets[seat.ID]; held {
		// A failed remove left the ticket alive; it already covers this add.
		s.doneLocked(seat.ID)
		s.mu.Unlock()
		return
	}
	draft := model.TicketDraft{
		UserID:     s.user.ID,
		SeatID:     seat.ID,
		Name:       seat.Label(),
		ShowtimeID: s.showtime.ID,
		Price:      s.settings.SeatPrice,
		BillID:     s.bill.ID,
	}
	tok := s.user.Token
	s.mu.Unlock()

	ticket, err := s.deps.API.CreateTicket(cinemaapi.WithToken(ctx, tok), draft)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	more := s.doneLocked(seat.ID)
	if err != nil {
		s.expired = s.expired || errors.Is(err, cinemaapi.ErrUnauthorized)
		s.log.Warn("ticket create failed, rolling back seat",
			zap.Int64("seat_id", seat.ID), zap.String("seat", seat.Label()), zap.Error(err))
		if !more {
			if i := s.selectedIndexLocked(seat.ID); i >= 0 {
				s.selected = append(s.selected[:i:i], s.selected[i+1:]...)
			}
		}
		return
	}
	s.tickets[seat.ID] = ticket.ID
}

func (s *Session) removeTicket(ctx context.Context, gen uint64, seat model.Seat) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	ticketID, held := s.tickets[seat.ID]
	if !held {
		// The add never completed; nothing exists upstream.
		s.doneLocked(seat.ID)
		s.mu.Unlock()
		return
	}
	tok := s.user.Token
	s.mu.Unlock()

	err := s.deps.API.DeleteTicket(cinemaapi.WithToken(ctx, tok), ticketID)
	if errors.Is(err, cinemaapi.ErrNotFound) {
		err = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	more := s.doneLocked(seat.ID)
	if err != nil {
		s.expired = s.expired || errors.Is(err, cinemaapi.ErrUnauthorized)
		s.log.Warn("ticket delete failed, restoring seat",
			zap.Int64("seat_id", seat.ID), zap.Int64("ticket_id", ticketID), zap.Error(err))
		if !more && s.selectedIndexLocked(seat.ID) < 0 {
			s.selected = append(s.selected, seat)
		}
		return
	}
	delete(s.tickets, seat.ID)
}

// WaitIdle blocks until every queued toggle has been processed.
func (s *Session) WaitIdle(ctx context.Context) error {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		return nil
	}
	return q.Wait(ctx)
}

// State returns a snapshot for rendering.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Syncing reports whether toggles are queued or in flight.
func (s *Session) Syncing() bool {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	return q != nil && q.Syncing()
}
