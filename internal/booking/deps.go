package booking

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/queue"
)

// Backend is the subset of the upstream REST API the booking workflow
// drives.  *cinemaapi.Client implements it.
type Backend interface {
	CreateBill(ctx context.Context, draft model.BillDraft) (model.Bill, error)
	GetBill(ctx context.Context, id int64) (model.Bill, error)
	UpdateBill(ctx context.Context, id int64, p model.BillPayment) error
	CreateBillCombo(ctx context.Context, line model.BillCombo) error
	SeatsByRoom(ctx context.Context, roomID int64) ([]model.Seat, error)
	TicketsByShowtime(ctx context.Context, showtimeID int64) ([]model.Ticket, error)
	TicketsByBill(ctx context.Context, billID int64) ([]model.Ticket, error)
	CreateTicket(ctx context.Context, draft model.TicketDraft) (model.Ticket, error)
	DeleteTicket(ctx context.Context, id int64) error
	Combos(ctx context.Context) ([]model.Combo, error)
	Showtime(ctx context.Context, id int64) (model.Showtime, error)
}

// BillStore persists the id of each user's active bill so the checkout
// stage can be resumed after a reload.  Load returns store.ErrNotFound when
// nothing is saved.
type BillStore interface {
	Save(ctx context.Context, userID, billID int64) error
	Load(ctx context.Context, userID int64) (int64, error)
	Delete(ctx context.Context, userID int64) error
}

// EventPublisher announces finalized bookings.
type EventPublisher interface {
	PublishBookingConfirmed(ctx context.Context, ev queue.BookingConfirmedEvent) error
}

// Deps are the collaborators shared by every session of a Manager.
type Deps struct {
	API    Backend
	Bills  BillStore
	Events EventPublisher // optional
	Log    *zap.Logger    // optional
}

// Settings tune the workflow.  Zero values fall back to the defaults.
type Settings struct {
	SeatPrice int64
	MaxSeats  int
	Now       func() time.Time
}

const (
	DefaultSeatPrice = 75000
	DefaultMaxSeats  = 8
)

func (s Settings) withDefaults() Settings {
	if s.SeatPrice <= 0 {
		s.SeatPrice = DefaultSeatPrice
	}
	if s.MaxSeats <= 0 {
		s.MaxSeats = DefaultMaxSeats
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	return s
}

// User identifies the customer a session belongs to, plus the bearer token
// forwarded on every upstream call made on their behalf.
type User struct {
	ID    int64
	Token string
}
