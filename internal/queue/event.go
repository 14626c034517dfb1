// Package queue carries the booking.confirmed event over RabbitMQ: the
// payload, a publisher used at checkout and a consumer that appends each
// confirmed booking to a log file.
package queue

import (
	"time"

	"github.com/google/uuid"
)

// BookingConfirmedQueue is the durable queue (and routing key on the
// default exchange) the event travels on.
const BookingConfirmedQueue = "booking.confirmed"

// BookingConfirmedEvent is published once a bill has been paid.  It carries
// enough of the showtime and the order for consumers to log or notify
// without calling the cinema API again.
type BookingConfirmedEvent struct {
	EventID     string   `json:"event_id"`
	BillID      int64    `json:"bill_id"`
	UserID      int64    `json:"user_id"`
	ShowtimeID  int64    `json:"showtime_id,omitempty"`
	CinemaName  string   `json:"cinema_name,omitempty"`
	RoomName    string   `json:"room_name,omitempty"`
	MovieTitle  string   `json:"movie_title,omitempty"`
	StartsAt    string   `json:"starts_at,omitempty"`
	SeatLabels  []string `json:"seats"`
	SeatTotal   int64    `json:"seat_total"`
	ComboTotal  int64    `json:"combo_total"`
	GrandTotal  int64    `json:"grand_total"`
	ConfirmedAt string   `json:"confirmed_at"`
}

// NewBookingConfirmedEvent stamps a fresh event id and the confirmation
// time (UTC, RFC 3339).
func NewBookingConfirmedEvent(billID, userID int64, at time.Time) BookingConfirmedEvent {
	return BookingConfirmedEvent{
		EventID:     uuid.NewString(),
		BillID:      billID,
		UserID:      userID,
		SeatLabels:  []string{},
		ConfirmedAt: at.UTC().Format(time.RFC3339),
	}
}
