package booking

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned by Toggle while no bill exists for the session,
	// i.e. before a showtime has been selected or while it is initializing.
	ErrNotReady = errors.New("booking: no active bill")
	// ErrSeatUnavailable rejects toggles on sold, unavailable or unknown seats.
	ErrSeatUnavailable = errors.New("booking: seat is not available")
	// ErrSelectionLimit rejects selecting more than MaxSeats seats.
	ErrSelectionLimit = errors.New("booking: seat selection limit reached")
	// ErrRemovalPending is a transient ErrSelectionLimit: the limit is only
	// reached because a deselected seat still holds its ticket while the
	// removal syncs.  Retrying shortly succeeds.
	ErrRemovalPending = fmt.Errorf("%w: a seat removal is still syncing, retry shortly", ErrSelectionLimit)
	// ErrSyncing is returned by Continue while toggles are still queued or in flight.
	ErrSyncing = errors.New("booking: seat changes are still syncing")
	// ErrNoSeats is returned by Continue when nothing is selected.
	ErrNoSeats = errors.New("booking: no seats selected")
	// ErrLocked rejects toggles once the bill has moved on to checkout.
	ErrLocked = errors.New("booking: bill is already in checkout")
	// ErrSuperseded means a newer showtime selection replaced this one
	// while it was still initializing; its result was discarded.
	ErrSuperseded = errors.New("booking: showtime selection superseded")
	// ErrNothingToResume means the checkout stage has neither an in-memory
	// hand-off nor a persisted bill id; the client must start over.
	ErrNothingToResume = errors.New("booking: nothing to resume")
	// ErrSessionExpired means the persisted bill could not be fetched (or is
	// already paid); the client must start over.
	ErrSessionExpired = errors.New("booking: booking session expired")
	// ErrUnknownCombo rejects checkout lines for combos the API does not list.
	ErrUnknownCombo = errors.New("booking: unknown combo")
)

// InitError reports a failed showtime initialization (bill creation, seat
// directory or sold-seat fetch).  The showtime has been cleared; the user
// has to pick one again.
type InitError struct {
	ShowtimeID int64
	Step       string
	Err        error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("booking: init showtime %d: %s: %v", e.ShowtimeID, e.Step, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }
