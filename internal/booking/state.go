package booking

import "github.com/iliyamo/cinema-booking/internal/model"

// SelectedSeat is one seat of the current selection.  TicketID is 0 while
// the seat's ticket has not been created upstream yet.
type SelectedSeat struct {
	SeatID   int64  `json:"seatId"`
	Label    string `json:"label"`
	TicketID int64  `json:"ticketId,omitempty"`
}

// State is what the booking page renders.  CanContinue is false whenever
// toggles are queued or in flight.
type State struct {
	Showtime    *model.Showtime `json:"showtime,omitempty"`
	BillID      int64           `json:"billId,omitempty"`
	Ready       bool            `json:"ready"`
	Selected    []SelectedSeat  `json:"selected"`
	SoldSeatIDs []int64         `json:"soldSeatIds"`
	UnitPrice   int64           `json:"unitPrice"`
	Subtotal    int64           `json:"subtotal"`
	Syncing     bool            `json:"syncing"`
	Pending     int             `json:"pending"`
	CanContinue bool            `json:"canContinue"`
	SeatMap     SeatMap         `json:"seatMap"`
}

// Handoff is what the seat step carries forward to checkout: the bill, the
// confirmed seats and their subtotal.
type Handoff struct {
	Bill     model.Bill      `json:"bill"`
	Showtime *model.Showtime `json:"showtime,omitempty"`
	Seats    []SelectedSeat  `json:"seats"`
	Subtotal int64           `json:"subtotal"`
}

// SeatNames lists the labels of the handed-off seats.
func (h Handoff) SeatNames() []string {
	out := make([]string, 0, len(h.Seats))
	for _, s := range h.Seats {
		out = append(out, s.Label)
	}
	return out
}

func (s *Session) stateLocked() State {
	st := State{
		Showtime:    s.showtime,
		Ready:       s.stage == stageSeats,
		Selected:    s.selectedLocked(),
		SoldSeatIDs: s.sold.IDs(),
		UnitPrice:   s.settings.SeatPrice,
	}
	if s.bill != nil {
		st.BillID = s.bill.ID
	}
	if s.queue != nil {
		st.Pending = s.queue.Pending()
		st.Syncing = s.queue.Syncing()
	}
	st.Subtotal = int64(len(st.Selected)) * s.settings.SeatPrice
	st.CanContinue = st.Ready && !st.Syncing && len(st.Selected) > 0

	ids := make([]int64, 0, len(s.selected))
	for _, seat := range s.selected {
		ids = append(ids, seat.ID)
	}
	st.SeatMap = BuildSeatMap(s.dir.Seats(), ids, s.sold, s.stage != stageSeats)
	return st
}

func (s *Session) selectedLocked() []SelectedSeat {
	out := make([]SelectedSeat, 0, len(s.selected))
	for _, seat := range s.selected {
		out = append(out, SelectedSeat{SeatID: seat.ID, Label: seat.Label(), TicketID: s.tickets[seat.ID]})
	}
	return out
}
