package model

import "encoding/json"

// Ticket binds one seat of one showtime to one bill.
type Ticket struct {
	ID         int64  `json:"ticketId"`
	SeatID     int64  `json:"seatId"`
	ShowtimeID int64  `json:"showtimeId"`
	BillID     int64  `json:"billId"`
	UserID     int64  `json:"userId,omitempty"`
	Price      int64  `json:"price"`
	Name       string `json:"ticketName"`
}

// UnmarshalJSON accepts id for ticketId and nested seat/showtime/bill objects.
func (t *Ticket) UnmarshalJSON(data []byte) error {
	type plain Ticket
	var raw struct {
		plain
		ID   *int64 `json:"id"`
		Seat *struct {
			SeatID int64 `json:"seatId"`
		} `json:"seat"`
		Showtime *struct {
			ShowtimeID int64 `json:"showtimeId"`
		} `json:"showtime"`
		Bill *struct {
			BillID int64 `json:"billId"`
		} `json:"bill"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = Ticket(raw.plain)
	if t.ID == 0 && raw.ID != nil {
		t.ID = *raw.ID
	}
	if t.SeatID == 0 && raw.Seat != nil {
		t.SeatID = raw.Seat.SeatID
	}
	if t.ShowtimeID == 0 && raw.Showtime != nil {
		t.ShowtimeID = raw.Showtime.ShowtimeID
	}
	if t.BillID == 0 && raw.Bill != nil {
		t.BillID = raw.Bill.BillID
	}
	return nil
}

// TicketDraft is the body of the create-ticket call.
type TicketDraft struct {
	UserID     int64  `json:"userId"`
	SeatID     int64  `json:"seatId"`
	Name       string `json:"ticketName"`
	ShowtimeID int64  `json:"showtimeId"`
	Price      int64  `json:"price"`
	BillID     int64  `json:"billId"`
}
