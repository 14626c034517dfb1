package model

import (
	"encoding/json"
	"strconv"
	"strings"
)

// SeatStatus is the occupancy of a seat as reported by the seat directory
// of a room.  Only SeatAvailable seats may ever be selected.
type SeatStatus int

const (
	SeatAvailable SeatStatus = iota
	SeatUnavailable
	SeatSold
)

func (s SeatStatus) String() string {
	switch s {
	case SeatAvailable:
		return "available"
	case SeatSold:
		return "sold"
	default:
		return "unavailable"
	}
}

// ParseSeatStatus maps the upstream status string onto SeatStatus.  The API
// reports free seats as "Trống" (Vietnamese for empty) or "AVAILABLE";
// anything it does not recognise is treated as unavailable.
func ParseSeatStatus(raw string) SeatStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trống", "available", "free":
		return SeatAvailable
	case "sold", "đã bán", "booked", "reserved":
		return SeatSold
	default:
		return SeatUnavailable
	}
}

// Seat describes one seat of a screening room.  Seats are unique within a
// room by ID and by (Row, Number).
//
// Fields:
//  ID        – upstream seatId.
//  RoomID    – room the seat belongs to.
//  Row       – row label, e.g. "A".
//  Number    – column number within the row, starting at 1.
//  Status    – occupancy parsed from RawStatus.
//  RawStatus – the status string exactly as the API returned it.
type Seat struct {
	ID        int64      `json:"seatId"`
	RoomID    int64      `json:"roomId,omitempty"`
	Row       string     `json:"seatRow"`
	Number    int        `json:"seatNumber"`
	Status    SeatStatus `json:"-"`
	RawStatus string     `json:"status"`
}

// Label is the human readable seat code shown on tickets and the seat map.
func (s Seat) Label() string {
	return s.Row + strconv.Itoa(s.Number)
}

// Available reports whether the directory lists the seat as free.
func (s Seat) Available() bool { return s.Status == SeatAvailable }

// UnmarshalJSON accepts the field spellings the upstream API has used over
// time (seatId/id, seatRow/row/rowLabel, seatNumber/number/column).
func (s *Seat) UnmarshalJSON(b []byte) error {
	var raw struct {
		SeatID     *int64  `json:"seatId"`
		ID         *int64  `json:"id"`
		RoomID     *int64  `json:"roomId"`
		SeatRow    *string `json:"seatRow"`
		Row        *string `json:"row"`
		RowLabel   *string `json:"rowLabel"`
		SeatNumber *int    `json:"seatNumber"`
		Number     *int    `json:"number"`
		Column     *int    `json:"column"`
		Status     string  `json:"status"`
		Room       *struct {
			RoomID int64 `json:"roomId"`
		} `json:"room"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*s = Seat{
		ID:        firstInt64(raw.SeatID, raw.ID),
		RoomID:    firstInt64(raw.RoomID),
		Row:       strings.ToUpper(strings.TrimSpace(firstString(raw.SeatRow, raw.Row, raw.RowLabel))),
		Number:    firstInt(raw.SeatNumber, raw.Number, raw.Column),
		RawStatus: raw.Status,
		Status:    ParseSeatStatus(raw.Status),
	}
	if s.RoomID == 0 && raw.Room != nil {
		s.RoomID = raw.Room.RoomID
	}
	return nil
}

func firstInt64(vs ...*int64) int64 {
	for _, v := range vs {
		if v != nil {
			return *v
		}
	}
	return 0
}

func firstInt(vs ...*int) int {
	for _, v := range vs {
		if v != nil {
			return *v
		}
	}
	return 0
}

func firstString(vs ...*string) string {
	for _, v := range vs {
		if v != nil && *v != "" {
			return *v
		}
	}
	return ""
}
