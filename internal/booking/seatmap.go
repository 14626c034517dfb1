package booking

import (
	"sort"

	"github.com/iliyamo/cinema-booking/internal/model"
)

// SeatCell is one position of the rendered grid.  Gaps in a row (no seat
// at that column) have SeatID 0 and are never interactive.
type SeatCell struct {
	SeatID      int64  `json:"seatId,omitempty"`
	Label       string `json:"label,omitempty"`
	Selected    bool   `json:"selected"`
	Sold        bool   `json:"sold"`
	Interactive bool   `json:"interactive"`
}

type SeatRow struct {
	Label string     `json:"label"`
	Cells []SeatCell `json:"cells"`
}

// SeatMap is the pure presentation model of a room for one showtime.
type SeatMap struct {
	Columns  int       `json:"columns"`
	Rows     []SeatRow `json:"rows"`
	Disabled bool      `json:"disabled"`
}

// ToggleIntent is what clicking an interactive cell emits.
type ToggleIntent struct {
	SeatID int64  `json:"seatId"`
	Label  string `json:"label"`
}

// BuildSeatMap lays seats out in a grid: rows ordered by label (A..Z, AA..),
// one column per seat number from 1 to the highest number in the room.  A
// cell is interactive only when the map is enabled and the seat is
// available and unsold.  It never mutates its inputs.
func BuildSeatMap(seats []model.Seat, selected []int64, sold SoldSet, disabled bool) SeatMap {
	sel := make(map[int64]bool, len(selected))
	for _, id := range selected {
		sel[id] = true
	}
	cols := 0
	byRow := map[string][]model.Seat{}
	for _, s := range seats {
		if s.Number > cols {
			cols = s.Number
		}
		byRow[s.Row] = append(byRow[s.Row], s)
	}
	labels := make([]string, 0, len(byRow))
	for l := range byRow {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool {
		if len(labels[i]) != len(labels[j]) {
			return len(labels[i]) < len(labels[j])
		}
		return labels[i] < labels[j]
	})

	m := SeatMap{Columns: cols, Rows: make([]SeatRow, 0, len(labels)), Disabled: disabled}
	for _, l := range labels {
		row := SeatRow{Label: l, Cells: make([]SeatCell, cols)}
		for _, s := range byRow[l] {
			if s.Number < 1 {
				continue
			}
			isSold := sold.Has(s.ID) || s.Status == model.SeatSold
			row.Cells[s.Number-1] = SeatCell{
				SeatID:      s.ID,
				Label:       s.Label(),
				Selected:    sel[s.ID],
				Sold:        isSold,
				Interactive: !disabled && s.Available() && !isSold,
			}
		}
		m.Rows = append(m.Rows, row)
	}
	return m
}

// Intent returns the toggle intent for seatID, or false when the seat has
// no interactive cell.
func (m SeatMap) Intent(seatID int64) (ToggleIntent, bool) {
	for _, r := range m.Rows {
		for _, c := range r.Cells {
			if c.SeatID == seatID && c.Interactive {
				return ToggleIntent{SeatID: c.SeatID, Label: c.Label}, true
			}
		}
	}
	return ToggleIntent{}, false
}
