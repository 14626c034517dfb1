package booking

import (
	"sort"

	"github.com/iliyamo/cinema-booking/internal/model"
)

type position struct {
	row    string
	number int
}

// Directory is the seat list of one screening room, loaded fresh for every
// showtime selection and read-only afterwards.  Seats are addressable by id
// and by (row, number); the geometry comes from the seats themselves.
type Directory struct {
	byID  map[int64]model.Seat
	byPos map[position]int64
	order []int64
}

// NewDirectory indexes seats.  A seat whose id or position repeats an
// earlier one is ignored.
func NewDirectory(seats []model.Seat) *Directory {
	d := &Directory{
		byID:  make(map[int64]model.Seat, len(seats)),
		byPos: make(map[position]int64, len(seats)),
		order: make([]int64, 0, len(seats)),
	}
	for _, s := range seats {
		pos := position{s.Row, s.Number}
		if _, dup := d.byID[s.ID]; dup {
			continue
		}
		if _, dup := d.byPos[pos]; dup {
			continue
		}
		d.byID[s.ID] = s
		d.byPos[pos] = s.ID
		d.order = append(d.order, s.ID)
	}
	return d
}

func (d *Directory) Seat(id int64) (model.Seat, bool) {
	s, ok := d.byID[id]
	return s, ok
}

// At returns the seat at row/number.
func (d *Directory) At(row string, number int) (model.Seat, bool) {
	id, ok := d.byPos[position{row, number}]
	if !ok {
		return model.Seat{}, false
	}
	return d.byID[id], true
}

// Seats returns the seats in load order.
func (d *Directory) Seats() []model.Seat {
	out := make([]model.Seat, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.byID[id])
	}
	return out
}

func (d *Directory) Len() int { return len(d.order) }

// Selectable reports whether the seat exists, is listed as available and
// has not been sold for the showtime.
func (d *Directory) Selectable(id int64, sold SoldSet) bool {
	s, ok := d.byID[id]
	return ok && s.Available() && !sold.Has(id)
}

// SoldSet holds the seat ids already ticketed for a showtime.
type SoldSet map[int64]struct{}

func NewSoldSet(tickets []model.Ticket) SoldSet {
	s := make(SoldSet, len(tickets))
	for _, t := range tickets {
		if t.SeatID != 0 {
			s[t.SeatID] = struct{}{}
		}
	}
	return s
}

func (s SoldSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

// IDs returns the sold seat ids in ascending order.
func (s SoldSet) IDs() []int64 {
	out := make([]int64, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
