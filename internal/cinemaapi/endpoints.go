package cinemaapi

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/iliyamo/cinema-booking/internal/model"
)

// CreateBill opens a new, empty order draft.
func (c *Client) CreateBill(ctx context.Context, draft model.BillDraft) (model.Bill, error) {
	var b model.Bill
	if err := c.do(ctx, http.MethodPost, "/bills", draft, &b); err != nil {
		return model.Bill{}, err
	}
	if b.ID == 0 {
		return model.Bill{}, &APIError{Status: http.StatusOK, Message: "create bill: response carries no bill id"}
	}
	return b, nil
}

func (c *Client) GetBill(ctx context.Context, id int64) (model.Bill, error) {
	var b model.Bill
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/bills/%d", id), nil, &b); err != nil {
		return model.Bill{}, err
	}
	if b.ID == 0 {
		b.ID = id
	}
	return b, nil
}

// UpdateBill writes the payment fields of a bill.
func (c *Client) UpdateBill(ctx context.Context, id int64, p model.BillPayment) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/bills/%d", id), p, nil)
}

// BillsByUser lists a customer's booking history.
func (c *Client) BillsByUser(ctx context.Context, userID int64) ([]model.Bill, error) {
	var bills []model.Bill
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/bills/user/%d", userID), nil, &bills); err != nil {
		return nil, err
	}
	return bills, nil
}

func (c *Client) CreateBillCombo(ctx context.Context, line model.BillCombo) error {
	return c.do(ctx, http.MethodPost, "/bill-combos", line, nil)
}

// SeatsByRoom returns the seat directory of a room ordered by seat id.
func (c *Client) SeatsByRoom(ctx context.Context, roomID int64) ([]model.Seat, error) {
	var seats []model.Seat
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/seats/room/%d", roomID), nil, &seats); err != nil {
		return nil, err
	}
	sort.Slice(seats, func(i, j int) bool { return seats[i].ID < seats[j].ID })
	return seats, nil
}

// TicketsByShowtime lists every ticket already issued for a showtime.
func (c *Client) TicketsByShowtime(ctx context.Context, showtimeID int64) ([]model.Ticket, error) {
	var ts []model.Ticket
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/tickets/showtime/%d", showtimeID), nil, &ts); err != nil {
		return nil, err
	}
	return ts, nil
}

// TicketsByBill lists the tickets attached to one bill.
func (c *Client) TicketsByBill(ctx context.Context, billID int64) ([]model.Ticket, error) {
	var ts []model.Ticket
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/tickets/bill/%d", billID), nil, &ts); err != nil {
		return nil, err
	}
	return ts, nil
}

func (c *Client) CreateTicket(ctx context.Context, draft model.TicketDraft) (model.Ticket, error) {
	var t model.Ticket
	if err := c.do(ctx, http.MethodPost, "/tickets", draft, &t); err != nil {
		return model.Ticket{}, err
	}
	if t.ID == 0 {
		return model.Ticket{}, &APIError{Status: http.StatusOK, Message: "create ticket: response carries no ticket id"}
	}
	return t, nil
}

func (c *Client) DeleteTicket(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/tickets/%d", id), nil, nil)
}

func (c *Client) Showtimes(ctx context.Context) ([]model.Showtime, error) {
	var sts []model.Showtime
	if err := c.do(ctx, http.MethodGet, "/showtimes", nil, &sts); err != nil {
		return nil, err
	}
	return sts, nil
}

func (c *Client) Showtime(ctx context.Context, id int64) (model.Showtime, error) {
	var st model.Showtime
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/showtimes/%d", id), nil, &st); err != nil {
		return model.Showtime{}, err
	}
	return st, nil
}

func (c *Client) Combos(ctx context.Context) ([]model.Combo, error) {
	var cs []model.Combo
	if err := c.do(ctx, http.MethodGet, "/combos", nil, &cs); err != nil {
		return nil, err
	}
	return cs, nil
}

// MyInfo returns the profile of the token's bearer.
func (c *Client) MyInfo(ctx context.Context) (model.User, error) {
	var u model.User
	if err := c.do(ctx, http.MethodGet, "/users/myInfo", nil, &u); err != nil {
		return model.User{}, err
	}
	return u, nil
}
