package model

import "encoding/json"

// Payment values written when a bill is finalized.
const (
	PaymentMethodBanking = "BANKING"
	PaymentStatusDone    = "DONE"
)

// Bill is the provisional order ("order draft") every ticket and combo line
// of a booking attaches to.  It is created empty the moment a showtime is
// selected and finalized by the checkout step.
type Bill struct {
	ID            int64   `json:"billId"`
	UserID        int64   `json:"userId"`
	PaymentMethod string  `json:"paymentMethod"`
	PaymentStatus string  `json:"paymentStatus,omitempty"`
	PaymentAt     string  `json:"paymentAt"`
	TicketIDs     []int64 `json:"ticketId"`
	ComboIDs      []int64 `json:"comboId"`
}

// UnmarshalJSON accepts id as an alias of billId and a nested user object.
func (b *Bill) UnmarshalJSON(data []byte) error {
	type plain Bill
	var raw struct {
		plain
		ID   *int64 `json:"id"`
		User *struct {
			UserID int64 `json:"userId"`
		} `json:"user"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*b = Bill(raw.plain)
	if b.ID == 0 && raw.ID != nil {
		b.ID = *raw.ID
	}
	if b.UserID == 0 && raw.User != nil {
		b.UserID = raw.User.UserID
	}
	return nil
}

// BillDraft is the body of the create-bill call.  The slices are always
// sent as empty JSON arrays, never null.
type BillDraft struct {
	UserID        int64   `json:"userId"`
	PaymentMethod string  `json:"paymentMethod"`
	TicketIDs     []int64 `json:"ticketId"`
	ComboIDs      []int64 `json:"comboId"`
	PaymentAt     string  `json:"paymentAt"`
}

// NewBillDraft returns the empty draft for userID.
func NewBillDraft(userID int64) BillDraft {
	return BillDraft{UserID: userID, TicketIDs: []int64{}, ComboIDs: []int64{}}
}

// BillPayment is the body of the update-bill call issued at checkout.
type BillPayment struct {
	UserID        int64  `json:"userId"`
	PaymentMethod string `json:"paymentMethod"`
	PaymentStatus string `json:"paymentStatus"`
	PaymentAt     string `json:"paymentAt"`
}
