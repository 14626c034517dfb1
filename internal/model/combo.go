package model

import "encoding/json"

// Combo is a concession add-on (popcorn, drinks) sold with a booking.
type Combo struct {
	ID          int64  `json:"comboId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       int64  `json:"price"`
}

func (c *Combo) UnmarshalJSON(data []byte) error {
	type plain Combo
	var raw struct {
		plain
		ID *int64 `json:"id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Combo(raw.plain)
	if c.ID == 0 && raw.ID != nil {
		c.ID = *raw.ID
	}
	return nil
}

// BillCombo is one combo line attached to a bill at checkout.
type BillCombo struct {
	BillID   int64 `json:"billId"`
	ComboID  int64 `json:"comboId"`
	Quantity int   `json:"quantity"`
}
