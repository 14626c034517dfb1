package model

import "encoding/json"

// User is the profile the cinema API returns for the bearer of a token
// (GET /users/myInfo).  Only the id matters to the booking flow; it is
// the userId every bill and ticket is created with.
//
// Fields:
//  ID       – upstream user id (userId, or id in older payloads).
//  Username – login name.
//  Email    – contact address, may be empty.
//  Roles    – role names such as USER or ADMIN.
type User struct {
	ID       int64    `json:"userId"`
	Username string   `json:"username"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// UnmarshalJSON accepts id as an alias of userId and roles given either as
// strings or as {name} objects.
func (u *User) UnmarshalJSON(data []byte) error {
	var raw struct {
		UserID   int64             `json:"userId"`
		ID       int64             `json:"id"`
		Username string            `json:"username"`
		Email    string            `json:"email"`
		Roles    []json.RawMessage `json:"roles"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*u = User{ID: raw.UserID, Username: raw.Username, Email: raw.Email}
	if u.ID == 0 {
		u.ID = raw.ID
	}
	for _, r := range raw.Roles {
		var name string
		if json.Unmarshal(r, &name) == nil {
			u.Roles = append(u.Roles, name)
			continue
		}
		var obj struct {
			Name string `json:"name"`
		}
		if json.Unmarshal(r, &obj) == nil && obj.Name != "" {
			u.Roles = append(u.Roles, obj.Name)
		}
	}
	return nil
}
