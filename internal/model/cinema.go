package model

// Cinema is a venue as far as the showtime picker is concerned.  The API
// nests it under a showtime's room; the picker lists the distinct ones.
//
// Fields:
//  ID   – upstream cinema id.
//  Name – display name.
type Cinema struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
