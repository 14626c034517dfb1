package model

import (
	"encoding/json"
	"time"
)

// Showtime is one screening of a movie in a room.  Selecting a showtime is
// what (re)starts a booking transaction.
type Showtime struct {
	ID         int64  `json:"showtimeId"`
	RoomID     int64  `json:"roomId"`
	RoomName   string `json:"name,omitempty"`
	MovieID    int64  `json:"movieId,omitempty"`
	Title      string `json:"title"`
	CinemaID   int64  `json:"cinemaId,omitempty"`
	CinemaName string `json:"cinemaName"`
	Date       string `json:"showDate"`  // 2006-01-02
	StartTime  string `json:"startTime"` // 15:04 or 15:04:05
	EndTime    string `json:"endTime,omitempty"`
	Status     string `json:"status,omitempty"`
}

// UnmarshalJSON also accepts the nested room/movie objects some upstream
// endpoints return instead of flat ids.
func (s *Showtime) UnmarshalJSON(b []byte) error {
	type plain Showtime
	var raw struct {
		plain
		ID   *int64 `json:"id"`
		Room *struct {
			RoomID int64  `json:"roomId"`
			Name   string `json:"name"`
			Cinema *struct {
				CinemaID int64  `json:"cinemaId"`
				Name     string `json:"name"`
			} `json:"cinema"`
		} `json:"room"`
		Movie *struct {
			ID    int64  `json:"id"`
			Title string `json:"title"`
		} `json:"movie"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*s = Showtime(raw.plain)
	if s.ID == 0 && raw.ID != nil {
		s.ID = *raw.ID
	}
	if r := raw.Room; r != nil {
		if s.RoomID == 0 {
			s.RoomID = r.RoomID
		}
		if s.RoomName == "" {
			s.RoomName = r.Name
		}
		if c := r.Cinema; c != nil {
			if s.CinemaID == 0 {
				s.CinemaID = c.CinemaID
			}
			if s.CinemaName == "" {
				s.CinemaName = c.Name
			}
		}
	}
	if m := raw.Movie; m != nil {
		if s.MovieID == 0 {
			s.MovieID = m.ID
		}
		if s.Title == "" {
			s.Title = m.Title
		}
	}
	return nil
}

// StartsAt combines Date and StartTime in loc.  The zero time is returned
// when either part does not parse.
func (s Showtime) StartsAt(loc *time.Location) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(layout, s.Date+" "+s.StartTime, loc); err == nil {
			return t
		}
	}
	return time.Time{}
}
