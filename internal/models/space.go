package models

import "time"

// Space is the booking side's projection of a catalog space.
type Space struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	TypeID      int64     `json:"type_id"`
	Description string    `json:"description"`
	Capacity    int       `json:"capacity"`
	HourlyRate  float64   `json:"hourly_rate"`
	DailyRate   float64   `json:"daily_rate"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	// EventTS is the emission time of the last applied catalog event.
	EventTS time.Time `json:"event_ts"`
}

// SpaceType classifies catalog spaces. Spaces refer to it by TypeID; zero means untyped.
type SpaceType struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SpaceQuery filters and orders a catalog listing. Size zero returns every match.
type SpaceQuery struct {
	Page        int
	Size        int
	OrderBy     string
	Descending  bool
	Name        string
	TypeID      *int64
	Active      *bool
	MinCapacity int
}

// Offset is the number of rows skipped before the requested page.
func (q SpaceQuery) Offset() int {
	if q.Size <= 0 || q.Page <= 1 {
		return 0
	}
	return (q.Page - 1) * q.Size
}
