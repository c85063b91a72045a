package models

import "time"

type EventKind string

const (
	EventCreated EventKind = "CREATED"
	EventUpdated EventKind = "UPDATED"
	EventDeleted EventKind = "DELETED"
)

func (k EventKind) Valid() bool {
	switch k {
	case EventCreated, EventUpdated, EventDeleted:
		return true
	}
	return false
}

// CatalogEvent is one catalog change with the full space snapshot.
type CatalogEvent struct {
	Kind      EventKind
	Space     Space
	Timestamp time.Time
}
