package database

import "errors"

var (
	ErrNotFound    = errors.New("record not found")
	ErrSlotTaken   = errors.New("interval overlaps an active reservation")
	ErrNotActive   = errors.New("reservation is cancelled")
	ErrDuplicate   = errors.New("record already exists")
	ErrNilSnapshot = errors.New("space snapshot is nil")
	ErrInUse       = errors.New("record is still referenced")
)
