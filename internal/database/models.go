package database

import "time"

// Document is a persisted snapshot of a room's authoritative content.
type Document struct {
	Id        string
	Content   string
	Version   int64
	UpdatedAt time.Time
}
