package models

// Event is a catalog entry an attendee can check in to. Points is the value
// credited to a profile on a successful first check-in.
type Event struct {
	ID     string
	Name   string
	Points int64
}
