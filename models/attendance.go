package models

// EventAttendanceRecord is the event-side view of the attendance relation.
type EventAttendanceRecord struct {
	EventID   string
	Attendees []string
}

// SubjectAttendanceRecord is the subject-side view of the same relation.
// A subject appears in an event's attendees exactly when the event appears
// in the subject's attendance; the reconciler repairs any divergence.
type SubjectAttendanceRecord struct {
	SubjectID  string
	Attendance []string
}

// CheckInResult is the successful outcome of a redemption.
type CheckInResult struct {
	SubjectID     string
	PointsAwarded int64
	Profile       Profile
}
