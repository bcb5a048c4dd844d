package services

import (
	"context"
	"sort"

	"github.com/hackday-platform/checkin-api/attendance"
	"github.com/hackday-platform/checkin-api/models"
)

// EventAttendance returns the event-side attendance record. The event must
// exist; an event with no check-ins yet yields an empty attendee list.
func (s *Service) EventAttendance(ctx context.Context, eventID string) (*models.EventAttendanceRecord, error) {
	if _, err := s.findEvent(ctx, eventID); err != nil {
		return nil, err
	}

	members, err := s.store.Members(ctx, attendance.EventAttendees, eventID)
	if err != nil {
		return nil, err
	}
	// Sets are unordered; sort for stable responses.
	sort.Strings(members)

	s.m.Counter("event_attendance_reads").Inc()
	return &models.EventAttendanceRecord{
		EventID:   eventID,
		Attendees: members,
	}, nil
}

// SubjectAttendance returns the subject-side attendance record. A subject
// with no check-ins yields an empty list; the record is created lazily on
// first check-in, so absence is not an error.
func (s *Service) SubjectAttendance(ctx context.Context, subjectID string) (*models.SubjectAttendanceRecord, error) {
	if subjectID == "" {
		return nil, &ValidationError{"subject id is required"}
	}

	members, err := s.store.Members(ctx, attendance.SubjectAttendance, subjectID)
	if err != nil {
		return nil, err
	}
	sort.Strings(members)

	s.m.Counter("subject_attendance_reads").Inc()
	return &models.SubjectAttendanceRecord{
		SubjectID:  subjectID,
		Attendance: members,
	}, nil
}
