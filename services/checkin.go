package services

import (
	"context"
	"errors"

	"github.com/hackday-platform/checkin-api/attendance"
	"github.com/hackday-platform/checkin-api/models"
	"github.com/hackday-platform/checkin-api/qr"
	"go.uber.org/zap"
)

// Redeem converts a scanned QR token into durable attendance state for one
// event, exactly once per (event, subject) pair.
//
// The duplicate gate runs before any mutation. The gate and the mutation are
// not covered by one transaction, so two concurrent redemptions may both
// pass it; the event-side AddMember result is then the tie-break — only the
// caller whose insertion was novel awards points, the other reports
// AlreadyCheckedIn. A caller that retries after a timeout therefore sees
// AlreadyCheckedIn, which it should treat as success for the same credential.
func (s *Service) Redeem(ctx context.Context, eventID, rawToken string) (*models.CheckInResult, error) {
	s.m.Counter("redeem_requests").Inc()

	event, err := s.findEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	subjectID, err := s.codec.Decode(rawToken)
	if err != nil {
		switch {
		case errors.Is(err, &qr.ExpiredTokenError{}):
			s.m.Counter("redeem_qr_expired").Inc()
			return nil, &QRExpiredError{"QR code has expired"}
		default:
			s.m.Counter("redeem_qr_invalid").Inc()
			return nil, &QRInvalidError{"QR code could not be decoded"}
		}
	}

	// Duplicate gate, before any mutation.
	checkedIn, err := s.store.IsMember(ctx, attendance.EventAttendees, eventID, subjectID)
	if err != nil {
		return nil, err
	}
	if checkedIn {
		s.m.Counter("redeem_duplicate").Inc()
		return nil, &AlreadyCheckedInError{"subject " + subjectID + " is already checked in to event " + eventID}
	}

	// Dual write, subject side first. The two adds are independent at the
	// store; if the second fails after the first landed, the relation is
	// one-sided until the reconciler repairs it.
	if _, err := s.store.AddMember(ctx, attendance.SubjectAttendance, subjectID, eventID); err != nil {
		s.m.Counter("redeem_store_error").Inc()
		return nil, err
	}
	inserted, err := s.store.AddMember(ctx, attendance.EventAttendees, eventID, subjectID)
	if err != nil {
		s.logger.Error("Attendance records diverged: subject side written, event side failed",
			zap.String("eventID", eventID),
			zap.String("subjectID", subjectID),
			zap.Error(err))
		s.m.Counter("redeem_partial_write").Inc()
		return nil, err
	}
	if !inserted {
		// Lost the race between the gate and the mutation. The set adds were
		// no-ops; points must not be awarded twice.
		s.m.Counter("redeem_race_lost").Inc()
		return nil, &AlreadyCheckedInError{"subject " + subjectID + " is already checked in to event " + eventID}
	}

	profile, err := s.findProfile(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		s.m.Counter("redeem_profile_missing").Inc()
		return nil, &ProfileMissingError{"no profile provisioned for subject " + subjectID}
	}
	if event.Points != 0 {
		if profile, err = s.ApplyPoints(ctx, subjectID, event.Points); err != nil {
			return nil, err
		}
	}

	s.logger.Info("Checked in attendee",
		zap.String("eventID", eventID),
		zap.String("subjectID", subjectID),
		zap.Int64("pointsAwarded", event.Points))
	s.m.Counter("redeem_accepted").Inc()

	return &models.CheckInResult{
		SubjectID:     subjectID,
		PointsAwarded: event.Points,
		Profile:       *profile,
	}, nil
}
