package services

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// The longest validity window a caller may request. Codes are meant to be
// scanned within minutes of being displayed.
const maxIssueTTL = time.Hour

// IssueQR issues a check-in token for a subject. A zero ttl selects the
// codec default. The subject must already have a provisioned profile;
// unlike at redemption, a missing profile here is a caller mistake, not an
// internal invariant violation.
func (s *Service) IssueQR(ctx context.Context, subjectID string, ttl time.Duration) (string, time.Time, error) {
	if subjectID == "" {
		return "", time.Time{}, &ValidationError{"subject id is required"}
	}
	if ttl < 0 {
		return "", time.Time{}, &ValidationError{"ttl must be positive"}
	}
	if ttl > maxIssueTTL {
		return "", time.Time{}, &ValidationError{"ttl exceeds the maximum validity window"}
	}

	profile, err := s.findProfile(ctx, subjectID)
	if err != nil {
		return "", time.Time{}, err
	}
	if profile == nil {
		s.m.Counter("issue_qr_no_profile").Inc()
		return "", time.Time{}, &ValidationError{"no profile provisioned for subject " + subjectID}
	}

	token, expiresAt, err := s.codec.Issue(subjectID, ttl)
	if err != nil {
		return "", time.Time{}, err
	}

	s.logger.Info("Issued QR token",
		zap.String("subjectID", subjectID),
		zap.Int64("expiresAt", expiresAt.Unix()))
	s.m.Counter("issue_qr").Inc()

	return token, expiresAt, nil
}
