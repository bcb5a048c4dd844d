package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hackday-platform/checkin-api/attendance"
	"github.com/hackday-platform/checkin-api/metrics"
	"github.com/hackday-platform/checkin-api/models"
	"github.com/hackday-platform/checkin-api/qr"
	"github.com/jonboulle/clockwork"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// ValidationError covers malformed or unacceptable request parameters.
type ValidationError struct {
	msg string
}

func (v *ValidationError) Error() string {
	return v.msg
}

func (v *ValidationError) Is(err error) bool {
	_, ok := err.(*ValidationError)
	return ok
}

// QRInvalidError wraps a token the codec rejected outright. Treated as
// attacker input; a retry without a fresh scan is pointless.
type QRInvalidError struct {
	msg string
}

func (e *QRInvalidError) Error() string {
	return e.msg
}

func (e *QRInvalidError) Is(err error) bool {
	_, ok := err.(*QRInvalidError)
	return ok
}

// QRExpiredError wraps a well-formed but stale token. The attendee should
// request a new code.
type QRExpiredError struct {
	msg string
}

func (e *QRExpiredError) Error() string {
	return e.msg
}

func (e *QRExpiredError) Is(err error) bool {
	_, ok := err.(*QRExpiredError)
	return ok
}

// EventNotFoundError means the target event is not in the catalog.
type EventNotFoundError struct {
	msg string
}

func (e *EventNotFoundError) Error() string {
	return e.msg
}

func (e *EventNotFoundError) Is(err error) bool {
	_, ok := err.(*EventNotFoundError)
	return ok
}

// AlreadyCheckedInError is the idempotent terminal state of a redemption:
// the subject is checked in, and was before this call.
type AlreadyCheckedInError struct {
	msg string
}

func (e *AlreadyCheckedInError) Error() string {
	return e.msg
}

func (e *AlreadyCheckedInError) Is(err error) bool {
	_, ok := err.(*AlreadyCheckedInError)
	return ok
}

// ProfileMissingError is an internal invariant violation: a credential
// referenced a subject with no provisioned profile. Surfaced as a server
// error, never a client error.
type ProfileMissingError struct {
	msg string
}

func (e *ProfileMissingError) Error() string {
	return e.msg
}

func (e *ProfileMissingError) Is(err error) bool {
	_, ok := err.(*ProfileMissingError)
	return ok
}

// ServiceConfig contains the configuration for a Service.
type ServiceConfig struct {
	DB            *sql.DB
	Codec         *qr.Codec
	Attendance    attendance.Store
	Catalog       *models.EventCatalog
	CatalogMaxAge time.Duration
	Logger        *zap.Logger
	Clock         clockwork.Clock
}

// Services contain business logic, are responsible for interacting with the
// database and the attendance store, and are called by the API handlers.
type Service struct {
	codec *qr.Codec
	store attendance.Store

	// In-memory event catalog, refreshed by a background task.
	catalog       *models.EventCatalog
	catalogMaxAge time.Duration

	// Database
	db              *sql.DB
	getEventStmt    *sql.Stmt
	addEventStmt    *sql.Stmt
	listEventsStmt  *sql.Stmt
	getProfileStmt  *sql.Stmt
	addProfileStmt  *sql.Stmt
	applyPointsStmt *sql.Stmt

	m      *metrics.MetricsRegistry
	logger *zap.Logger

	clock clockwork.Clock
}

func NewService(config *ServiceConfig) *Service {
	return &Service{
		codec:         config.Codec,
		store:         config.Attendance,
		catalog:       config.Catalog,
		catalogMaxAge: config.CatalogMaxAge,
		db:            config.DB,
		logger:        config.Logger,
		clock:         config.Clock,
	}
}

func (s *Service) Init() error {
	s.m = metrics.NewMetricsRegistry("service")
	if err := s.createTables(); err != nil {
		return err
	}
	return s.prepareStatements()
}

func (s *Service) createTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id TEXT NOT NULL PRIMARY KEY,
			name TEXT NOT NULL,
			points INTEGER NOT NULL DEFAULT 0 CHECK (points >= 0)
		);
		CREATE TABLE IF NOT EXISTS profiles (
			subject_id TEXT NOT NULL PRIMARY KEY,
			name TEXT NOT NULL,
			dietary_restrictions TEXT NOT NULL DEFAULT '',
			points INTEGER NOT NULL DEFAULT 0
		);
	`)
	return err
}

func (s *Service) prepareStatements() error {
	var err error

	if s.getEventStmt, err = s.db.Prepare(`
		SELECT id, name, points FROM events WHERE id = ?;
	`); err != nil {
		return err
	}

	if s.addEventStmt, err = s.db.Prepare(`
		INSERT INTO events (id, name, points) VALUES (?, ?, ?);
	`); err != nil {
		return err
	}

	if s.listEventsStmt, err = s.db.Prepare(`
		SELECT id, name, points FROM events;
	`); err != nil {
		return err
	}

	if s.getProfileStmt, err = s.db.Prepare(`
		SELECT subject_id, name, dietary_restrictions, points FROM profiles WHERE subject_id = ?;
	`); err != nil {
		return err
	}

	if s.addProfileStmt, err = s.db.Prepare(`
		INSERT INTO profiles (subject_id, name, dietary_restrictions) VALUES (?, ?, ?);
	`); err != nil {
		return err
	}

	if s.applyPointsStmt, err = s.db.Prepare(`
		UPDATE profiles SET points = points + ? WHERE subject_id = ?;
	`); err != nil {
		return err
	}

	return nil
}

// findEvent consults the in-memory catalog first and falls back to the
// database when the cache is stale or does not know the event. A cache miss
// never turns into EventNotFound on its own: events created since the last
// refresh are still found.
func (s *Service) findEvent(ctx context.Context, eventID string) (*models.Event, error) {
	if s.catalog != nil && s.clock.Now().Before(s.catalog.LastUpdated.Add(s.catalogMaxAge)) {
		if ev, ok := s.catalog.Get(eventID); ok {
			return &ev, nil
		}
	}

	var ev models.Event
	row := s.getEventStmt.QueryRowContext(ctx, eventID)
	if err := row.Scan(&ev.ID, &ev.Name, &ev.Points); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.m.Counter("event_not_found").Inc()
			return nil, &EventNotFoundError{"event " + eventID + " not found"}
		}
		return nil, err
	}
	return &ev, nil
}

// findProfile returns nil without error when no profile exists; callers
// decide whether that is a client or server problem.
func (s *Service) findProfile(ctx context.Context, subjectID string) (*models.Profile, error) {
	var p models.Profile
	row := s.getProfileStmt.QueryRowContext(ctx, subjectID)
	if err := row.Scan(&p.SubjectID, &p.Name, &p.DietaryRestrictions, &p.Points); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// CreateProfile provisions a profile. Provisioning must precede issuance of
// any credential for the subject.
func (s *Service) CreateProfile(ctx context.Context, subjectID, name, dietaryRestrictions string) (*models.Profile, error) {
	if subjectID == "" || name == "" {
		return nil, &ValidationError{"subject id and name are required"}
	}
	if _, err := s.addProfileStmt.ExecContext(ctx, subjectID, name, dietaryRestrictions); err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return nil, &ValidationError{"profile already exists for subject " + subjectID}
		}
		return nil, err
	}
	s.m.Counter("profile_created").Inc()
	return s.findProfile(ctx, subjectID)
}

// GetProfile returns the provisioned profile, or ProfileMissingError.
func (s *Service) GetProfile(ctx context.Context, subjectID string) (*models.Profile, error) {
	p, err := s.findProfile(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &ProfileMissingError{"no profile provisioned for subject " + subjectID}
	}
	return p, nil
}

// ApplyPoints credits delta to the subject's profile and returns the updated
// profile. The update and the read-back share a transaction so the returned
// balance reflects this call.
func (s *Service) ApplyPoints(ctx context.Context, subjectID string, delta int64) (*models.Profile, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer rollback(tx)

	aps := tx.Stmt(s.applyPointsStmt)
	defer aps.Close()
	res, err := aps.ExecContext(ctx, delta, subjectID)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, &ProfileMissingError{"no profile provisioned for subject " + subjectID}
	}

	gps := tx.Stmt(s.getProfileStmt)
	defer gps.Close()
	var p models.Profile
	row := gps.QueryRowContext(ctx, subjectID)
	if err := row.Scan(&p.SubjectID, &p.Name, &p.DietaryRestrictions, &p.Points); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Service) Deinit() {
	// Close prepared statements
	for _, stmt := range []**sql.Stmt{
		&s.getEventStmt,
		&s.addEventStmt,
		&s.listEventsStmt,
		&s.getProfileStmt,
		&s.addProfileStmt,
		&s.applyPointsStmt,
	} {
		if *stmt == nil {
			continue
		}
		(*stmt).Close()
		*stmt = nil
	}
}

func rollback(tx *sql.Tx) {
	_ = tx.Rollback()
}
