package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/hackday-platform/checkin-api/models"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// CreateEvent adds an event to the catalog. The background refresh task
// will fold it into the in-memory cache; until then lookups fall through to
// the database.
func (s *Service) CreateEvent(ctx context.Context, name string, points int64) (*models.Event, error) {
	if name == "" {
		return nil, &ValidationError{"event name is required"}
	}
	if points < 0 {
		return nil, &ValidationError{"event points must not be negative"}
	}

	ev := models.Event{
		ID:     uuid.NewString(),
		Name:   name,
		Points: points,
	}
	if _, err := s.addEventStmt.ExecContext(ctx, ev.ID, ev.Name, ev.Points); err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return nil, &ValidationError{"event already exists"}
		}
		return nil, err
	}

	s.logger.Info("Created event",
		zap.String("eventID", ev.ID),
		zap.String("name", ev.Name),
		zap.Int64("points", ev.Points))
	s.m.Counter("event_created").Inc()

	return &ev, nil
}

// GetEvent looks up a catalog event, via the cache when fresh.
func (s *Service) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	return s.findEvent(ctx, eventID)
}

// ListEvents returns the full catalog. Used by the cache refresh task.
func (s *Service) ListEvents(ctx context.Context) ([]models.Event, error) {
	rows, err := s.listEventsStmt.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var ev models.Event
		if err := rows.Scan(&ev.ID, &ev.Name, &ev.Points); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
