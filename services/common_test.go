package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hackday-platform/checkin-api/attendance"
	"github.com/hackday-platform/checkin-api/database"
	"github.com/hackday-platform/checkin-api/metrics"
	"github.com/hackday-platform/checkin-api/models"
	"github.com/hackday-platform/checkin-api/qr"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Create a new service using an in-memory database and an in-process Redis.
func setupTestService(t *testing.T, clock clockwork.Clock) (*Service, error) {
	var err error

	// Each connection to ":memory:" opens a brand new in-memory sql
	// database, so use the shared-cache form: every connection points to the
	// same database, and it lives as long as one connection stays open.
	// Multiple connections are used here deliberately, to shake out
	// concurrency issues the single-connection production setup would mask.
	db, err := database.Open("file::memory:?cache=shared")
	if err != nil {
		return nil, err
	}
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(0)
	t.Cleanup(func() {
		_ = db.Close()
	})

	mr := miniredis.RunT(t)
	store := attendance.NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() {
		_ = store.Close()
	})

	logger, err := zap.NewDevelopmentConfig().Build()
	if err != nil {
		return nil, err
	}

	config := &ServiceConfig{
		DB:            db,
		Codec:         qr.NewCodec([]byte("test-qr-secret"), 0, clock),
		Attendance:    store,
		Catalog:       models.NewEventCatalog(),
		CatalogMaxAge: time.Hour,
		Logger:        logger,
		Clock:         clock,
	}

	_, err = metrics.Init(t.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		metrics.Deinit()
	})
	return NewService(config), nil
}

// Insert a catalog event with a fixed ID.
func createTestEvent(svc *Service, id, name string, points int64) error {
	_, err := svc.addEventStmt.Exec(id, name, points)
	return err
}

// Provision a profile for a subject.
func createTestProfile(svc *Service, subjectID string) error {
	_, err := svc.CreateProfile(context.Background(), subjectID, "Test Attendee", "vegetarian")
	return err
}
