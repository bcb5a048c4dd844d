package tasks

import (
	"context"
	"time"

	"github.com/hackday-platform/checkin-api/models"
	"github.com/hackday-platform/checkin-api/services"
	"go.uber.org/zap"
)

// RefreshEventsTask periodically reloads the in-memory event catalog from
// the database, so that scan bursts resolve events without a query.
type RefreshEventsTask struct {
	svc      *services.Service
	catalog  *models.EventCatalog
	interval time.Duration
	done     chan bool
	logger   *zap.Logger
}

func NewRefreshEventsTask(
	svc *services.Service,
	catalog *models.EventCatalog,
	interval time.Duration,
	logger *zap.Logger,
) *RefreshEventsTask {
	return &RefreshEventsTask{
		svc,
		catalog,
		interval,
		make(chan bool),
		logger,
	}
}

func (t *RefreshEventsTask) refresh(ctx context.Context) error {
	events, err := t.svc.ListEvents(ctx)
	if err != nil {
		t.logger.Warn("Failed to refresh event catalog", zap.Error(err))
		return err
	}
	t.catalog.Replace(events)
	t.logger.Info("Event catalog refreshed", zap.Int("events", len(events)))
	return nil
}

func (t *RefreshEventsTask) Run() {
	// First refresh happens quickly; later ones on the configured interval.
	ticker := time.NewTicker(time.Duration(1) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			t.logger.Info("Refresh events task stopped")
			return
		case <-ticker.C:
			err := t.refresh(context.Background())
			if err != nil { // Try again quickly.
				ticker.Reset(time.Duration(30) * time.Second)
			} else {
				ticker.Reset(t.interval)
				t.catalog.LastUpdated = time.Now()
			}
		}
	}
}

func (t *RefreshEventsTask) Stop() error {
	t.done <- true
	return nil
}
