package tasks

import (
	"context"
	"time"

	"github.com/hackday-platform/checkin-api/attendance"
	"go.uber.org/zap"
)

// ReconcileAttendanceTask repairs one-sided attendance records. The two
// collections are written without a shared transaction, so a crash or
// store error between the writes can leave a member on one side only; both
// sides are derivable from the same underlying fact, so either can be
// recomputed from the other with the same idempotent set-add the check-in
// path uses.
type ReconcileAttendanceTask struct {
	store    attendance.Store
	interval time.Duration
	done     chan bool
	logger   *zap.Logger
}

func NewReconcileAttendanceTask(
	store attendance.Store,
	interval time.Duration,
	logger *zap.Logger,
) *ReconcileAttendanceTask {
	return &ReconcileAttendanceTask{
		store,
		interval,
		make(chan bool),
		logger,
	}
}

// reconcile walks both collections and re-adds any member missing from the
// opposite side. Returns the number of repairs applied.
func (t *ReconcileAttendanceTask) reconcile(ctx context.Context) (int, error) {
	repaired := 0

	// Event side -> subject side.
	eventIDs, err := t.store.Keys(ctx, attendance.EventAttendees)
	if err != nil {
		return repaired, err
	}
	for _, eventID := range eventIDs {
		subjects, err := t.store.Members(ctx, attendance.EventAttendees, eventID)
		if err != nil {
			return repaired, err
		}
		for _, subjectID := range subjects {
			inserted, err := t.store.AddMember(ctx, attendance.SubjectAttendance, subjectID, eventID)
			if err != nil {
				return repaired, err
			}
			if inserted {
				repaired++
				t.logger.Warn("Repaired one-sided attendance record",
					zap.String("side", "subject"),
					zap.String("eventID", eventID),
					zap.String("subjectID", subjectID))
			}
		}
	}

	// Subject side -> event side.
	subjectIDs, err := t.store.Keys(ctx, attendance.SubjectAttendance)
	if err != nil {
		return repaired, err
	}
	for _, subjectID := range subjectIDs {
		events, err := t.store.Members(ctx, attendance.SubjectAttendance, subjectID)
		if err != nil {
			return repaired, err
		}
		for _, eventID := range events {
			inserted, err := t.store.AddMember(ctx, attendance.EventAttendees, eventID, subjectID)
			if err != nil {
				return repaired, err
			}
			if inserted {
				repaired++
				t.logger.Warn("Repaired one-sided attendance record",
					zap.String("side", "event"),
					zap.String("eventID", eventID),
					zap.String("subjectID", subjectID))
			}
		}
	}

	return repaired, nil
}

func (t *ReconcileAttendanceTask) Run() {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			t.logger.Info("Reconcile attendance task stopped")
			return
		case <-ticker.C:
			repaired, err := t.reconcile(context.Background())
			if err != nil {
				t.logger.Warn("Attendance reconciliation pass failed", zap.Error(err))
				continue
			}
			if repaired > 0 {
				t.logger.Info("Attendance reconciliation pass complete", zap.Int("repaired", repaired))
			}
		}
	}
}

func (t *ReconcileAttendanceTask) Stop() error {
	t.done <- true
	return nil
}
