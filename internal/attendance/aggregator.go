package attendance

import (
	"context"
	"log/slog"
	"time"

	"github.com/your-org/presence/internal/engine"
	"github.com/your-org/presence/internal/models"
	"github.com/your-org/presence/internal/observability"
	"github.com/your-org/presence/internal/storage"
)

// Aggregator turns closed presence sessions into durable presence events and
// day-bucketed attendance rollups. It never computes presence itself; the
// engine guarantees every tracked session is eventually closed, which gives
// the rollup complete data.
type Aggregator struct {
	db *storage.PostgresStore
}

func NewAggregator(db *storage.PostgresStore) *Aggregator {
	return &Aggregator{db: db}
}

// Persist stores one closed-session record. Safe under redelivery: the row
// is keyed by the record id assigned at close time.
func (a *Aggregator) Persist(ctx context.Context, closed engine.ClosedSession) error {
	return a.db.InsertPresenceEvent(ctx, &models.PresenceEvent{
		ID:              closed.ID,
		SubjectKind:     string(closed.Kind),
		SubjectID:       closed.SubjectID,
		SubjectName:     closed.Name,
		EntryTime:       closed.EntryTime,
		ExitTime:        closed.ExitTime,
		DurationSeconds: closed.DurationSeconds,
		SnapshotKey:     closed.Snapshot,
	})
}

// GenerateForDate rebuilds the rollup for one calendar date.
func (a *Aggregator) GenerateForDate(ctx context.Context, date time.Time) (int, error) {
	n, err := a.db.GenerateAttendance(ctx, date)
	if err != nil {
		return 0, err
	}
	observability.RollupsGenerated.Inc()
	slog.Info("generated attendance rollup", "date", date.Format("2006-01-02"), "subjects", n)
	return n, nil
}

// Rollup returns the per-user attendance for a date. Users with no closed
// interval carry a nil total, which callers must not collapse to zero.
func (a *Aggregator) Rollup(ctx context.Context, date time.Time) ([]storage.RollupRow, error) {
	return a.db.AttendanceRollup(ctx, date)
}

// RunNightly blocks, generating the previous day's rollup once per day at
// hour:minute UTC, until ctx is cancelled.
func (a *Aggregator) RunNightly(ctx context.Context, hour, minute int) {
	for {
		next := nextRun(time.Now().UTC(), hour, minute)
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		yesterday := time.Now().UTC().AddDate(0, 0, -1)
		if _, err := a.GenerateForDate(ctx, yesterday); err != nil {
			slog.Error("nightly attendance rollup", "error", err)
		}
	}
}

func nextRun(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
