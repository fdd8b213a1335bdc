package database

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/trentd187/activity-lobby/internal/models"
)

// ActivityLog appends session events to the session_events table from a single writer
// goroutine. Record never blocks the caller: when the queue is full the event is dropped
// and counted.
type ActivityLog struct {
	db      *gorm.DB
	log     *zap.Logger
	events  chan models.SessionEvent
	dropped atomic.Int64
}

// NewActivityLog creates a log that queues up to buffer events between writes.
func NewActivityLog(db *gorm.DB, log *zap.Logger, buffer int) *ActivityLog {
	if buffer < 1 {
		buffer = 1
	}
	return &ActivityLog{
		db:     db,
		log:    log,
		events: make(chan models.SessionEvent, buffer),
	}
}

// Record queues ev for writing.
func (a *ActivityLog) Record(ev models.SessionEvent) {
	select {
	case a.events <- ev:
	default:
		n := a.dropped.Add(1)
		a.log.Warn("activity log queue full, dropping event",
			zap.String("kind", string(ev.Kind)),
			zap.Int64("dropped_total", n),
		)
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (a *ActivityLog) Dropped() int64 {
	return a.dropped.Load()
}

// Run writes queued events until ctx is cancelled, then flushes what is already queued.
func (a *ActivityLog) Run(ctx context.Context) {
	for {
		select {
		case ev := <-a.events:
			// Events already dequeued are written even if shutdown begins mid-insert.
			a.write(context.WithoutCancel(ctx), ev)
		case <-ctx.Done():
			a.flush()
			return
		}
	}
}

func (a *ActivityLog) flush() {
	for {
		select {
		case ev := <-a.events:
			a.write(context.Background(), ev)
		default:
			return
		}
	}
}

func (a *ActivityLog) write(ctx context.Context, ev models.SessionEvent) {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if err := a.db.WithContext(ctx).Create(&ev).Error; err != nil {
		a.log.Error("writing activity event",
			zap.String("kind", string(ev.Kind)),
			zap.Stringer("session_id", ev.SessionID),
			zap.Error(err),
		)
	}
}
