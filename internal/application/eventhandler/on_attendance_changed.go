// Package eventhandler contains subscribers that react to domain events
// after the write that produced them has committed.
package eventhandler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/alem-hub/attendance-tracker/internal/domain/attendance"
	"github.com/alem-hub/attendance-tracker/internal/domain/shared"
	"github.com/alem-hub/attendance-tracker/internal/infrastructure/metrics"
	"github.com/alem-hub/attendance-tracker/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON ATTENDANCE CHANGED HANDLER
// Watches marks, undos and redos and reports when a subject drops below
// its required attendance or climbs back above it.
// ═══════════════════════════════════════════════════════════════════════════

// Crossing directions, also used as metric labels.
const (
	DirectionBelow     = "below"
	DirectionRecovered = "recovered"
)

// SubjectReader is the part of the store the handler reads.
type SubjectReader interface {
	GetSubject(ctx context.Context, id string) (*attendance.Subject, error)
}

// Crossing describes one threshold crossing.
type Crossing struct {
	SubjectID string
	Direction string
	Percent   float64
	Required  int
}

// OnAttendanceChangedHandler remembers the last standing it saw per subject.
// The first event for a subject only records its standing.
type OnAttendanceChangedHandler struct {
	store   SubjectReader
	metrics *metrics.Metrics
	logger  *logger.Logger
	timeout time.Duration

	// OnCrossing, when set, is called after a crossing is logged.
	OnCrossing func(Crossing)

	mu    sync.Mutex
	below map[string]bool
}

// NewOnAttendanceChangedHandler creates the handler.
func NewOnAttendanceChangedHandler(store SubjectReader, m *metrics.Metrics, log *logger.Logger) *OnAttendanceChangedHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &OnAttendanceChangedHandler{
		store:   store,
		metrics: m,
		logger:  log.With(logger.Component("threshold_watch")),
		timeout: 2 * time.Second,
		below:   make(map[string]bool),
	}
}

// Register subscribes the handler to the events it cares about.
func (h *OnAttendanceChangedHandler) Register(bus shared.EventSubscriber) error {
	for _, t := range []shared.EventType{
		shared.EventAttendanceMarked,
		shared.EventAttendanceUndone,
		shared.EventAttendanceRedone,
		shared.EventSubjectUpdated,
		shared.EventSubjectDeleted,
	} {
		if err := bus.Subscribe(t, h.Handle); err != nil {
			return err
		}
	}
	return nil
}

// Handle implements shared.EventHandler.
func (h *OnAttendanceChangedHandler) Handle(event shared.Event) error {
	subjectID := event.AggregateID()
	if subjectID == "" {
		return nil
	}
	if event.EventType() == shared.EventSubjectDeleted {
		h.forget(subjectID)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	sub, err := h.store.GetSubject(ctx, subjectID)
	if errors.Is(err, shared.ErrSubjectNotFound) {
		h.forget(subjectID)
		return nil
	}
	if err != nil {
		return err
	}
	if sub.IsFolder {
		return nil
	}

	// A subject with no classes has nothing to fall short of.
	nowBelow := sub.TotalCount > 0 && !sub.MeetsThreshold()

	h.mu.Lock()
	wasBelow, seen := h.below[subjectID]
	h.below[subjectID] = nowBelow
	h.mu.Unlock()

	if !seen || wasBelow == nowBelow {
		return nil
	}

	c := Crossing{
		SubjectID: subjectID,
		Direction: DirectionRecovered,
		Percent:   sub.AttendancePercent(),
		Required:  sub.RequiredAttendance,
	}
	if nowBelow {
		c.Direction = DirectionBelow
		h.logger.Warn("subject dropped below required attendance",
			logger.String("subject_id", subjectID),
			logger.Float64("percent", c.Percent),
			logger.Int("required", c.Required),
		)
	} else {
		h.logger.Info("subject is back above required attendance",
			logger.String("subject_id", subjectID),
			logger.Float64("percent", c.Percent),
			logger.Int("required", c.Required),
		)
	}
	h.metrics.ObserveThresholdCrossing(c.Direction)
	if h.OnCrossing != nil {
		h.OnCrossing(c)
	}
	return nil
}

func (h *OnAttendanceChangedHandler) forget(subjectID string) {
	h.mu.Lock()
	delete(h.below, subjectID)
	h.mu.Unlock()
}
