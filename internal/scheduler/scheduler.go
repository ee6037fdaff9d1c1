// Package scheduler delivers deferred notifications: one-shot reminders at a
// fixed time and recurring ones on a cron schedule.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kilohq/kilo/internal/kiloerr"
	"github.com/kilohq/kilo/internal/observability"
	"github.com/kilohq/kilo/pkg/models"
)

// Notification is one pending delivery.
type Notification struct {
	BotID     string
	UserID    string
	Message   string
	At        time.Time
	Recurring string // 5-field cron expression when repeating
}

// DeliverFunc receives a notification when it fires.
type DeliverFunc func(ctx context.Context, n Notification)

// Scheduler owns the cron runner and the one-shot timers. Entries live in
// memory only; restarts drop pending deliveries.
type Scheduler struct {
	cron    *cron.Cron
	deliver DeliverFunc
	logger  *observability.Logger

	mu     sync.Mutex
	timers []*time.Timer
}

func New(deliver DeliverFunc, logger *observability.Logger) *Scheduler {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Scheduler{
		cron:    cron.New(),
		deliver: deliver,
		logger:  logger,
	}
}

// Start begins firing recurring entries.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the cron runner and cancels pending one-shot timers. It does not
// wait for in-flight deliveries.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = nil
}

// Schedule registers a notification. Recurring takes precedence when both a
// time and a cron expression are set.
func (s *Scheduler) Schedule(n Notification) error {
	if n.Recurring != "" {
		if _, err := cron.ParseStandard(n.Recurring); err != nil {
			return kiloerr.Wrap(err, kiloerr.CodeInternal, "invalid recurring schedule")
		}
		_, err := s.cron.AddFunc(n.Recurring, func() { s.fire(n) })
		if err != nil {
			return kiloerr.Wrap(err, kiloerr.CodeInternal, "register recurring schedule")
		}
		return nil
	}

	delay := time.Until(n.At)
	if delay < 0 {
		// A past due time still delivers, immediately.
		delay = 0
	}
	timer := time.AfterFunc(delay, func() { s.fire(n) })
	s.mu.Lock()
	s.timers = append(s.timers, timer)
	s.mu.Unlock()
	return nil
}

// FromEffect adapts a schedule_notification side effect.
func (s *Scheduler) FromEffect(botID, userID string, e *models.ScheduleNotificationEffect) error {
	return s.Schedule(Notification{
		BotID:     botID,
		UserID:    userID,
		Message:   e.Message,
		At:        e.At,
		Recurring: e.Recurring,
	})
}

func (s *Scheduler) fire(n Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	ctx = observability.WithBotID(ctx, n.BotID)
	s.logger.Info(ctx, "notification fired", "recurring", n.Recurring != "")
	s.deliver(ctx, n)
}
