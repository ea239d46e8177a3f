package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultJanitorSchedule runs the sweep every minute.
const DefaultJanitorSchedule = "* * * * *"

// ExpireFunc is invoked for every live session found past its deadline.
// The engine supplies one that abandons the session through the normal
// transition path so listeners still see the terminal event.
type ExpireFunc func(ctx context.Context, id string)

// Janitor periodically sweeps the store: terminal sessions are deleted,
// live sessions past their deadline are handed to the expire callback.
type Janitor struct {
	store   Store
	expire  ExpireFunc
	logger  *slog.Logger
	cron    *cron.Cron
	timeout time.Duration
}

// NewJanitor creates a janitor over the store. expire may be nil, in which
// case expired sessions are only logged.
func NewJanitor(store Store, expire ExpireFunc, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		store:   store,
		expire:  expire,
		logger:  logger,
		cron:    cron.New(),
		timeout: 30 * time.Second,
	}
}

// Start schedules the sweep and begins running it. An empty schedule uses
// DefaultJanitorSchedule.
func (j *Janitor) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultJanitorSchedule
	}
	if _, err := j.cron.AddFunc(schedule, j.sweep); err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// Sweep runs one pass immediately. Exposed for tests and manual triggers.
func (j *Janitor) Sweep() {
	j.sweep()
}

func (j *Janitor) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	sessions, err := j.store.List(ctx)
	if err != nil {
		j.logger.Warn("session sweep failed", "error", err)
		return
	}

	now := time.Now().UTC()
	removed, expired := 0, 0
	for _, s := range sessions {
		switch {
		case s.Terminal():
			if err := j.store.Delete(ctx, s.ID); err != nil {
				j.logger.Warn("failed to remove terminal session", "session_id", s.ID, "error", err)
				continue
			}
			removed++
		case s.Expired(now):
			expired++
			if j.expire != nil {
				j.expire(ctx, s.ID)
			} else {
				j.logger.Warn("session past deadline", "session_id", s.ID, "deadline", s.Deadline)
			}
		}
	}

	if removed > 0 || expired > 0 {
		j.logger.Info("session sweep complete",
			"removed", removed, "expired", expired, "scanned", len(sessions))
	}
}
