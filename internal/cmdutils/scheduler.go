package cmdutils

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// refreshAhead is how long before a reported expiration the next derivation
// fires, leaving headroom for an interactive MFA exchange.
const refreshAhead = 5 * time.Minute

// TimerScheduler re-invokes the engine per session ahead of the expiration
// it reported. One timer per session: a newer schedule replaces the old one,
// mirroring the replace-never-queue rule of the engine itself.
type TimerScheduler struct {
	engine EngineApi
	log    *log.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
	ctx    context.Context
	cancel context.CancelFunc
}

func NewTimerScheduler(engine EngineApi, logger *log.Logger) *TimerScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &TimerScheduler{
		engine: engine,
		log:    logger,
		timers: map[string]*time.Timer{},
		ctx:    ctx,
		cancel: cancel,
	}
}

// ScheduleRefresh arms (or re-arms) the session's timer. An already-expired
// timestamp fires after a minimal delay rather than being dropped.
func (t *TimerScheduler) ScheduleRefresh(sessionID string, expires time.Time) {
	delay := time.Until(expires) - refreshAhead
	if delay < time.Second {
		delay = time.Second
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.timers[sessionID]; ok {
		prev.Stop()
	}
	t.timers[sessionID] = time.AfterFunc(delay, func() {
		if t.ctx.Err() != nil {
			return
		}
		t.log.Debug("timed refresh firing", "session", sessionID)
		t.engine.Refresh(t.ctx, sessionID)
	})
}

// Stop disarms every timer and prevents queued callbacks from deriving.
func (t *TimerScheduler) Stop() {
	t.cancel()
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
}
