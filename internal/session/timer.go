package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
)

// timerTask is the ownership token for the one live countdown ticker.
// Cancelling its context stops the tick goroutine; the generation
// number makes any tick already in flight a no-op.
type timerTask struct {
	cancel context.CancelFunc
	gen    uint64
}

func (r *Router) handleStartTimer(senderID string, data json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startTimerLocked()
}

// startTimerLocked resets the countdown to maxTime and replaces any
// running ticker. Cancel-before-replace keeps at most one live ticker
// per session and makes repeated "start timer" commands idempotent.
func (r *Router) startTimerLocked() {
	r.cancelTimerLocked()
	r.session.Countdown = r.session.MaxTime

	r.timerGen++
	ctx, cancel := context.WithCancel(context.Background())
	task := &timerTask{cancel: cancel, gen: r.timerGen}
	r.session.timer = task
	go r.runTimer(ctx, task.gen)

	r.bcast.BroadcastAll(EventTimerUpdate, r.session.Countdown)
	log.Debug().Int("countdown", r.session.Countdown).Msg("timer started")
}

func (r *Router) runTimer(ctx context.Context, gen uint64) {
	ticker := r.clock.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			r.tick(gen)
		}
	}
}

// tick runs one countdown step. A tick from a cancelled or replaced
// ticker fails the generation check and does nothing, so no stale
// "timer update" can fire after a stop or reset.
func (r *Router) tick(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session.timer == nil || r.session.timer.gen != gen {
		return
	}
	if r.session.Countdown > 0 {
		r.session.Countdown--
		r.bcast.BroadcastAll(EventTimerUpdate, r.session.Countdown)
		if r.session.Countdown > 0 {
			return
		}
	}
	r.expireLocked()
}

// expireLocked handles RUNNING -> EXPIRED: the ticker is cancelled,
// the timeout resolution kind is staged, and the game resolves.
func (r *Router) expireLocked() {
	r.cancelTimerLocked()
	r.session.GameResolutionType = ResolutionTimeoutNoPoints
	log.Info().Msg("timer expired")
	r.resolveGameLocked()
}

func (r *Router) handleStopTimer(senderID string, data json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelTimerLocked()
	r.bcast.BroadcastAll(EventTimerUpdate, r.session.Countdown)
}

func (r *Router) handleResetTimer(senderID string, data json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session.Countdown = r.session.MaxTime
	r.bcast.BroadcastAll(EventTimerUpdate, r.session.Countdown)
}

func (r *Router) handleSetMaxTime(senderID string, data json.RawMessage) {
	var seconds int
	if err := json.Unmarshal(data, &seconds); err != nil || seconds < 0 {
		log.Warn().Err(err).Str("sender", senderID).Msg("malformed max time payload")
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session.MaxTime = seconds
	r.cancelTimerLocked()
	r.bcast.BroadcastAll(EventTimerUpdate, r.session.MaxTime)
}

// cancelTimerLocked stops the live ticker if there is one and bumps
// the generation so in-flight ticks are discarded.
func (r *Router) cancelTimerLocked() {
	r.timerGen++
	if r.session.timer != nil {
		r.session.timer.cancel()
		r.session.timer = nil
	}
}
