package session

import (
	"testing"
	"time"
)

func timerValues(fx *fixture) []int {
	var values []int
	for _, ev := range fx.bcast.named(EventTimerUpdate) {
		values = append(values, ev.payload.(int))
	}
	return values
}

func lastTimerValue(fx *fixture) int {
	values := timerValues(fx)
	if len(values) == 0 {
		return -1
	}
	return values[len(values)-1]
}

// advanceTick advances the fake clock by one second and waits for the
// countdown to reach want. The advance is retried because a freshly
// replaced ticker may not be armed yet when the clock moves.
func advanceTick(t *testing.T, fx *fixture, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		fx.clock.Advance(time.Second)
		settle := time.Now().Add(100 * time.Millisecond)
		for time.Now().Before(settle) {
			if lastTimerValue(fx) == want {
				return
			}
			time.Sleep(time.Millisecond)
		}
	}
	t.Fatalf("countdown never reached %d, last value %d", want, lastTimerValue(fx))
}

func TestTimerCountsDownAndResolvesOnExpiry(t *testing.T) {
	fx := newFixture(t, 10, 5)

	fx.dispatch(t, CmdStartTimer, nil)
	fx.clock.BlockUntil(1)

	if got := lastTimerValue(fx); got != 10 {
		t.Fatalf("expected initial timer update 10, got %d", got)
	}

	for want := 9; want >= 0; want-- {
		advanceTick(t, fx, want)
	}

	waitFor(t, func() bool { return len(fx.bcast.named(EventGameResolved)) == 1 })
	res := fx.bcast.last(t, EventGameResolved).payload.(Resolution)
	if res.PointsAwarded != 0 {
		t.Errorf("expected 0 points on timeout, got %d", res.PointsAwarded)
	}
	if res.TeamAnswer != nil {
		t.Errorf("expected null team answer on timeout, got %v", *res.TeamAnswer)
	}
	if res.IsAnswerCorrect {
		t.Error("expected timeout marked incorrect")
	}

	// No further ticks after expiry.
	updates := len(fx.bcast.named(EventTimerUpdate))
	fx.clock.Advance(time.Second)
	time.Sleep(50 * time.Millisecond)
	if got := len(fx.bcast.named(EventTimerUpdate)); got != updates {
		t.Errorf("expected no timer updates after expiry, got %d extra", got-updates)
	}

	events := fx.sink.recorded()
	if len(events) != 1 || events[0].Resolution != string(ResolutionTimeoutNoPoints) {
		t.Errorf("expected one TNP telemetry event, got %#v", events)
	}
}

func TestStartTimerReplacesRunningTimer(t *testing.T) {
	fx := newFixture(t, 10, 5)

	fx.dispatch(t, CmdStartTimer, nil)
	fx.clock.BlockUntil(1)
	advanceTick(t, fx, 9)
	advanceTick(t, fx, 8)

	fx.dispatch(t, CmdStartTimer, nil)
	waitFor(t, func() bool { return lastTimerValue(fx) == 10 })

	advanceTick(t, fx, 9)

	// The two countdown sequences must not interleave: once the timer
	// restarts, no tick from the first run may land.
	want := []int{10, 9, 8, 10, 9}
	got := timerValues(fx)
	if len(got) != len(want) {
		t.Fatalf("expected timer updates %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected timer updates %v, got %v", want, got)
		}
	}
}

func TestStopTimerHaltsTicks(t *testing.T) {
	fx := newFixture(t, 5, 5)

	fx.dispatch(t, CmdStartTimer, nil)
	fx.clock.BlockUntil(1)
	advanceTick(t, fx, 4)

	fx.dispatch(t, CmdStopTimer, nil)
	if got := lastTimerValue(fx); got != 4 {
		t.Errorf("expected stop to broadcast current countdown 4, got %d", got)
	}

	updates := len(fx.bcast.named(EventTimerUpdate))
	fx.clock.Advance(time.Second)
	time.Sleep(50 * time.Millisecond)
	if got := len(fx.bcast.named(EventTimerUpdate)); got != updates {
		t.Error("expected no ticks after stop timer")
	}
}

func TestResetTimerKeepsTickerRunning(t *testing.T) {
	fx := newFixture(t, 3, 5)

	fx.dispatch(t, CmdStartTimer, nil)
	fx.clock.BlockUntil(1)
	advanceTick(t, fx, 2)

	fx.dispatch(t, CmdResetTimer, nil)
	if got := lastTimerValue(fx); got != 3 {
		t.Errorf("expected reset to broadcast maxTime 3, got %d", got)
	}

	// The ticker itself keeps running after a reset.
	advanceTick(t, fx, 2)
}

func TestSetMaxTimeCancelsRunningTimer(t *testing.T) {
	fx := newFixture(t, 5, 5)

	fx.dispatch(t, CmdStartTimer, nil)
	fx.clock.BlockUntil(1)
	advanceTick(t, fx, 4)

	fx.dispatch(t, CmdSetMaxTime, 8)
	if fx.sess.MaxTime != 8 {
		t.Errorf("expected maxTime 8, got %d", fx.sess.MaxTime)
	}
	if got := lastTimerValue(fx); got != 8 {
		t.Errorf("expected set max time to broadcast 8, got %d", got)
	}

	updates := len(fx.bcast.named(EventTimerUpdate))
	fx.clock.Advance(time.Second)
	time.Sleep(50 * time.Millisecond)
	if got := len(fx.bcast.named(EventTimerUpdate)); got != updates {
		t.Error("expected no ticks after set max time")
	}
}

func TestTimerWithZeroMaxTimeExpiresImmediately(t *testing.T) {
	fx := newFixture(t, 0, 5)

	fx.dispatch(t, CmdStartTimer, nil)
	fx.clock.BlockUntil(1)

	fx.clock.Advance(time.Second)
	waitFor(t, func() bool { return len(fx.bcast.named(EventGameResolved)) == 1 })
}
