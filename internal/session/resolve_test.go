package session

import (
	"testing"
)

func stage(fx *fixture, t *testing.T, kind string, answer *string) {
	t.Helper()
	fx.dispatch(t, CmdSetResolution, StagedResolution{GameResolutionType: kind, TeamAnswer: answer})
}

func resolve(fx *fixture, t *testing.T) Resolution {
	t.Helper()
	fx.dispatch(t, CmdBlockFinished, nil)
	return fx.bcast.last(t, EventGameResolved).payload.(Resolution)
}

func TestResolveAwardsPointsForCorrectKinds(t *testing.T) {
	for _, kind := range []string{"AP", "DP"} {
		t.Run(kind, func(t *testing.T) {
			fx := newFixture(t, 60, 5)
			answer := "42"
			stage(fx, t, kind, &answer)

			res := resolve(fx, t)

			if fx.sess.CurrentScore != 5 {
				t.Errorf("expected score 5, got %d", fx.sess.CurrentScore)
			}
			if !res.IsAnswerCorrect {
				t.Error("expected answer marked correct")
			}
			if res.PointsAwarded != 5 {
				t.Errorf("expected 5 points awarded, got %d", res.PointsAwarded)
			}
			if res.TeamAnswer == nil || *res.TeamAnswer != "42" {
				t.Errorf("expected team answer 42, got %v", res.TeamAnswer)
			}
			if res.CurrentScore != 5 {
				t.Errorf("expected resolution score 5, got %d", res.CurrentScore)
			}
		})
	}
}

func TestResolveNoPointsKinds(t *testing.T) {
	for _, kind := range []string{"ANP", "DNP"} {
		t.Run(kind, func(t *testing.T) {
			fx := newFixture(t, 60, 5)
			answer := "wrong"
			stage(fx, t, kind, &answer)

			res := resolve(fx, t)

			if fx.sess.CurrentScore != 0 {
				t.Errorf("expected score unchanged, got %d", fx.sess.CurrentScore)
			}
			if res.IsAnswerCorrect {
				t.Error("expected answer marked incorrect")
			}
			if res.PointsAwarded != 0 {
				t.Errorf("expected 0 points awarded, got %d", res.PointsAwarded)
			}
			if res.TeamAnswer == nil || *res.TeamAnswer != "wrong" {
				t.Errorf("expected team answer preserved, got %v", res.TeamAnswer)
			}
		})
	}
}

func TestResolveTimeoutClearsAnswer(t *testing.T) {
	fx := newFixture(t, 60, 5)
	answer := "late"
	stage(fx, t, "TNP", &answer)

	res := resolve(fx, t)

	if fx.sess.CurrentScore != 0 {
		t.Errorf("expected score unchanged, got %d", fx.sess.CurrentScore)
	}
	if res.TeamAnswer != nil {
		t.Errorf("expected null team answer on timeout, got %v", *res.TeamAnswer)
	}
}

func TestResolveUnrecognizedKindIsNoOp(t *testing.T) {
	fx := newFixture(t, 60, 5)
	stage(fx, t, "XYZ", nil)

	res := resolve(fx, t)

	if fx.sess.CurrentScore != 0 {
		t.Errorf("expected score unchanged, got %d", fx.sess.CurrentScore)
	}
	if res.TeamAnswer != nil {
		t.Errorf("expected null team answer, got %v", *res.TeamAnswer)
	}
}

func TestResolveConsumesStagedInputsOnce(t *testing.T) {
	fx := newFixture(t, 60, 5)
	answer := "42"
	stage(fx, t, "AP", &answer)

	resolve(fx, t)

	if fx.sess.GameResolutionType != "" {
		t.Errorf("expected staged kind cleared, got %q", fx.sess.GameResolutionType)
	}
	if fx.sess.TeamAnswer != nil {
		t.Errorf("expected staged answer cleared, got %v", *fx.sess.TeamAnswer)
	}

	// Resolving again without re-staging runs the unrecognized branch
	// and must not touch the score.
	resolve(fx, t)
	if fx.sess.CurrentScore != 5 {
		t.Errorf("expected score still 5 after double resolve, got %d", fx.sess.CurrentScore)
	}
}

func TestResolveRecordsTelemetry(t *testing.T) {
	fx := newFixture(t, 60, 5)
	fx.dispatch(t, CmdSetParticipant, "alice")
	fx.dispatch(t, CmdSetConfederate, "bob")
	answer := "42"
	stage(fx, t, "DP", &answer)

	resolve(fx, t)

	events := fx.sink.recorded()
	if len(events) != 1 {
		t.Fatalf("expected one telemetry event, got %d", len(events))
	}
	if events[0].Action != "game resolved" || events[0].Resolution != "DP" {
		t.Errorf("unexpected telemetry event %#v", events[0])
	}
	if events[0].User != "alice" || events[0].Confederate != "bob" {
		t.Errorf("expected identities on event, got %#v", events[0])
	}
}
