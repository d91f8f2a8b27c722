package session

import (
	"github.com/rs/zerolog/log"
)

// resolveGameLocked scores the staged resolution kind, adjusts the
// score, records the outcome, and broadcasts it. The staged inputs
// are consumed exactly once: resolving again without re-staging runs
// the unrecognized branch and leaves the score untouched.
func (r *Router) resolveGameLocked() {
	kind, answer := r.session.ConsumeResolution()

	resolution := Resolution{}
	switch kind {
	case ResolutionAttackerPoints, ResolutionDefenderPoints:
		r.session.CurrentScore += r.session.PointsAwarded
		resolution.IsAnswerCorrect = true
		resolution.PointsAwarded = r.session.PointsAwarded
	case ResolutionAttackerNoPoints, ResolutionDefenderNoPoints:
		resolution.IsAnswerCorrect = false
		resolution.PointsAwarded = 0
	case ResolutionTimeoutNoPoints:
		answer = nil
	default:
		log.Warn().Str("kind", string(kind)).Msg("unrecognized resolution kind")
		answer = nil
	}
	resolution.TeamAnswer = answer
	resolution.CurrentScore = r.session.CurrentScore

	r.recordActionLocked("game resolved", string(kind))
	r.bcast.BroadcastAll(EventGameResolved, resolution)

	log.Info().
		Str("kind", string(kind)).
		Bool("correct", resolution.IsAnswerCorrect).
		Int("score", resolution.CurrentScore).
		Msg("game resolved")
}
