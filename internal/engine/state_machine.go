package engine

import "live-session-service/internal/domain"

// The transition functions below are pure: they map a session row plus the
// exam's question count to the next row. Every explicit transition disarms the
// countdown, and any transition that lands on Ended stops the session clock.

// forward advances one display step. The progression per question is
// stem -> answers -> results -> next stem; the results step is skipped when
// RevealResultsToAll is off. Forward on an ended session is a no-op.
func forward(s domain.Session, questionCount uint32) domain.Session {
	switch s.Phase {
	case domain.PhaseEnded:
		return s
	case domain.PhaseNotStarted:
		if questionCount == 0 {
			return endSession(s)
		}
		s.Position = 1
		s.Phase = domain.PhaseShowingStem
	case domain.PhaseShowingStem:
		s.Phase = domain.PhaseShowingAnswers
	case domain.PhaseShowingAnswers:
		if s.RevealResultsToAll {
			s.Phase = domain.PhaseShowingResults
		} else {
			return nextQuestionOrEnd(s, questionCount)
		}
	case domain.PhaseShowingResults:
		return nextQuestionOrEnd(s, questionCount)
	}
	s.Countdown = domain.CountdownUnarmed
	return s
}

// back is the inverse of forward with symmetric phase collapsing: from a stem
// (or from Ended) it lands on the previous question's terminal visible phase.
func back(s domain.Session, questionCount uint32) domain.Session {
	switch s.Phase {
	case domain.PhaseNotStarted:
		return s
	case domain.PhaseShowingAnswers:
		s.Phase = domain.PhaseShowingStem
	case domain.PhaseShowingResults:
		s.Phase = domain.PhaseShowingAnswers
	case domain.PhaseShowingStem:
		return previousTerminal(s, s.Position-1)
	case domain.PhaseEnded:
		return previousTerminal(s, questionCount)
	}
	s.Countdown = domain.CountdownUnarmed
	return s
}

// nextQuestionOrEnd moves to the following question's stem, or ends the
// session when the set is exhausted.
func nextQuestionOrEnd(s domain.Session, questionCount uint32) domain.Session {
	if s.Position >= questionCount {
		return endSession(s)
	}
	s.Position++
	s.Phase = domain.PhaseShowingStem
	s.Countdown = domain.CountdownUnarmed
	return s
}

// previousTerminal lands on position's last visible phase, or back on
// NotStarted when there is no previous question.
func previousTerminal(s domain.Session, position uint32) domain.Session {
	if position == 0 {
		s.Position = 0
		s.Phase = domain.PhaseNotStarted
		s.Countdown = domain.CountdownUnarmed
		return s
	}
	s.Position = position
	if s.RevealResultsToAll {
		s.Phase = domain.PhaseShowingResults
	} else {
		s.Phase = domain.PhaseShowingAnswers
	}
	s.Countdown = domain.CountdownUnarmed
	return s
}

func endSession(s domain.Session) domain.Session {
	s.Phase = domain.PhaseEnded
	s.Position = domain.PositionAfterLast
	s.Playing = false
	s.Countdown = domain.CountdownUnarmed
	return s
}

// start arms the session clock without moving off NotStarted; the first
// forward commits to question one.
func start(s domain.Session) (domain.Session, error) {
	if s.Phase != domain.PhaseNotStarted || s.Playing {
		return s, domain.ErrInvalidTransition
	}
	s.Playing = true
	return s, nil
}

// playPause toggles the session clock. A finished session cannot resume.
func playPause(s domain.Session) (domain.Session, error) {
	if !s.Playing && s.Phase == domain.PhaseEnded {
		return s, domain.ErrInvalidTransition
	}
	s.Playing = !s.Playing
	return s, nil
}

// armCountdown sets the countdown; negative values disarm it.
func armCountdown(s domain.Session, seconds int) (domain.Session, error) {
	if s.Phase == domain.PhaseEnded {
		return s, domain.ErrInvalidTransition
	}
	if seconds < 0 {
		s.Countdown = domain.CountdownUnarmed
	} else {
		s.Countdown = seconds
	}
	return s, nil
}

// tickCountdown applies one tick of tickSeconds. It reports whether the
// countdown expired on this tick, in which case the caller fires forward and
// the countdown is already disarmed — a racing second tick sees an unarmed
// countdown and no-ops.
func tickCountdown(s domain.Session, tickSeconds int) (domain.Session, bool) {
	if !s.Playing || s.Countdown < 0 {
		return s, false
	}
	s.Countdown -= tickSeconds
	if s.Countdown <= 0 {
		s.Countdown = domain.CountdownUnarmed
		return s, true
	}
	return s, false
}
