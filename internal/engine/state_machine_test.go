package engine

import (
	"testing"

	"live-session-service/internal/domain"
)

func baseSession(reveal bool) domain.Session {
	return domain.Session{
		ID:                 "s1",
		Phase:              domain.PhaseNotStarted,
		Position:           0,
		Countdown:          domain.CountdownUnarmed,
		RevealResultsToAll: reveal,
	}
}

// reachableStates walks forward from NotStarted and collects every state
// before Ended.
func reachableStates(reveal bool, questionCount uint32) []domain.Session {
	s := baseSession(reveal)
	states := []domain.Session{s}
	for i := 0; i < 100; i++ {
		s = forward(s, questionCount)
		if s.Phase == domain.PhaseEnded {
			break
		}
		states = append(states, s)
	}
	return states
}

func TestForwardThenBackRestoresPosition(t *testing.T) {
	for _, reveal := range []bool{true, false} {
		for _, state := range reachableStates(reveal, 3) {
			next := forward(state, 3)
			restored := back(next, 3)
			if restored.Position != state.Position {
				t.Fatalf("reveal=%v from %v/%d: forward+back landed on position %d",
					reveal, state.Phase, state.Position, restored.Position)
			}
			if !reveal && restored.Phase == domain.PhaseShowingResults {
				t.Fatalf("results phase observed with reveal disabled")
			}
		}
	}
}

func TestForwardExhaustsToEnded(t *testing.T) {
	for _, reveal := range []bool{true, false} {
		s := baseSession(reveal)
		s.Playing = true
		for i := 0; i < 50; i++ {
			s = forward(s, 2)
		}
		if s.Phase != domain.PhaseEnded {
			t.Fatalf("reveal=%v: expected ended, got %v", reveal, s.Phase)
		}
		if s.Position != domain.PositionAfterLast {
			t.Fatalf("expected position after last, got %d", s.Position)
		}
		if s.Playing {
			t.Fatalf("expected playing=false once ended")
		}
	}
}

func TestForwardSkipsResultsWhenRevealOff(t *testing.T) {
	s := baseSession(false)
	s = forward(s, 2) // stem q1
	s = forward(s, 2) // answers q1
	s = forward(s, 2) // should skip results, land on stem q2
	if s.Phase != domain.PhaseShowingStem || s.Position != 2 {
		t.Fatalf("expected stem q2, got %v/%d", s.Phase, s.Position)
	}
}

func TestForwardOnEmptyExamEndsImmediately(t *testing.T) {
	s := forward(baseSession(true), 0)
	if s.Phase != domain.PhaseEnded || s.Position != domain.PositionAfterLast {
		t.Fatalf("expected ended on empty exam, got %v/%d", s.Phase, s.Position)
	}
}

func TestBackFromEndedLandsOnLastQuestionTerminalPhase(t *testing.T) {
	s := baseSession(true)
	for i := 0; i < 50; i++ {
		s = forward(s, 2)
	}
	s = back(s, 2)
	if s.Position != 2 || s.Phase != domain.PhaseShowingResults {
		t.Fatalf("expected results q2, got %v/%d", s.Phase, s.Position)
	}

	s = baseSession(false)
	for i := 0; i < 50; i++ {
		s = forward(s, 2)
	}
	s = back(s, 2)
	if s.Position != 2 || s.Phase != domain.PhaseShowingAnswers {
		t.Fatalf("expected answers q2, got %v/%d", s.Phase, s.Position)
	}
}

func TestBackFromFirstStemReturnsToNotStarted(t *testing.T) {
	s := forward(baseSession(true), 2) // stem q1
	s = back(s, 2)
	if s.Phase != domain.PhaseNotStarted || s.Position != 0 {
		t.Fatalf("expected not started, got %v/%d", s.Phase, s.Position)
	}
}

func TestTransitionsClearCountdown(t *testing.T) {
	s := baseSession(true)
	s.Countdown = 25
	s = forward(s, 2)
	if s.Countdown != domain.CountdownUnarmed {
		t.Fatalf("forward left countdown armed at %d", s.Countdown)
	}
	s.Countdown = 25
	s = back(s, 2)
	if s.Countdown != domain.CountdownUnarmed {
		t.Fatalf("back left countdown armed at %d", s.Countdown)
	}
}

func TestStartOnlyFlipsPlaying(t *testing.T) {
	s, err := start(baseSession(true))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !s.Playing || s.Phase != domain.PhaseNotStarted || s.Position != 0 {
		t.Fatalf("start must not move the session, got %v/%d playing=%v", s.Phase, s.Position, s.Playing)
	}

	if _, err := start(s); err != domain.ErrInvalidTransition {
		t.Fatalf("expected invalid transition on double start, got %v", err)
	}
}

func TestPlayPauseRefusesResumeAfterEnded(t *testing.T) {
	s := baseSession(true)
	for i := 0; i < 50; i++ {
		s = forward(s, 1)
	}
	if _, err := playPause(s); err != domain.ErrInvalidTransition {
		t.Fatalf("expected invalid transition, got %v", err)
	}

	playing, err := playPause(forward(baseSession(true), 1))
	if err != nil || !playing.Playing {
		t.Fatalf("expected toggle to playing, got %v err=%v", playing.Playing, err)
	}
}

func TestArmCountdown(t *testing.T) {
	s, err := armCountdown(baseSession(true), 30)
	if err != nil || s.Countdown != 30 {
		t.Fatalf("expected armed at 30, got %d err=%v", s.Countdown, err)
	}
	s, err = armCountdown(s, -5)
	if err != nil || s.Countdown != domain.CountdownUnarmed {
		t.Fatalf("expected disarmed, got %d err=%v", s.Countdown, err)
	}

	ended := baseSession(true)
	ended.Phase = domain.PhaseEnded
	if _, err := armCountdown(ended, 10); err != domain.ErrInvalidTransition {
		t.Fatalf("expected invalid transition on ended session, got %v", err)
	}
}

func TestTickCountdownFiresOnceAtZero(t *testing.T) {
	s := baseSession(true)
	s.Playing = true
	s.Countdown = 30 // three 10s ticks

	fires := 0
	for i := 0; i < 6; i++ {
		var expired bool
		s, expired = tickCountdown(s, 10)
		if expired {
			fires++
			if i != 2 {
				t.Fatalf("expected expiry on third tick, fired on tick %d", i+1)
			}
		}
	}
	if fires != 1 {
		t.Fatalf("expected exactly one expiry, got %d", fires)
	}
	if s.Countdown != domain.CountdownUnarmed {
		t.Fatalf("expected countdown disarmed after expiry, got %d", s.Countdown)
	}
}

func TestTickCountdownNoopWhenPausedOrUnarmed(t *testing.T) {
	s := baseSession(true)
	s.Countdown = 20
	s.Playing = false
	next, expired := tickCountdown(s, 10)
	if expired || next.Countdown != 20 {
		t.Fatalf("paused session must not tick, got %d expired=%v", next.Countdown, expired)
	}

	s.Playing = true
	s.Countdown = domain.CountdownUnarmed
	next, expired = tickCountdown(s, 10)
	if expired || next.Countdown != domain.CountdownUnarmed {
		t.Fatalf("unarmed countdown must not tick, got %d expired=%v", next.Countdown, expired)
	}
}
