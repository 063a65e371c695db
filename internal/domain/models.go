package domain

import (
	"math"
	"time"
)

// Phase is the coarse display state of a session, independent of whether the
// session clock is running.
type Phase int

const (
	PhaseNotStarted Phase = iota
	PhaseShowingStem
	PhaseShowingAnswers
	PhaseShowingResults
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseNotStarted:
		return "not_started"
	case PhaseShowingStem:
		return "showing_stem"
	case PhaseShowingAnswers:
		return "showing_answers"
	case PhaseShowingResults:
		return "showing_results"
	case PhaseEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// PositionAfterLast marks a session that has moved past its final question.
const PositionAfterLast uint32 = math.MaxUint32

// CountdownUnarmed means no countdown is running for the session.
const CountdownUnarmed = -1

// Session is one live occurrence of an exam being presented in real time.
// Question positions are 1-based; Position 0 means "before the first question".
type Session struct {
	ID                           string    `json:"id"`
	ExamID                       string    `json:"examId"`
	PresenterID                  string    `json:"presenterId"`
	WindowStart                  time.Time `json:"windowStart"`
	WindowEnd                    time.Time `json:"windowEnd"`
	Phase                        Phase     `json:"phase"`
	Position                     uint32    `json:"position"`
	Playing                      bool      `json:"playing"`
	Countdown                    int       `json:"countdown"` // seconds; CountdownUnarmed when off
	RevealResultsToAll           bool      `json:"revealResultsToAll"`
	ResultsVisibleToParticipants bool      `json:"resultsVisibleToParticipants"`
	Columns                      int       `json:"columns"`
	PresenterSeen                time.Time `json:"presenterSeen"`
	LastTick                     time.Time `json:"lastTick"`
}

// InWindow reports whether now falls inside the session's validity window.
func (s Session) InWindow(now time.Time) bool {
	return !now.Before(s.WindowStart) && !now.After(s.WindowEnd)
}

// OnQuestion reports whether Position currently refers to a question.
func (s Session) OnQuestion() bool {
	switch s.Phase {
	case PhaseShowingStem, PhaseShowingAnswers, PhaseShowingResults:
		return true
	default:
		return false
	}
}

// Participant is a session-scoped presence record. A row exists exactly while
// the user is considered present.
type Participant struct {
	SessionID string    `json:"sessionId"`
	UserID    string    `json:"userId"`
	LastSeen  time.Time `json:"lastSeen"`
}

// Answer is one participant's latest response to one question.
type Answer struct {
	SessionID     string `json:"sessionId"`
	UserID        string `json:"userId"`
	QuestionIndex uint32 `json:"questionIndex"`
	ChoiceOrdinal int    `json:"choiceOrdinal"` // position as displayed
	OptionIndex   int    `json:"optionIndex"`   // underlying option after un-shuffling
}

// Result is a participant's running score for a session, recomputed in full
// from their answers on every ingestion.
type Result struct {
	SessionID         string  `json:"sessionId"`
	UserID            string  `json:"userId"`
	QuestionsAnswered int     `json:"questionsAnswered"`
	QuestionsTotal    int     `json:"questionsTotal"`
	Score             float64 `json:"score"`
}

// Option is one possible answer for a question.
type Option struct {
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question is an MCQ question with exactly one correct option. Shuffle is the
// fixed display permutation: the option shown at ordinal i is Options[Shuffle[i]].
// It is generated once when the exam is authored and never changes for the
// life of any session using it.
type Question struct {
	Stem    string   `json:"stem"`
	Options []Option `json:"options"`
	Shuffle []int    `json:"shuffle"`
	Points  int      `json:"points"` // defaults to 1 if zero
}

// OptionAt resolves a display ordinal to the underlying option index.
func (q Question) OptionAt(ordinal int) (int, bool) {
	if ordinal < 0 || ordinal >= len(q.Options) {
		return 0, false
	}
	if len(q.Shuffle) == len(q.Options) {
		return q.Shuffle[ordinal], true
	}
	return ordinal, true
}

// OrdinalOf is the inverse of OptionAt: the display ordinal of an option index.
func (q Question) OrdinalOf(optionIndex int) int {
	if len(q.Shuffle) == len(q.Options) {
		for ordinal, idx := range q.Shuffle {
			if idx == optionIndex {
				return ordinal
			}
		}
		return -1
	}
	if optionIndex < 0 || optionIndex >= len(q.Options) {
		return -1
	}
	return optionIndex
}

// CorrectOption returns the index of the correct option, or -1.
func (q Question) CorrectOption() int {
	for i, opt := range q.Options {
		if opt.Correct {
			return i
		}
	}
	return -1
}

// Exam is the external question-set definition; read-only to this engine.
// WrongPenalty is the positive fraction subtracted for a wrong answer.
type Exam struct {
	ID             string     `json:"id"`
	Questions      []Question `json:"questions"`
	WrongPenalty   float64    `json:"wrongPenalty"`
	EligibleGroups []string   `json:"eligibleGroups"`
}
