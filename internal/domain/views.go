package domain

// PresenterView is the payload a presenter client sees on every poll.
type PresenterView struct {
	SessionID          string  `json:"sessionId"`
	Phase              string  `json:"phase"`
	Position           uint32  `json:"position"`
	Playing            bool    `json:"playing"`
	Countdown          int     `json:"countdown"`
	Columns            int     `json:"columns"`
	RevealResultsToAll bool    `json:"revealResultsToAll"`
	ElapsedTotal       float64 `json:"elapsedTotal"`
	ElapsedCurrent     float64 `json:"elapsedCurrent"`
	ParticipantCount   int     `json:"participantCount"`
	AnsweredCount      int     `json:"answeredCount"`
	// OptionTally holds per-option answer counts (by display ordinal) for the
	// current question; populated only while Phase=showing_results.
	OptionTally []int `json:"optionTally,omitempty"`
}

// ParticipantState collapses Phase to what a participant needs to know.
type ParticipantState string

const (
	ParticipantWaiting  ParticipantState = "waiting"
	ParticipantQuestion ParticipantState = "question"
	ParticipantFinished ParticipantState = "finished"
)

// QuestionView is the stem and options of the current question in display
// order. Correctness flags are never included.
type QuestionView struct {
	Stem    string   `json:"stem"`
	Options []string `json:"options"`
}

// ParticipantView is the payload a participant client sees on every poll.
// MyChoice is the caller's prior answer for the current question, as a display
// ordinal; Result appears only once the session ended and results are visible.
type ParticipantView struct {
	SessionID string           `json:"sessionId"`
	State     ParticipantState `json:"state"`
	Position  uint32           `json:"position"`
	Columns   int              `json:"columns"`
	Question  *QuestionView    `json:"question,omitempty"`
	MyChoice  *int             `json:"myChoice,omitempty"`
	Result    *Result          `json:"result,omitempty"`
}
