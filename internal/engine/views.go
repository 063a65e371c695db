package engine

import (
	"context"

	"live-session-service/internal/domain"
)

// presenterView projects session + presence + answer state into the payload a
// presenter client renders. Pure read; no mutation.
func (e *EngineService) presenterView(ctx context.Context, s domain.Session) (domain.PresenterView, error) {
	view := domain.PresenterView{
		SessionID:          s.ID,
		Phase:              s.Phase.String(),
		Position:           s.Position,
		Playing:            s.Playing,
		Countdown:          s.Countdown,
		Columns:            s.Columns,
		RevealResultsToAll: s.RevealResultsToAll,
	}

	total, err := e.store.ElapsedTotal(ctx, s.ID)
	if err != nil {
		return domain.PresenterView{}, err
	}
	view.ElapsedTotal = total

	participants, err := e.store.ListParticipants(ctx, s.ID)
	if err != nil {
		return domain.PresenterView{}, err
	}
	view.ParticipantCount = len(participants)

	if !s.OnQuestion() {
		return view, nil
	}

	current, err := e.store.ElapsedFor(ctx, s.ID, s.Position)
	if err != nil {
		return domain.PresenterView{}, err
	}
	view.ElapsedCurrent = current

	answers, err := e.store.ListQuestionAnswers(ctx, s.ID, s.Position)
	if err != nil {
		return domain.PresenterView{}, err
	}
	view.AnsweredCount = len(answers)

	if s.Phase == domain.PhaseShowingResults {
		exam, err := e.exams.GetExam(ctx, s.ExamID)
		if err != nil {
			return domain.PresenterView{}, err
		}
		if s.Position <= uint32(len(exam.Questions)) {
			q := exam.Questions[s.Position-1]
			tally := make([]int, len(q.Options))
			for _, a := range answers {
				if ordinal := q.OrdinalOf(a.OptionIndex); ordinal >= 0 {
					tally[ordinal]++
				}
			}
			view.OptionTally = tally
		}
	}
	return view, nil
}

// participantView projects what one participant may see: the question body
// only while answers are open, their own prior choice, and their result only
// after the session ended with results enabled. Other participants' answers
// are never included.
func (e *EngineService) participantView(ctx context.Context, s domain.Session, userID string) (domain.ParticipantView, error) {
	view := domain.ParticipantView{
		SessionID: s.ID,
		Position:  s.Position,
		Columns:   s.Columns,
	}

	switch s.Phase {
	case domain.PhaseEnded:
		view.State = domain.ParticipantFinished
		if s.ResultsVisibleToParticipants {
			result, ok, err := e.store.GetResult(ctx, s.ID, userID)
			if err != nil {
				return domain.ParticipantView{}, err
			}
			if ok {
				view.Result = &result
			}
		}
		return view, nil
	case domain.PhaseShowingAnswers:
		view.State = domain.ParticipantQuestion
	default:
		view.State = domain.ParticipantWaiting
		return view, nil
	}

	exam, err := e.exams.GetExam(ctx, s.ExamID)
	if err != nil {
		return domain.ParticipantView{}, err
	}
	if s.Position == 0 || s.Position > uint32(len(exam.Questions)) {
		return view, nil
	}
	q := exam.Questions[s.Position-1]

	options := make([]string, len(q.Options))
	for ordinal := range options {
		idx, _ := q.OptionAt(ordinal)
		options[ordinal] = q.Options[idx].Text
	}
	view.Question = &domain.QuestionView{Stem: q.Stem, Options: options}

	answer, ok, err := e.store.GetAnswer(ctx, s.ID, userID, s.Position)
	if err != nil {
		return domain.ParticipantView{}, err
	}
	if ok {
		choice := answer.ChoiceOrdinal
		view.MyChoice = &choice
	}
	return view, nil
}
