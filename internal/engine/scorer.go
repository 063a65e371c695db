package engine

import "live-session-service/internal/domain"

// scoreDelta is the contribution of one answered question: full points for the
// correct option, minus the exam's wrong-answer penalty otherwise. Blank
// questions contribute nothing because they have no answer row at all.
func scoreDelta(q domain.Question, optionIndex int, wrongPenalty float64) float64 {
	if optionIndex == q.CorrectOption() {
		points := q.Points
		if points == 0 {
			points = 1
		}
		return float64(points)
	}
	return -wrongPenalty
}

// recomputeResult rebuilds a participant's result from every answer they have
// submitted in the session. Always a full recompute, never a delta, so a
// rescored overwrite of an earlier answer cannot drift the total.
func recomputeResult(exam domain.Exam, sessionID, userID string, answers []domain.Answer) domain.Result {
	result := domain.Result{
		SessionID:      sessionID,
		UserID:         userID,
		QuestionsTotal: len(exam.Questions),
	}
	for _, a := range answers {
		if a.QuestionIndex == 0 || a.QuestionIndex > uint32(len(exam.Questions)) {
			continue
		}
		q := exam.Questions[a.QuestionIndex-1]
		result.Score += scoreDelta(q, a.OptionIndex, exam.WrongPenalty)
		result.QuestionsAnswered++
	}
	return result
}
