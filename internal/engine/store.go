package engine

import (
	"context"
	"time"

	"live-session-service/internal/domain"
)

// EngineStore abstracts how session state is stored (in-memory, Redis, etc).
// UpdateSession is the concurrency primitive everything else leans on: it must
// apply fn as one atomic read-modify-write of the session record, retrying
// internally on conflict. AddElapsed must be an atomic add-and-store.
type EngineStore interface {
	CreateSession(ctx context.Context, s domain.Session) error
	GetSession(ctx context.Context, sessionID string) (domain.Session, error)
	UpdateSession(ctx context.Context, sessionID string, fn func(domain.Session) (domain.Session, error)) (domain.Session, error)

	UpsertParticipant(ctx context.Context, p domain.Participant) error
	TouchParticipant(ctx context.Context, sessionID, userID string, seen time.Time) (bool, error)
	GetParticipant(ctx context.Context, sessionID, userID string) (domain.Participant, bool, error)
	ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error)
	DeleteParticipant(ctx context.Context, sessionID, userID string) error
	DeleteAllParticipants(ctx context.Context, sessionID string) error

	PutAnswer(ctx context.Context, a domain.Answer) error
	GetAnswer(ctx context.Context, sessionID, userID string, questionIndex uint32) (domain.Answer, bool, error)
	DeleteAnswer(ctx context.Context, sessionID, userID string, questionIndex uint32) error
	ListUserAnswers(ctx context.Context, sessionID, userID string) ([]domain.Answer, error)
	ListQuestionAnswers(ctx context.Context, sessionID string, questionIndex uint32) ([]domain.Answer, error)
	HasAnswers(ctx context.Context, sessionID string) (bool, error)

	PutResult(ctx context.Context, r domain.Result) error
	GetResult(ctx context.Context, sessionID, userID string) (domain.Result, bool, error)

	AddElapsed(ctx context.Context, sessionID string, questionIndex uint32, seconds float64) error
	ElapsedFor(ctx context.Context, sessionID string, questionIndex uint32) (float64, error)
	ElapsedTotal(ctx context.Context, sessionID string) (float64, error)
}

// ExamRepository loads exam definitions (from cache/backing store). Exams are
// owned by the authoring collaborator and read-only here.
type ExamRepository interface {
	GetExam(ctx context.Context, examID string) (domain.Exam, error)
}

// EligibilityFunc is the external group-membership predicate for joining a
// session. A nil func admits everyone.
type EligibilityFunc func(ctx context.Context, userID string, exam domain.Exam) (bool, error)
