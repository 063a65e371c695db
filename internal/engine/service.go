package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"live-session-service/internal/domain"
)

const (
	// DefaultPresenterPoll is the expected presenter poll interval and the
	// countdown tick size.
	DefaultPresenterPoll = 10 * time.Second
	// DefaultParticipantPoll is the expected participant poll interval.
	DefaultParticipantPoll = 15 * time.Second

	// staleMultiplier: presence and presenter-liveness records expire after
	// missing this many consecutive polls.
	staleMultiplier = 3
)

// Options tunes an EngineService. Zero values fall back to defaults.
type Options struct {
	Clock           clockwork.Clock
	Eligibility     EligibilityFunc
	PresenterPoll   time.Duration
	ParticipantPoll time.Duration
}

// EngineService contains the live-session use cases. All state transitions run
// synchronously inside some client's poll; there is no background ticker.
type EngineService struct {
	store           EngineStore
	exams           ExamRepository
	clock           clockwork.Clock
	eligible        EligibilityFunc
	presenterPoll   time.Duration
	participantPoll time.Duration
}

func NewEngineService(store EngineStore, exams ExamRepository, opts Options) *EngineService {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.PresenterPoll <= 0 {
		opts.PresenterPoll = DefaultPresenterPoll
	}
	if opts.ParticipantPoll <= 0 {
		opts.ParticipantPoll = DefaultParticipantPoll
	}
	return &EngineService{
		store:           store,
		exams:           exams,
		clock:           opts.Clock,
		eligible:        opts.Eligibility,
		presenterPoll:   opts.PresenterPoll,
		participantPoll: opts.ParticipantPoll,
	}
}

// CreateSessionParams carries presenter-supplied session configuration.
type CreateSessionParams struct {
	ExamID                       string
	WindowStart                  time.Time
	WindowEnd                    time.Time
	RevealResultsToAll           bool
	ResultsVisibleToParticipants bool
	Columns                      int
}

// CreateSession registers a new session in NotStarted. The exam must exist;
// loading it here also warms the exam cache, so the first participant poll
// does not pay the backing-store hit.
func (e *EngineService) CreateSession(ctx context.Context, presenterID string, params CreateSessionParams) (domain.PresenterView, error) {
	if _, err := e.exams.GetExam(ctx, params.ExamID); err != nil {
		return domain.PresenterView{}, err
	}
	if params.WindowEnd.Before(params.WindowStart) {
		return domain.PresenterView{}, domain.ErrOutOfWindow
	}
	columns := params.Columns
	if columns < 1 {
		columns = 1
	}

	now := e.clock.Now()
	session := domain.Session{
		ID:                           uuid.NewString(),
		ExamID:                       params.ExamID,
		PresenterID:                  presenterID,
		WindowStart:                  params.WindowStart,
		WindowEnd:                    params.WindowEnd,
		Phase:                        domain.PhaseNotStarted,
		Position:                     0,
		Countdown:                    domain.CountdownUnarmed,
		RevealResultsToAll:           params.RevealResultsToAll,
		ResultsVisibleToParticipants: params.ResultsVisibleToParticipants,
		Columns:                      columns,
		PresenterSeen:                now,
	}
	if err := e.store.CreateSession(ctx, session); err != nil {
		return domain.PresenterView{}, err
	}
	log.Info().Str("session_id", session.ID).Str("exam_id", session.ExamID).Msg("session created")
	return e.presenterView(ctx, session)
}

// Start arms the session clock. The session stays on NotStarted; the first
// Forward moves into question one.
func (e *EngineService) Start(ctx context.Context, presenterID, sessionID string) (domain.PresenterView, error) {
	updated, err := e.presenterUpdate(ctx, presenterID, sessionID, func(s domain.Session) (domain.Session, error) {
		return start(s)
	})
	if err != nil {
		return domain.PresenterView{}, err
	}
	return e.presenterView(ctx, updated)
}

// PlayPause toggles the session clock. Pausing (or ending) clears the presence
// registry; participants re-register on their next join poll.
func (e *EngineService) PlayPause(ctx context.Context, presenterID, sessionID string) (domain.PresenterView, error) {
	updated, err := e.presenterUpdate(ctx, presenterID, sessionID, func(s domain.Session) (domain.Session, error) {
		return playPause(s)
	})
	if err != nil {
		return domain.PresenterView{}, err
	}
	if !updated.Playing {
		if err := e.store.DeleteAllParticipants(ctx, sessionID); err != nil {
			return domain.PresenterView{}, err
		}
	}
	return e.presenterView(ctx, updated)
}

// Forward advances the session one display step.
func (e *EngineService) Forward(ctx context.Context, presenterID, sessionID string) (domain.PresenterView, error) {
	count, err := e.questionCount(ctx, sessionID)
	if err != nil {
		return domain.PresenterView{}, err
	}
	updated, err := e.presenterUpdate(ctx, presenterID, sessionID, func(s domain.Session) (domain.Session, error) {
		return forward(s, count), nil
	})
	if err != nil {
		return domain.PresenterView{}, err
	}
	if updated.Phase == domain.PhaseEnded {
		if err := e.store.DeleteAllParticipants(ctx, sessionID); err != nil {
			return domain.PresenterView{}, err
		}
	}
	return e.presenterView(ctx, updated)
}

// Back retreats the session one display step.
func (e *EngineService) Back(ctx context.Context, presenterID, sessionID string) (domain.PresenterView, error) {
	count, err := e.questionCount(ctx, sessionID)
	if err != nil {
		return domain.PresenterView{}, err
	}
	updated, err := e.presenterUpdate(ctx, presenterID, sessionID, func(s domain.Session) (domain.Session, error) {
		return back(s, count), nil
	})
	if err != nil {
		return domain.PresenterView{}, err
	}
	return e.presenterView(ctx, updated)
}

// ArmCountdown arms (or, with negative seconds, disarms) the session countdown.
func (e *EngineService) ArmCountdown(ctx context.Context, presenterID, sessionID string, seconds int) (domain.PresenterView, error) {
	updated, err := e.presenterUpdate(ctx, presenterID, sessionID, func(s domain.Session) (domain.Session, error) {
		return armCountdown(s, seconds)
	})
	if err != nil {
		return domain.PresenterView{}, err
	}
	return e.presenterView(ctx, updated)
}

// SetColumns updates the answer-option column layout. Presentation-only, so it
// is never locked.
func (e *EngineService) SetColumns(ctx context.Context, presenterID, sessionID string, columns int) (domain.PresenterView, error) {
	if columns < 1 {
		columns = 1
	}
	updated, err := e.presenterUpdate(ctx, presenterID, sessionID, func(s domain.Session) (domain.Session, error) {
		s.Columns = columns
		return s, nil
	})
	if err != nil {
		return domain.PresenterView{}, err
	}
	return e.presenterView(ctx, updated)
}

// SetRevealResults flips whether aggregate results are shown to participants.
// Locked once any answer exists: changing it mid-run would change which phases
// participants already navigated through.
func (e *EngineService) SetRevealResults(ctx context.Context, presenterID, sessionID string, reveal bool) (domain.PresenterView, error) {
	answered, err := e.store.HasAnswers(ctx, sessionID)
	if err != nil {
		return domain.PresenterView{}, err
	}
	if answered {
		return domain.PresenterView{}, domain.ErrConfigurationLocked
	}
	updated, err := e.presenterUpdate(ctx, presenterID, sessionID, func(s domain.Session) (domain.Session, error) {
		s.RevealResultsToAll = reveal
		return s, nil
	})
	if err != nil {
		return domain.PresenterView{}, err
	}
	return e.presenterView(ctx, updated)
}

// PresenterRefresh is the presenter's poll: it sweeps stale presence rows,
// applies at most one countdown tick, accumulates elapsed time for the current
// question, and returns the presenter view. This poll is the only place the
// countdown advances; correctness does not depend on polls arriving on time.
func (e *EngineService) PresenterRefresh(ctx context.Context, presenterID, sessionID string) (domain.PresenterView, error) {
	count, err := e.questionCount(ctx, sessionID)
	if err != nil {
		return domain.PresenterView{}, err
	}

	now := e.clock.Now()
	var (
		fired      bool
		elapsedPos uint32
		elapsedAdd float64
	)
	updated, err := e.store.UpdateSession(ctx, sessionID, func(s domain.Session) (domain.Session, error) {
		fired, elapsedAdd = false, 0
		if s.PresenterID != presenterID {
			return s, domain.ErrPermissionDenied
		}
		if !s.InWindow(now) {
			return s, domain.ErrOutOfWindow
		}

		// A presenter that stopped polling for three intervals is treated as
		// gone: the session pauses without an explicit PlayPause.
		if s.Playing && !s.PresenterSeen.IsZero() && now.Sub(s.PresenterSeen) > staleMultiplier*e.presenterPoll {
			s.Playing = false
			log.Info().Str("session_id", s.ID).Msg("presenter liveness expired, pausing session")
		}
		s.PresenterSeen = now

		// At most one tick per interval, no matter how many presenter clients
		// poll concurrently. A racing poller lands inside the interval and
		// leaves countdown and elapsed buckets untouched.
		if !s.LastTick.IsZero() && now.Sub(s.LastTick) < e.presenterPoll {
			return s, nil
		}
		s.LastTick = now

		if s.Playing && s.OnQuestion() {
			elapsedPos = s.Position
			elapsedAdd = e.presenterPoll.Seconds()
		}

		var expired bool
		s, expired = tickCountdown(s, int(e.presenterPoll/time.Second))
		if expired {
			s = forward(s, count)
			fired = true
		}
		return s, nil
	})
	if err != nil {
		return domain.PresenterView{}, err
	}

	if elapsedAdd > 0 {
		if err := e.store.AddElapsed(ctx, sessionID, elapsedPos, elapsedAdd); err != nil {
			return domain.PresenterView{}, err
		}
	}
	if fired {
		log.Info().Str("session_id", sessionID).Uint32("position", updated.Position).Msg("countdown expired, advanced session")
		if updated.Phase == domain.PhaseEnded {
			if err := e.store.DeleteAllParticipants(ctx, sessionID); err != nil {
				return domain.PresenterView{}, err
			}
		}
	}
	if err := e.sweepParticipants(ctx, sessionID, now); err != nil {
		return domain.PresenterView{}, err
	}
	return e.presenterView(ctx, updated)
}

// Join registers (or refreshes) the caller as a participant and returns their
// view. Joining requires an unfinished session inside its window and, when an
// eligibility predicate is configured, group membership.
func (e *EngineService) Join(ctx context.Context, sessionID, userID string) (domain.ParticipantView, error) {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.ParticipantView{}, err
	}
	now := e.clock.Now()
	if !session.InWindow(now) {
		return domain.ParticipantView{}, domain.ErrOutOfWindow
	}
	if session.Phase == domain.PhaseEnded {
		return domain.ParticipantView{}, domain.ErrNotEligible
	}
	exam, err := e.exams.GetExam(ctx, session.ExamID)
	if err != nil {
		return domain.ParticipantView{}, err
	}
	if e.eligible != nil {
		ok, err := e.eligible(ctx, userID, exam)
		if err != nil {
			return domain.ParticipantView{}, err
		}
		if !ok {
			return domain.ParticipantView{}, domain.ErrNotEligible
		}
	}
	if err := e.store.UpsertParticipant(ctx, domain.Participant{SessionID: sessionID, UserID: userID, LastSeen: now}); err != nil {
		return domain.ParticipantView{}, err
	}
	return e.participantView(ctx, session, userID)
}

// ParticipantRefresh is the participant's poll: it refreshes their heartbeat
// (a missing presence row is not an error; the client should re-join) and
// returns their view. Participants never trigger sweeps or ticks.
func (e *EngineService) ParticipantRefresh(ctx context.Context, sessionID, userID string) (domain.ParticipantView, error) {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.ParticipantView{}, err
	}
	if _, err := e.store.TouchParticipant(ctx, sessionID, userID, e.clock.Now()); err != nil {
		return domain.ParticipantView{}, err
	}
	return e.participantView(ctx, session, userID)
}

// SubmitAnswer records the caller's choice for the currently displayed
// question and recomputes their result. A submission for a question the
// presenter has already navigated away from is silently accepted as a no-op:
// slow clients racing a fast presenter are expected, not an error.
func (e *EngineService) SubmitAnswer(ctx context.Context, sessionID, userID string, questionIndex uint32, choiceOrdinal int) (domain.ParticipantView, error) {
	session, exam, err := e.ensureParticipant(ctx, sessionID, userID)
	if err != nil {
		return domain.ParticipantView{}, err
	}
	if session.Phase != domain.PhaseShowingAnswers || questionIndex != session.Position {
		return e.participantView(ctx, session, userID)
	}
	if questionIndex == 0 || questionIndex > uint32(len(exam.Questions)) {
		return domain.ParticipantView{}, domain.ErrNotFound
	}
	question := exam.Questions[questionIndex-1]
	optionIndex, ok := question.OptionAt(choiceOrdinal)
	if !ok {
		return domain.ParticipantView{}, domain.ErrNotFound
	}

	prev, exists, err := e.store.GetAnswer(ctx, sessionID, userID, questionIndex)
	if err != nil {
		return domain.ParticipantView{}, err
	}
	// Resubmitting the same underlying option is a redundant write; skip it.
	if !exists || prev.OptionIndex != optionIndex {
		answer := domain.Answer{
			SessionID:     sessionID,
			UserID:        userID,
			QuestionIndex: questionIndex,
			ChoiceOrdinal: choiceOrdinal,
			OptionIndex:   optionIndex,
		}
		if err := e.store.PutAnswer(ctx, answer); err != nil {
			return domain.ParticipantView{}, err
		}
		if err := e.rescore(ctx, exam, sessionID, userID); err != nil {
			return domain.ParticipantView{}, err
		}
	}
	return e.participantView(ctx, session, userID)
}

// ClearAnswer removes the caller's answer for the currently displayed question
// and recomputes their result. Stale clears no-op like stale submissions.
func (e *EngineService) ClearAnswer(ctx context.Context, sessionID, userID string, questionIndex uint32) (domain.ParticipantView, error) {
	session, exam, err := e.ensureParticipant(ctx, sessionID, userID)
	if err != nil {
		return domain.ParticipantView{}, err
	}
	if session.Phase != domain.PhaseShowingAnswers || questionIndex != session.Position {
		return e.participantView(ctx, session, userID)
	}
	_, exists, err := e.store.GetAnswer(ctx, sessionID, userID, questionIndex)
	if err != nil {
		return domain.ParticipantView{}, err
	}
	if exists {
		if err := e.store.DeleteAnswer(ctx, sessionID, userID, questionIndex); err != nil {
			return domain.ParticipantView{}, err
		}
		if err := e.rescore(ctx, exam, sessionID, userID); err != nil {
			return domain.ParticipantView{}, err
		}
	}
	return e.participantView(ctx, session, userID)
}

// ensureParticipant loads session + exam and guarantees the caller holds a
// presence row, re-joining transparently when it expired mid-session.
func (e *EngineService) ensureParticipant(ctx context.Context, sessionID, userID string) (domain.Session, domain.Exam, error) {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, domain.Exam{}, err
	}
	now := e.clock.Now()
	if !session.InWindow(now) {
		return domain.Session{}, domain.Exam{}, domain.ErrOutOfWindow
	}
	exam, err := e.exams.GetExam(ctx, session.ExamID)
	if err != nil {
		return domain.Session{}, domain.Exam{}, err
	}
	_, present, err := e.store.GetParticipant(ctx, sessionID, userID)
	if err != nil {
		return domain.Session{}, domain.Exam{}, err
	}
	if present {
		if _, err := e.store.TouchParticipant(ctx, sessionID, userID, now); err != nil {
			return domain.Session{}, domain.Exam{}, err
		}
		return session, exam, nil
	}
	if session.Phase == domain.PhaseEnded {
		return domain.Session{}, domain.Exam{}, domain.ErrNotEligible
	}
	if e.eligible != nil {
		ok, err := e.eligible(ctx, userID, exam)
		if err != nil {
			return domain.Session{}, domain.Exam{}, err
		}
		if !ok {
			return domain.Session{}, domain.Exam{}, domain.ErrNotEligible
		}
	}
	if err := e.store.UpsertParticipant(ctx, domain.Participant{SessionID: sessionID, UserID: userID, LastSeen: now}); err != nil {
		return domain.Session{}, domain.Exam{}, err
	}
	return session, exam, nil
}

func (e *EngineService) rescore(ctx context.Context, exam domain.Exam, sessionID, userID string) error {
	answers, err := e.store.ListUserAnswers(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	return e.store.PutResult(ctx, recomputeResult(exam, sessionID, userID, answers))
}

// sweepParticipants drops presence rows older than three participant poll
// intervals. Runs only on presenter polls to bound write load.
func (e *EngineService) sweepParticipants(ctx context.Context, sessionID string, now time.Time) error {
	participants, err := e.store.ListParticipants(ctx, sessionID)
	if err != nil {
		return err
	}
	horizon := staleMultiplier * e.participantPoll
	swept := 0
	for _, p := range participants {
		if now.Sub(p.LastSeen) > horizon {
			if err := e.store.DeleteParticipant(ctx, sessionID, p.UserID); err != nil {
				return err
			}
			swept++
		}
	}
	if swept > 0 {
		log.Debug().Str("session_id", sessionID).Int("swept", swept).Msg("expired stale participants")
	}
	return nil
}

// presenterUpdate wraps a presenter-driven transition in the presenter and
// window guards, refreshing the presenter liveness marker on the way through.
func (e *EngineService) presenterUpdate(ctx context.Context, presenterID, sessionID string, fn func(domain.Session) (domain.Session, error)) (domain.Session, error) {
	now := e.clock.Now()
	return e.store.UpdateSession(ctx, sessionID, func(s domain.Session) (domain.Session, error) {
		if s.PresenterID != presenterID {
			return s, domain.ErrPermissionDenied
		}
		if !s.InWindow(now) {
			return s, domain.ErrOutOfWindow
		}
		s.PresenterSeen = now
		return fn(s)
	})
}

func (e *EngineService) questionCount(ctx context.Context, sessionID string) (uint32, error) {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	exam, err := e.exams.GetExam(ctx, session.ExamID)
	if err != nil {
		return 0, err
	}
	return uint32(len(exam.Questions)), nil
}
