package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"live-session-service/internal/domain"
)

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewEngineStore()

	if _, err := store.GetSession(ctx, "missing"); err != domain.ErrNotFound {
		t.Fatalf("expected not found, got %v", err)
	}

	session := domain.Session{ID: "s1", Phase: domain.PhaseNotStarted, Countdown: domain.CountdownUnarmed}
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := store.UpdateSession(ctx, "s1", func(s domain.Session) (domain.Session, error) {
		s.Playing = true
		return s, nil
	})
	if err != nil || !updated.Playing {
		t.Fatalf("update: %+v err=%v", updated, err)
	}

	got, err := store.GetSession(ctx, "s1")
	if err != nil || !got.Playing {
		t.Fatalf("expected persisted update, got %+v err=%v", got, err)
	}
}

func TestUpdateSessionAbortsOnError(t *testing.T) {
	ctx := context.Background()
	store := NewEngineStore()
	_ = store.CreateSession(ctx, domain.Session{ID: "s1"})

	boom := errors.New("boom")
	if _, err := store.UpdateSession(ctx, "s1", func(s domain.Session) (domain.Session, error) {
		s.Playing = true
		return s, boom
	}); err != boom {
		t.Fatalf("expected fn error surfaced, got %v", err)
	}
	got, _ := store.GetSession(ctx, "s1")
	if got.Playing {
		t.Fatalf("failed update must not persist")
	}
}

func TestParticipantPresence(t *testing.T) {
	ctx := context.Background()
	store := NewEngineStore()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	if touched, err := store.TouchParticipant(ctx, "s1", "u1", now); err != nil || touched {
		t.Fatalf("touch on missing row should no-op, touched=%v err=%v", touched, err)
	}

	_ = store.UpsertParticipant(ctx, domain.Participant{SessionID: "s1", UserID: "u1", LastSeen: now})
	_ = store.UpsertParticipant(ctx, domain.Participant{SessionID: "s1", UserID: "u2", LastSeen: now})

	later := now.Add(15 * time.Second)
	if touched, _ := store.TouchParticipant(ctx, "s1", "u1", later); !touched {
		t.Fatalf("expected touch to succeed")
	}
	p, ok, _ := store.GetParticipant(ctx, "s1", "u1")
	if !ok || !p.LastSeen.Equal(later) {
		t.Fatalf("expected refreshed lastSeen, got %+v", p)
	}

	rows, _ := store.ListParticipants(ctx, "s1")
	if len(rows) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(rows))
	}

	_ = store.DeleteParticipant(ctx, "s1", "u1")
	rows, _ = store.ListParticipants(ctx, "s1")
	if len(rows) != 1 {
		t.Fatalf("expected 1 participant after delete, got %d", len(rows))
	}

	_ = store.DeleteAllParticipants(ctx, "s1")
	rows, _ = store.ListParticipants(ctx, "s1")
	if len(rows) != 0 {
		t.Fatalf("expected presence cleared, got %d", len(rows))
	}
}

func TestAnswersAndResults(t *testing.T) {
	ctx := context.Background()
	store := NewEngineStore()

	if has, _ := store.HasAnswers(ctx, "s1"); has {
		t.Fatalf("expected no answers yet")
	}

	_ = store.PutAnswer(ctx, domain.Answer{SessionID: "s1", UserID: "u1", QuestionIndex: 1, ChoiceOrdinal: 0, OptionIndex: 1})
	_ = store.PutAnswer(ctx, domain.Answer{SessionID: "s1", UserID: "u1", QuestionIndex: 2, ChoiceOrdinal: 1, OptionIndex: 0})
	_ = store.PutAnswer(ctx, domain.Answer{SessionID: "s1", UserID: "u2", QuestionIndex: 1, ChoiceOrdinal: 2, OptionIndex: 0})

	if has, _ := store.HasAnswers(ctx, "s1"); !has {
		t.Fatalf("expected answers present")
	}

	mine, _ := store.ListUserAnswers(ctx, "s1", "u1")
	if len(mine) != 2 {
		t.Fatalf("expected 2 answers for u1, got %d", len(mine))
	}
	q1, _ := store.ListQuestionAnswers(ctx, "s1", 1)
	if len(q1) != 2 {
		t.Fatalf("expected 2 answers for q1, got %d", len(q1))
	}

	a, ok, _ := store.GetAnswer(ctx, "s1", "u1", 1)
	if !ok || a.OptionIndex != 1 {
		t.Fatalf("expected stored answer, got %+v ok=%v", a, ok)
	}

	_ = store.DeleteAnswer(ctx, "s1", "u1", 1)
	if _, ok, _ := store.GetAnswer(ctx, "s1", "u1", 1); ok {
		t.Fatalf("expected answer deleted")
	}

	_ = store.PutResult(ctx, domain.Result{SessionID: "s1", UserID: "u1", QuestionsAnswered: 1, QuestionsTotal: 2, Score: 0.67})
	r, ok, _ := store.GetResult(ctx, "s1", "u1")
	if !ok || r.Score != 0.67 {
		t.Fatalf("expected result, got %+v ok=%v", r, ok)
	}
}

func TestElapsedBuckets(t *testing.T) {
	ctx := context.Background()
	store := NewEngineStore()

	_ = store.AddElapsed(ctx, "s1", 1, 10)
	_ = store.AddElapsed(ctx, "s1", 1, 10)
	_ = store.AddElapsed(ctx, "s1", 2, 5)

	q1, _ := store.ElapsedFor(ctx, "s1", 1)
	if q1 != 20 {
		t.Fatalf("expected 20s on q1, got %v", q1)
	}
	total, _ := store.ElapsedTotal(ctx, "s1")
	if total != 25 {
		t.Fatalf("expected 25s total, got %v", total)
	}
}
