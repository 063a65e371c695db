package memory

import (
	"context"
	"sync"
	"time"

	"live-session-service/internal/domain"
)

// EngineStore is an in-memory implementation of engine.EngineStore. A single
// mutex serializes session updates, which trivially satisfies the atomic
// read-modify-write contract.
type EngineStore struct {
	mu           sync.RWMutex
	sessions     map[string]domain.Session
	participants map[string]map[string]domain.Participant // sessionID -> userID
	answers      map[string]map[answerKey]domain.Answer   // sessionID
	results      map[string]map[string]domain.Result      // sessionID -> userID
	elapsed      map[string]map[uint32]float64            // sessionID -> questionIndex
}

type answerKey struct {
	userID        string
	questionIndex uint32
}

func NewEngineStore() *EngineStore {
	return &EngineStore{
		sessions:     make(map[string]domain.Session),
		participants: make(map[string]map[string]domain.Participant),
		answers:      make(map[string]map[answerKey]domain.Answer),
		results:      make(map[string]map[string]domain.Result),
		elapsed:      make(map[string]map[uint32]float64),
	}
}

func (s *EngineStore) CreateSession(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return nil
}

func (s *EngineStore) GetSession(_ context.Context, sessionID string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.Session{}, domain.ErrNotFound
	}
	return session, nil
}

func (s *EngineStore) UpdateSession(_ context.Context, sessionID string, fn func(domain.Session) (domain.Session, error)) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.Session{}, domain.ErrNotFound
	}
	next, err := fn(session)
	if err != nil {
		return domain.Session{}, err
	}
	s.sessions[sessionID] = next
	return next, nil
}

func (s *EngineStore) UpsertParticipant(_ context.Context, p domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.participants[p.SessionID]
	if !ok {
		rows = make(map[string]domain.Participant)
		s.participants[p.SessionID] = rows
	}
	rows[p.UserID] = p
	return nil
}

func (s *EngineStore) TouchParticipant(_ context.Context, sessionID, userID string, seen time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.participants[sessionID]
	if !ok {
		return false, nil
	}
	p, ok := rows[userID]
	if !ok {
		return false, nil
	}
	p.LastSeen = seen
	rows[userID] = p
	return true, nil
}

func (s *EngineStore) GetParticipant(_ context.Context, sessionID, userID string) (domain.Participant, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[sessionID][userID]
	return p, ok, nil
}

func (s *EngineStore) ListParticipants(_ context.Context, sessionID string) ([]domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.participants[sessionID]
	out := make([]domain.Participant, 0, len(rows))
	for _, p := range rows {
		out = append(out, p)
	}
	return out, nil
}

func (s *EngineStore) DeleteParticipant(_ context.Context, sessionID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.participants[sessionID], userID)
	return nil
}

func (s *EngineStore) DeleteAllParticipants(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.participants, sessionID)
	return nil
}

func (s *EngineStore) PutAnswer(_ context.Context, a domain.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.answers[a.SessionID]
	if !ok {
		rows = make(map[answerKey]domain.Answer)
		s.answers[a.SessionID] = rows
	}
	rows[answerKey{a.UserID, a.QuestionIndex}] = a
	return nil
}

func (s *EngineStore) GetAnswer(_ context.Context, sessionID, userID string, questionIndex uint32) (domain.Answer, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.answers[sessionID][answerKey{userID, questionIndex}]
	return a, ok, nil
}

func (s *EngineStore) DeleteAnswer(_ context.Context, sessionID, userID string, questionIndex uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.answers[sessionID], answerKey{userID, questionIndex})
	return nil
}

func (s *EngineStore) ListUserAnswers(_ context.Context, sessionID, userID string) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Answer
	for key, a := range s.answers[sessionID] {
		if key.userID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *EngineStore) ListQuestionAnswers(_ context.Context, sessionID string, questionIndex uint32) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Answer
	for key, a := range s.answers[sessionID] {
		if key.questionIndex == questionIndex {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *EngineStore) HasAnswers(_ context.Context, sessionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.answers[sessionID]) > 0, nil
}

func (s *EngineStore) PutResult(_ context.Context, r domain.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.results[r.SessionID]
	if !ok {
		rows = make(map[string]domain.Result)
		s.results[r.SessionID] = rows
	}
	rows[r.UserID] = r
	return nil
}

func (s *EngineStore) GetResult(_ context.Context, sessionID, userID string) (domain.Result, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[sessionID][userID]
	return r, ok, nil
}

func (s *EngineStore) AddElapsed(_ context.Context, sessionID string, questionIndex uint32, seconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buckets, ok := s.elapsed[sessionID]
	if !ok {
		buckets = make(map[uint32]float64)
		s.elapsed[sessionID] = buckets
	}
	buckets[questionIndex] += seconds
	return nil
}

func (s *EngineStore) ElapsedFor(_ context.Context, sessionID string, questionIndex uint32) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.elapsed[sessionID][questionIndex], nil
}

func (s *EngineStore) ElapsedTotal(_ context.Context, sessionID string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total float64
	for _, seconds := range s.elapsed[sessionID] {
		total += seconds
	}
	return total, nil
}
