package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"live-session-service/internal/domain"
)

// maxTxRetries bounds the optimistic-lock retry loop on the session record.
// Conflicts are presenter double-clicks and racing pollers, so contention is
// shallow; hitting the bound means something is systematically wrong.
const maxTxRetries = 8

// EngineStore is a Redis implementation of engine.EngineStore.
// Layout per session:
//
//	session:{id}              JSON session record (WATCH/MULTI optimistic update)
//	session:{id}:participants hash userID -> lastSeen unix-nano
//	session:{id}:answers      hash "userID:questionIndex" -> JSON answer
//	session:{id}:results      hash userID -> JSON result
//	session:{id}:elapsed      hash questionIndex -> seconds (HINCRBYFLOAT)
type EngineStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewEngineStore(client *redis.Client, ttl time.Duration) *EngineStore {
	return &EngineStore{client: client, ttl: ttl}
}

func (s *EngineStore) CreateSession(ctx context.Context, session domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return s.client.Set(ctx, s.sessionKey(session.ID), data, s.ttl).Err()
}

func (s *EngineStore) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	raw, err := s.client.Get(ctx, s.sessionKey(sessionID)).Bytes()
	if err == redis.Nil {
		return domain.Session{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Session{}, err
	}
	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return domain.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return session, nil
}

// UpdateSession applies fn under WATCH so the read-modify-write commits only
// if no other writer touched the record; on conflict it retries with the fresh
// row. Callers never observe the retries.
func (s *EngineStore) UpdateSession(ctx context.Context, sessionID string, fn func(domain.Session) (domain.Session, error)) (domain.Session, error) {
	key := s.sessionKey(sessionID)
	var updated domain.Session

	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		var session domain.Session
		if err := json.Unmarshal(raw, &session); err != nil {
			return fmt.Errorf("unmarshal session: %w", err)
		}
		next, err := fn(session)
		if err != nil {
			return err
		}
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		updated = next
		return nil
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.client.Watch(ctx, txn, key)
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return domain.Session{}, err
		}
		return updated, nil
	}
	return domain.Session{}, fmt.Errorf("session %s: update contention exhausted retries", sessionID)
}

func (s *EngineStore) UpsertParticipant(ctx context.Context, p domain.Participant) error {
	key := s.participantsKey(p.SessionID)
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, p.UserID, strconv.FormatInt(p.LastSeen.UnixNano(), 10))
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *EngineStore) TouchParticipant(ctx context.Context, sessionID, userID string, seen time.Time) (bool, error) {
	key := s.participantsKey(sessionID)
	exists, err := s.client.HExists(ctx, key, userID).Result()
	if err != nil || !exists {
		return false, err
	}
	err = s.client.HSet(ctx, key, userID, strconv.FormatInt(seen.UnixNano(), 10)).Err()
	return err == nil, err
}

func (s *EngineStore) GetParticipant(ctx context.Context, sessionID, userID string) (domain.Participant, bool, error) {
	raw, err := s.client.HGet(ctx, s.participantsKey(sessionID), userID).Result()
	if err == redis.Nil {
		return domain.Participant{}, false, nil
	}
	if err != nil {
		return domain.Participant{}, false, err
	}
	seen, err := parseUnixNano(raw)
	if err != nil {
		return domain.Participant{}, false, err
	}
	return domain.Participant{SessionID: sessionID, UserID: userID, LastSeen: seen}, true, nil
}

func (s *EngineStore) ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error) {
	rows, err := s.client.HGetAll(ctx, s.participantsKey(sessionID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Participant, 0, len(rows))
	for userID, raw := range rows {
		seen, err := parseUnixNano(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.Participant{SessionID: sessionID, UserID: userID, LastSeen: seen})
	}
	return out, nil
}

func (s *EngineStore) DeleteParticipant(ctx context.Context, sessionID, userID string) error {
	return s.client.HDel(ctx, s.participantsKey(sessionID), userID).Err()
}

func (s *EngineStore) DeleteAllParticipants(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.participantsKey(sessionID)).Err()
}

func (s *EngineStore) PutAnswer(ctx context.Context, a domain.Answer) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal answer: %w", err)
	}
	key := s.answersKey(a.SessionID)
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, answerField(a.UserID, a.QuestionIndex), data)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *EngineStore) GetAnswer(ctx context.Context, sessionID, userID string, questionIndex uint32) (domain.Answer, bool, error) {
	raw, err := s.client.HGet(ctx, s.answersKey(sessionID), answerField(userID, questionIndex)).Bytes()
	if err == redis.Nil {
		return domain.Answer{}, false, nil
	}
	if err != nil {
		return domain.Answer{}, false, err
	}
	var a domain.Answer
	if err := json.Unmarshal(raw, &a); err != nil {
		return domain.Answer{}, false, fmt.Errorf("unmarshal answer: %w", err)
	}
	return a, true, nil
}

func (s *EngineStore) DeleteAnswer(ctx context.Context, sessionID, userID string, questionIndex uint32) error {
	return s.client.HDel(ctx, s.answersKey(sessionID), answerField(userID, questionIndex)).Err()
}

func (s *EngineStore) ListUserAnswers(ctx context.Context, sessionID, userID string) ([]domain.Answer, error) {
	return s.listAnswers(ctx, sessionID, func(a domain.Answer) bool { return a.UserID == userID })
}

func (s *EngineStore) ListQuestionAnswers(ctx context.Context, sessionID string, questionIndex uint32) ([]domain.Answer, error) {
	return s.listAnswers(ctx, sessionID, func(a domain.Answer) bool { return a.QuestionIndex == questionIndex })
}

func (s *EngineStore) listAnswers(ctx context.Context, sessionID string, keep func(domain.Answer) bool) ([]domain.Answer, error) {
	rows, err := s.client.HGetAll(ctx, s.answersKey(sessionID)).Result()
	if err != nil {
		return nil, err
	}
	var out []domain.Answer
	for _, raw := range rows {
		var a domain.Answer
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("unmarshal answer: %w", err)
		}
		if keep(a) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *EngineStore) HasAnswers(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.client.HLen(ctx, s.answersKey(sessionID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *EngineStore) PutResult(ctx context.Context, r domain.Result) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	key := s.resultsKey(r.SessionID)
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, r.UserID, data)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *EngineStore) GetResult(ctx context.Context, sessionID, userID string) (domain.Result, bool, error) {
	raw, err := s.client.HGet(ctx, s.resultsKey(sessionID), userID).Bytes()
	if err == redis.Nil {
		return domain.Result{}, false, nil
	}
	if err != nil {
		return domain.Result{}, false, err
	}
	var r domain.Result
	if err := json.Unmarshal(raw, &r); err != nil {
		return domain.Result{}, false, fmt.Errorf("unmarshal result: %w", err)
	}
	return r, true, nil
}

// AddElapsed uses HINCRBYFLOAT so concurrent pollers cannot lose an increment.
func (s *EngineStore) AddElapsed(ctx context.Context, sessionID string, questionIndex uint32, seconds float64) error {
	key := s.elapsedKey(sessionID)
	pipe := s.client.Pipeline()
	pipe.HIncrByFloat(ctx, key, elapsedField(questionIndex), seconds)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *EngineStore) ElapsedFor(ctx context.Context, sessionID string, questionIndex uint32) (float64, error) {
	raw, err := s.client.HGet(ctx, s.elapsedKey(sessionID), elapsedField(questionIndex)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(raw, 64)
}

func (s *EngineStore) ElapsedTotal(ctx context.Context, sessionID string) (float64, error) {
	rows, err := s.client.HGetAll(ctx, s.elapsedKey(sessionID)).Result()
	if err != nil {
		return 0, err
	}
	var total float64
	for _, raw := range rows {
		seconds, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, err
		}
		total += seconds
	}
	return total, nil
}

func (s *EngineStore) sessionKey(id string) string      { return "session:" + id }
func (s *EngineStore) participantsKey(id string) string { return "session:" + id + ":participants" }
func (s *EngineStore) answersKey(id string) string      { return "session:" + id + ":answers" }
func (s *EngineStore) resultsKey(id string) string      { return "session:" + id + ":results" }
func (s *EngineStore) elapsedKey(id string) string      { return "session:" + id + ":elapsed" }

func answerField(userID string, questionIndex uint32) string {
	return userID + ":" + strconv.FormatUint(uint64(questionIndex), 10)
}

func elapsedField(questionIndex uint32) string {
	return strconv.FormatUint(uint64(questionIndex), 10)
}

func parseUnixNano(raw string) (time.Time, error) {
	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse lastSeen: %w", err)
	}
	return time.Unix(0, nanos), nil
}
