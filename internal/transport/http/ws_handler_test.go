package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"live-session-service/internal/domain"
	"live-session-service/internal/engine"
	"live-session-service/internal/infra/memory"
)

type wsEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func newWSTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := memory.NewEngineStore()
	exams := memory.NewExamRepository(memory.NewStaticExamLoader(map[string]domain.Exam{
		"exam-1": sampleExam(),
	}), time.Minute)
	service := engine.NewEngineService(store, exams, engine.Options{})

	mux := http.NewServeMux()
	NewHandler(service).Register(mux)
	ws := NewWSHandler(service)
	mux.HandleFunc("/ws", ws.ServeWS)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func dialWS(t *testing.T, server *httptest.Server, sessionID, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?sessionId=" + sessionID + "&userId=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendCommand(t *testing.T, conn *websocket.Conn, cmdType string, payload any) wsEnvelope {
	t.Helper()
	msg := map[string]any{"type": cmdType}
	if payload != nil {
		msg["payload"] = payload
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write %s: %v", cmdType, err)
	}
	var reply wsEnvelope
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read reply to %s: %v", cmdType, err)
	}
	return reply
}

func TestWebSocketSessionFlow(t *testing.T) {
	server := newWSTestServer(t)
	id := createTestSession(t, server)

	presenter := dialWS(t, server, id, "teacher-1")

	reply := sendCommand(t, presenter, "start", nil)
	if reply.Type != "presenterView" {
		t.Fatalf("expected presenterView, got %s: %s", reply.Type, reply.Payload)
	}
	sendCommand(t, presenter, "forward", nil)
	reply = sendCommand(t, presenter, "forward", nil)

	var view domain.PresenterView
	if err := json.Unmarshal(reply.Payload, &view); err != nil {
		t.Fatalf("decode presenter view: %v", err)
	}
	if view.Phase != domain.PhaseShowingAnswers.String() || view.Position != 1 {
		t.Fatalf("expected answers q1, got %s/%d", view.Phase, view.Position)
	}

	student := dialWS(t, server, id, "student-1")
	reply = sendCommand(t, student, "join", nil)
	if reply.Type != "participantView" {
		t.Fatalf("expected participantView, got %s: %s", reply.Type, reply.Payload)
	}

	reply = sendCommand(t, student, "answer", map[string]any{"questionIndex": 1, "choiceOrdinal": 0})
	var pview domain.ParticipantView
	if err := json.Unmarshal(reply.Payload, &pview); err != nil {
		t.Fatalf("decode participant view: %v", err)
	}
	if pview.MyChoice == nil || *pview.MyChoice != 0 {
		t.Fatalf("expected echoed choice 0, got %+v", pview.MyChoice)
	}

	reply = sendCommand(t, presenter, "presenterRefresh", nil)
	if err := json.Unmarshal(reply.Payload, &view); err != nil {
		t.Fatalf("decode presenter refresh: %v", err)
	}
	if view.ParticipantCount != 1 || view.AnsweredCount != 1 {
		t.Fatalf("expected 1 participant / 1 answer, got %d/%d", view.ParticipantCount, view.AnsweredCount)
	}
}

func TestWebSocketRejectsForeignPresenterCommands(t *testing.T) {
	server := newWSTestServer(t)
	id := createTestSession(t, server)

	intruder := dialWS(t, server, id, "intruder")
	reply := sendCommand(t, intruder, "forward", nil)
	if reply.Type != "error" {
		t.Fatalf("expected error reply, got %s: %s", reply.Type, reply.Payload)
	}

	reply = sendCommand(t, intruder, "bogus", nil)
	if reply.Type != "error" {
		t.Fatalf("expected error for unsupported command, got %s", reply.Type)
	}
}

func TestWebSocketRequiresIdentity(t *testing.T) {
	server := newWSTestServer(t)
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?sessionId=s1"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatalf("expected handshake failure without userId")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 on handshake, got %+v", resp)
	}
}
