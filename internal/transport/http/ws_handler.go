package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"live-session-service/internal/engine"
)

// WSHandler carries the same poll/command operations over a persistent
// websocket, for clients that poll frequently enough that per-request HTTP
// overhead matters. Every message is client-initiated: the server never pushes
// state on its own, so the engine's single-writer discipline is preserved and
// responses can be written synchronously from the read loop.
type WSHandler struct {
	service  *engine.EngineService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *engine.EngineService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundCommand struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type countdownPayload struct {
	Seconds int `json:"seconds"`
}

type columnsPayload struct {
	Columns int `json:"columns"`
}

type revealPayload struct {
	Reveal bool `json:"reveal"`
}

type answerCommandPayload struct {
	QuestionIndex uint32 `json:"questionIndex"`
	ChoiceOrdinal int    `json:"choiceOrdinal"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type wsError struct {
	Message string `json:"message"`
}

// ServeWS upgrades the connection and serves session commands until the
// client disconnects.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	userID := r.URL.Query().Get("userId")
	if sessionID == "" || userID == "" {
		http.Error(w, "missing sessionId or userId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	for {
		var cmd inboundCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		h.dispatch(conn, r, sessionID, userID, cmd)
	}
}

func (h *WSHandler) dispatch(conn *websocket.Conn, r *http.Request, sessionID, userID string, cmd inboundCommand) {
	ctx := r.Context()
	switch cmd.Type {
	case "presenterRefresh":
		h.presenterReply(conn, func() (any, error) { return h.service.PresenterRefresh(ctx, userID, sessionID) })
	case "start":
		h.presenterReply(conn, func() (any, error) { return h.service.Start(ctx, userID, sessionID) })
	case "playPause":
		h.presenterReply(conn, func() (any, error) { return h.service.PlayPause(ctx, userID, sessionID) })
	case "forward":
		h.presenterReply(conn, func() (any, error) { return h.service.Forward(ctx, userID, sessionID) })
	case "back":
		h.presenterReply(conn, func() (any, error) { return h.service.Back(ctx, userID, sessionID) })
	case "armCountdown":
		var payload countdownPayload
		if !decodePayload(conn, cmd.Payload, &payload) {
			return
		}
		h.presenterReply(conn, func() (any, error) { return h.service.ArmCountdown(ctx, userID, sessionID, payload.Seconds) })
	case "setColumns":
		var payload columnsPayload
		if !decodePayload(conn, cmd.Payload, &payload) {
			return
		}
		h.presenterReply(conn, func() (any, error) { return h.service.SetColumns(ctx, userID, sessionID, payload.Columns) })
	case "setReveal":
		var payload revealPayload
		if !decodePayload(conn, cmd.Payload, &payload) {
			return
		}
		h.presenterReply(conn, func() (any, error) { return h.service.SetRevealResults(ctx, userID, sessionID, payload.Reveal) })
	case "join":
		h.participantReply(conn, func() (any, error) { return h.service.Join(ctx, sessionID, userID) })
	case "participantRefresh":
		h.participantReply(conn, func() (any, error) { return h.service.ParticipantRefresh(ctx, sessionID, userID) })
	case "answer":
		var payload answerCommandPayload
		if !decodePayload(conn, cmd.Payload, &payload) {
			return
		}
		h.participantReply(conn, func() (any, error) {
			return h.service.SubmitAnswer(ctx, sessionID, userID, payload.QuestionIndex, payload.ChoiceOrdinal)
		})
	case "clearAnswer":
		var payload answerCommandPayload
		if !decodePayload(conn, cmd.Payload, &payload) {
			return
		}
		h.participantReply(conn, func() (any, error) {
			return h.service.ClearAnswer(ctx, sessionID, userID, payload.QuestionIndex)
		})
	default:
		writeWS(conn, "error", wsError{Message: "unsupported command type"})
	}
}

func (h *WSHandler) presenterReply(conn *websocket.Conn, op func() (any, error)) {
	view, err := op()
	if err != nil {
		writeWS(conn, "error", wsError{Message: err.Error()})
		return
	}
	writeWS(conn, "presenterView", view)
}

func (h *WSHandler) participantReply(conn *websocket.Conn, op func() (any, error)) {
	view, err := op()
	if err != nil {
		writeWS(conn, "error", wsError{Message: err.Error()})
		return
	}
	writeWS(conn, "participantView", view)
}

func decodePayload(conn *websocket.Conn, raw json.RawMessage, dst any) bool {
	if err := json.Unmarshal(raw, dst); err != nil {
		writeWS(conn, "error", wsError{Message: "invalid command payload"})
		return false
	}
	return true
}

func writeWS[T any](conn *websocket.Conn, msgType string, payload T) {
	if err := conn.WriteJSON(outboundMessage[T]{Type: msgType, Payload: payload}); err != nil {
		log.Warn().Err(err).Msg("ws write error")
	}
}
