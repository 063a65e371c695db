package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"live-session-service/internal/domain"
	"live-session-service/internal/engine"
)

// Handler exposes the engine's poll/command operations as JSON over HTTP.
// Callers identify themselves with the X-User-ID header; authenticating that
// identity is the surrounding system's concern.
type Handler struct {
	service *engine.EngineService
}

func NewHandler(service *engine.EngineService) *Handler {
	return &Handler{service: service}
}

// Register mounts all session routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /sessions", h.createSession)
	mux.HandleFunc("POST /sessions/{id}/start", h.presenterAction(func(r *http.Request, user, id string) (domain.PresenterView, error) {
		return h.service.Start(r.Context(), user, id)
	}))
	mux.HandleFunc("POST /sessions/{id}/pause", h.presenterAction(func(r *http.Request, user, id string) (domain.PresenterView, error) {
		return h.service.PlayPause(r.Context(), user, id)
	}))
	mux.HandleFunc("POST /sessions/{id}/forward", h.presenterAction(func(r *http.Request, user, id string) (domain.PresenterView, error) {
		return h.service.Forward(r.Context(), user, id)
	}))
	mux.HandleFunc("POST /sessions/{id}/back", h.presenterAction(func(r *http.Request, user, id string) (domain.PresenterView, error) {
		return h.service.Back(r.Context(), user, id)
	}))
	mux.HandleFunc("POST /sessions/{id}/countdown", h.armCountdown)
	mux.HandleFunc("POST /sessions/{id}/columns", h.setColumns)
	mux.HandleFunc("POST /sessions/{id}/reveal", h.setReveal)
	mux.HandleFunc("GET /sessions/{id}/presenter", h.presenterAction(func(r *http.Request, user, id string) (domain.PresenterView, error) {
		return h.service.PresenterRefresh(r.Context(), user, id)
	}))
	mux.HandleFunc("POST /sessions/{id}/join", h.participantAction(func(r *http.Request, user, id string) (domain.ParticipantView, error) {
		return h.service.Join(r.Context(), id, user)
	}))
	mux.HandleFunc("GET /sessions/{id}/participant", h.participantAction(func(r *http.Request, user, id string) (domain.ParticipantView, error) {
		return h.service.ParticipantRefresh(r.Context(), id, user)
	}))
	mux.HandleFunc("POST /sessions/{id}/answer", h.submitAnswer)
	mux.HandleFunc("POST /sessions/{id}/answer/clear", h.clearAnswer)
}

type createSessionRequest struct {
	ExamID                       string    `json:"examId"`
	WindowStart                  time.Time `json:"windowStart"`
	WindowEnd                    time.Time `json:"windowEnd"`
	RevealResultsToAll           bool      `json:"revealResultsToAll"`
	ResultsVisibleToParticipants bool      `json:"resultsVisibleToParticipants"`
	Columns                      int       `json:"columns"`
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	user, ok := callerID(w, r)
	if !ok {
		return
	}
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	view, err := h.service.CreateSession(r.Context(), user, engine.CreateSessionParams{
		ExamID:                       req.ExamID,
		WindowStart:                  req.WindowStart,
		WindowEnd:                    req.WindowEnd,
		RevealResultsToAll:           req.RevealResultsToAll,
		ResultsVisibleToParticipants: req.ResultsVisibleToParticipants,
		Columns:                      req.Columns,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *Handler) presenterAction(op func(r *http.Request, user, id string) (domain.PresenterView, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := callerID(w, r)
		if !ok {
			return
		}
		view, err := op(r, user, r.PathValue("id"))
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func (h *Handler) participantAction(op func(r *http.Request, user, id string) (domain.ParticipantView, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := callerID(w, r)
		if !ok {
			return
		}
		view, err := op(r, user, r.PathValue("id"))
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func (h *Handler) armCountdown(w http.ResponseWriter, r *http.Request) {
	user, ok := callerID(w, r)
	if !ok {
		return
	}
	var req struct {
		Seconds int `json:"seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	view, err := h.service.ArmCountdown(r.Context(), user, r.PathValue("id"), req.Seconds)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) setColumns(w http.ResponseWriter, r *http.Request) {
	user, ok := callerID(w, r)
	if !ok {
		return
	}
	var req struct {
		Columns int `json:"columns"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	view, err := h.service.SetColumns(r.Context(), user, r.PathValue("id"), req.Columns)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) setReveal(w http.ResponseWriter, r *http.Request) {
	user, ok := callerID(w, r)
	if !ok {
		return
	}
	var req struct {
		Reveal bool `json:"reveal"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	view, err := h.service.SetRevealResults(r.Context(), user, r.PathValue("id"), req.Reveal)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type answerRequest struct {
	QuestionIndex uint32 `json:"questionIndex"`
	ChoiceOrdinal int    `json:"choiceOrdinal"`
}

func (h *Handler) submitAnswer(w http.ResponseWriter, r *http.Request) {
	user, ok := callerID(w, r)
	if !ok {
		return
	}
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	view, err := h.service.SubmitAnswer(r.Context(), r.PathValue("id"), user, req.QuestionIndex, req.ChoiceOrdinal)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) clearAnswer(w http.ResponseWriter, r *http.Request) {
	user, ok := callerID(w, r)
	if !ok {
		return
	}
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	view, err := h.service.ClearAnswer(r.Context(), r.PathValue("id"), user, req.QuestionIndex)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	user := r.Header.Get("X-User-ID")
	if user == "" {
		writeError(w, http.StatusBadRequest, "missing X-User-ID header")
		return "", false
	}
	return user, true
}

type errorPayload struct {
	Error string `json:"error"`
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrPermissionDenied), errors.Is(err, domain.ErrNotEligible):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrExamNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrOutOfWindow), errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrConfigurationLocked):
		writeError(w, http.StatusConflict, err.Error())
	default:
		log.Error().Err(err).Msg("internal error handling session request")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorPayload{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
