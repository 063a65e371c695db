package domain

import "errors"

var (
	// ErrPermissionDenied is returned when a caller other than the presenter drives a transition.
	ErrPermissionDenied = errors.New("caller is not the session presenter")
	// ErrOutOfWindow is returned for transitions or answers outside the session's validity window.
	ErrOutOfWindow = errors.New("session is outside its time window")
	// ErrNotFound indicates an unknown session, user, or question reference.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned for impossible state-machine moves (Start twice, play after end).
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrConfigurationLocked is returned when session configuration is edited after answers exist.
	ErrConfigurationLocked = errors.New("session configuration locked after first answer")
	// ErrNotEligible is returned when a user may not join the session.
	ErrNotEligible = errors.New("user not eligible for session")
	// ErrExamNotFound indicates the exam definition could not be loaded.
	ErrExamNotFound = errors.New("exam not found")
)
