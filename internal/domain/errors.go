package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no live session matches the given id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidSessionConfig rejects malformed quizzes or out-of-bounds config at creation.
	ErrInvalidSessionConfig = errors.New("invalid session config")
	// ErrSessionNotJoinable is returned when joining outside the lobby window.
	ErrSessionNotJoinable = errors.New("session not joinable")
	// ErrDuplicateParticipant is returned when a participant id joins twice.
	ErrDuplicateParticipant = errors.New("participant already joined")
	// ErrInsufficientParticipants blocks starting below the mode's minimum.
	ErrInsufficientParticipants = errors.New("not enough participants to start")
	// ErrAnswerWindowClosed rejects submissions outside the collecting window.
	ErrAnswerWindowClosed = errors.New("answer window closed")
	// ErrDuplicateAnswer rejects a second submission for the same question.
	ErrDuplicateAnswer = errors.New("answer already submitted")
	// ErrParticipantNotActive rejects submissions from eliminated or unknown participants.
	ErrParticipantNotActive = errors.New("participant not active")
	// ErrQuestionMismatch rejects submissions targeting a question that is not open.
	ErrQuestionMismatch = errors.New("question index does not match open question")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
)
