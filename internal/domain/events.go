package domain

import "time"

// EventType enumerates the records published to a session's fan-out channel.
type EventType string

const (
	EventSessionCreated        EventType = "session_created"
	EventParticipantJoined     EventType = "participant_joined"
	EventQuestionStarted       EventType = "question_started"
	EventAnswerAccepted        EventType = "answer_accepted"
	EventQuestionRevealed      EventType = "question_revealed"
	EventLeaderboardUpdate     EventType = "leaderboard_update"
	EventParticipantEliminated EventType = "participant_eliminated"
	EventMatchResult           EventType = "match_result"
	EventSessionCompleted      EventType = "session_completed"
	EventSessionCancelled      EventType = "session_cancelled"
	// EventSnapshot opens every subscription with the session's current state.
	EventSnapshot EventType = "snapshot"
	// EventResync tells a lagging subscriber to fetch a fresh snapshot
	// instead of replaying history it has already lost.
	EventResync EventType = "resync"
)

// Event is the envelope appended to a session channel. Seq is strictly
// increasing per session and identical for every subscriber.
type Event struct {
	Seq       uint64    `json:"seq"`
	SessionID string    `json:"sessionId"`
	Type      EventType `json:"type"`
	At        time.Time `json:"at"`
	Payload   any       `json:"payload,omitempty"`
}

// SessionCreatedPayload announces a new lobby.
type SessionCreatedPayload struct {
	QuizID string `json:"quizId"`
	Mode   Mode   `json:"mode"`
	Title  string `json:"title"`
}

// ParticipantJoinedPayload announces a lobby join.
type ParticipantJoinedPayload struct {
	ParticipantID string `json:"participantId"`
	DisplayName   string `json:"displayName"`
	Count         int    `json:"count"`
}

// QuestionStartedPayload opens a question. ParticipantIDs carries the set
// still competing so clients can render eliminations without extra state.
type QuestionStartedPayload struct {
	QuestionIndex  int      `json:"questionIndex"`
	Prompt         string   `json:"prompt"`
	TimeLimitMs    int64    `json:"timeLimitMs"`
	ParticipantIDs []string `json:"participantIds"`
}

// AnswerAcceptedPayload acknowledges a submission without leaking its score.
type AnswerAcceptedPayload struct {
	ParticipantID string `json:"participantId"`
	QuestionIndex int    `json:"questionIndex"`
}

// QuestionRevealedPayload closes a question and publishes per-participant awards.
type QuestionRevealedPayload struct {
	QuestionIndex    int            `json:"questionIndex"`
	CorrectAnswerIDs []string       `json:"correctAnswerIds"`
	Scores           map[string]int `json:"scores"`
}

// LeaderboardPayload carries the ordered scoreboard.
type LeaderboardPayload struct {
	Entries []LeaderboardEntry `json:"entries"`
}

// EliminationPayload lists the participants removed after a battle-royale round.
type EliminationPayload struct {
	QuestionIndex  int      `json:"questionIndex"`
	ParticipantIDs []string `json:"participantIds"`
}

// MatchResultPayload reports one resolved bracket node.
type MatchResultPayload struct {
	Node     int    `json:"node"`
	Round    int    `json:"round"`
	WinnerID string `json:"winnerId"`
	LoserID  string `json:"loserId,omitempty"`
}

// SessionCompletedPayload closes the session with the final ordering.
type SessionCompletedPayload struct {
	WinnerID string             `json:"winnerId,omitempty"`
	Ranking  []LeaderboardEntry `json:"ranking"`
}

// SessionCancelledPayload records an administrative cancellation.
type SessionCancelledPayload struct {
	Reason string `json:"reason"`
}
