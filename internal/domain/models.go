package domain

import "time"

// Mode selects which post-reveal strategy drives a session.
type Mode string

const (
	ModeStandard     Mode = "standard"
	ModeTournament   Mode = "tournament"
	ModeBattleRoyale Mode = "battle_royale"
)

// Valid reports whether the mode is one of the supported variants.
func (m Mode) Valid() bool {
	switch m {
	case ModeStandard, ModeTournament, ModeBattleRoyale:
		return true
	}
	return false
}

// MinParticipants is the smallest participant count the mode can start with.
func (m Mode) MinParticipants() int {
	switch m {
	case ModeTournament:
		return 2
	case ModeBattleRoyale:
		return 3
	default:
		return 1
	}
}

// QuestionType distinguishes single-choice from exact-set multiple-choice questions.
type QuestionType string

const (
	QuestionSingle   QuestionType = "single"
	QuestionMultiple QuestionType = "multiple"
)

// Answer represents one selectable option of a question.
type Answer struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question models a timed question. Bounds are the contract with the
// authoring collaborator and are re-validated at session creation:
// time limit 5-300s, points 1-10000, at least two answers with at least
// one marked correct.
type Question struct {
	ID           string       `json:"id"`
	Prompt       string       `json:"prompt"`
	Type         QuestionType `json:"type"`
	TimeLimitSec int          `json:"timeLimitSec"`
	Points       int          `json:"points"`
	Answers      []Answer     `json:"answers"`
}

// TimeLimit returns the answer window as a duration.
func (q Question) TimeLimit() time.Duration {
	return time.Duration(q.TimeLimitSec) * time.Second
}

// CorrectAnswerIDs returns the ids of all answers flagged correct, in order.
func (q Question) CorrectAnswerIDs() []string {
	ids := make([]string, 0, 1)
	for _, a := range q.Answers {
		if a.Correct {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

// Quiz is an ordered collection of questions, immutable once a session starts.
type Quiz struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Questions   []Question `json:"questions"`
}

// SessionConfig carries the tunables of the orchestration engine.
type SessionConfig struct {
	// SpeedFloor is the lowest speed multiplier a correct answer can earn.
	SpeedFloor float64
	// EliminationFraction of active participants removed per battle-royale round.
	EliminationFraction float64
	// QuestionsPerMatch decides how many questions settle one bracket match.
	QuestionsPerMatch int
	// PresentDelay separates question_started from the answer window opening.
	PresentDelay time.Duration
	// Retention keeps finished sessions queryable before eviction.
	Retention time.Duration
}

// DefaultSessionConfig returns the engine defaults; callers override fields as needed.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		SpeedFloor:          0.5,
		EliminationFraction: 0.5,
		QuestionsPerMatch:   1,
		PresentDelay:        3 * time.Second,
		Retention:           10 * time.Minute,
	}
}

// ParticipantStatus tracks whether a participant still competes.
type ParticipantStatus string

const (
	ParticipantActive       ParticipantStatus = "active"
	ParticipantEliminated   ParticipantStatus = "eliminated"
	ParticipantDisconnected ParticipantStatus = "disconnected"
)

// AnswerSubmission models one participant's answer to the open question.
type AnswerSubmission struct {
	QuestionIndex int      `json:"questionIndex"`
	AnswerIDs     []string `json:"answerIds"`
}

// AnswerRecord is the stored outcome of a submission, fixed at reveal time.
type AnswerRecord struct {
	QuestionIndex int           `json:"questionIndex"`
	AnswerIDs     []string      `json:"answerIds"`
	Elapsed       time.Duration `json:"elapsedMs"`
	Correct       bool          `json:"correct"`
	Awarded       int           `json:"awarded"`
}

// LeaderboardEntry is a snapshot-friendly view of a participant.
type LeaderboardEntry struct {
	ParticipantID string            `json:"participantId"`
	DisplayName   string            `json:"displayName"`
	Score         int               `json:"score"`
	Status        ParticipantStatus `json:"status"`
}

// Snapshot is the synthesized current state sent to late subscribers so they
// can render the session without replaying history.
type Snapshot struct {
	SessionID       string             `json:"sessionId"`
	Mode            Mode               `json:"mode"`
	Phase           string             `json:"phase"`
	QuestionIndex   int                `json:"questionIndex"`
	TimeRemainingMs int64              `json:"timeRemainingMs"`
	Scoreboard      []LeaderboardEntry `json:"scoreboard"`
	ActiveIDs       []string           `json:"activeParticipantIds"`
	Seq             uint64             `json:"seq"`
}

// SessionSummary is the serializable record handed to the persistence
// collaborator once a session finishes.
type SessionSummary struct {
	SessionID   string                    `json:"sessionId"`
	QuizID      string                    `json:"quizId"`
	Mode        Mode                      `json:"mode"`
	Phase       string                    `json:"phase"`
	WinnerID    string                    `json:"winnerId,omitempty"`
	Ranking     []LeaderboardEntry        `json:"ranking"`
	AnswerLog   map[string][]AnswerRecord `json:"answerLog"`
	CreatedAt   time.Time                 `json:"createdAt"`
	StartedAt   time.Time                 `json:"startedAt,omitempty"`
	CompletedAt time.Time                 `json:"completedAt,omitempty"`
}
