package app

import (
	"context"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"quiz-arena/internal/broadcast"
	"quiz-arena/internal/deadline"
	"quiz-arena/internal/domain"
)

// SessionStore is the registry of live sessions. It is the only structure
// shared across sessions and must be safe under concurrent access.
type SessionStore interface {
	Put(session *Session)
	Get(sessionID string) (*Session, bool)
	Delete(sessionID string)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// SummarySink receives the serializable summary of every finished session
// for the persistence collaborator to store.
type SummarySink interface {
	SaveSummary(ctx context.Context, summary domain.SessionSummary) error
}

// SessionService is the command interface into the orchestration engine.
// Authorization and rate limiting happen upstream; the service still rejects
// structurally invalid input.
type SessionService struct {
	sessions  SessionStore
	quizzes   QuizRepository
	deadlines *deadline.Service
	clock     clockwork.Clock
	sink      SummarySink
	logger    zerolog.Logger
	newID     func() string
	defaults  domain.SessionConfig
}

// Option customizes a SessionService.
type Option func(*SessionService)

// WithSummarySink routes finished-session summaries to sink.
func WithSummarySink(sink SummarySink) Option {
	return func(s *SessionService) { s.sink = sink }
}

// WithLogger replaces the default no-op logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *SessionService) { s.logger = logger }
}

// WithIDGenerator overrides session id generation, used by tests.
func WithIDGenerator(gen func() string) Option {
	return func(s *SessionService) { s.newID = gen }
}

// WithSessionDefaults sets operator-level defaults applied to session
// creation requests that leave fields unset.
func WithSessionDefaults(def domain.SessionConfig) Option {
	return func(s *SessionService) {
		s.defaults = applyConfigDefaults(def, domain.DefaultSessionConfig())
	}
}

func NewSessionService(store SessionStore, quizzes QuizRepository, deadlines *deadline.Service, opts ...Option) *SessionService {
	s := &SessionService{
		sessions:  store,
		quizzes:   quizzes,
		deadlines: deadlines,
		clock:     deadlines.Clock(),
		logger:    zerolog.Nop(),
		newID:     uuid.NewString,
		defaults:  domain.DefaultSessionConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create builds a new session in the lobby phase over the given quiz and
// returns its id. The quiz bounds are re-validated defensively even though
// the authoring collaborator already enforces them.
func (s *SessionService) Create(ctx context.Context, quizID string, mode domain.Mode, cfg domain.SessionConfig) (string, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return "", err
	}
	cfg = applyConfigDefaults(cfg, s.defaults)
	if err := validateSession(quiz, mode, cfg); err != nil {
		return "", err
	}

	id := s.newID()
	session := &Session{
		id:           id,
		mode:         mode,
		quiz:         quiz,
		cfg:          cfg,
		clock:        s.clock,
		deadlines:    s.deadlines,
		channel:      broadcast.NewChannel(id, s.clock.Now),
		logger:       s.logger,
		phase:        PhaseLobby,
		qIndex:       -1,
		createdAt:    s.clock.Now(),
		participants: make(map[string]*participantState),
	}
	session.finished = s.persistSummary
	session.evict = s.evictSession

	s.sessions.Put(session)
	session.channel.Publish(domain.EventSessionCreated, domain.SessionCreatedPayload{
		QuizID: quiz.ID,
		Mode:   mode,
		Title:  quiz.Title,
	})
	s.logger.Info().Str("session_id", id).Str("quiz_id", quizID).Str("mode", string(mode)).Msg("session created")
	return id, nil
}

// Join adds a participant while the session is in the lobby and returns the
// current snapshot.
func (s *SessionService) Join(_ context.Context, sessionID, userID, displayName string) (domain.Snapshot, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.Snapshot{}, domain.ErrSessionNotFound
	}
	return session.join(userID, displayName)
}

// Leave removes a lobby participant or marks a started participant
// disconnected. It is not an error to leave twice.
func (s *SessionService) Leave(_ context.Context, sessionID, userID string) {
	if session, ok := s.sessions.Get(sessionID); ok {
		session.leave(userID)
	}
}

// Start moves the session out of the lobby and opens the first question.
func (s *SessionService) Start(_ context.Context, sessionID string) error {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.ErrSessionNotFound
	}
	return session.start()
}

// SubmitAnswer records a participant's answer to the open question. The
// acknowledgement carries no score; scoring happens at reveal.
func (s *SessionService) SubmitAnswer(_ context.Context, sessionID, userID string, sub domain.AnswerSubmission) error {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.ErrSessionNotFound
	}
	return session.submitAnswer(userID, sub)
}

// Cancel terminates the session from any non-terminal phase. Cancelling a
// finished session is a no-op.
func (s *SessionService) Cancel(_ context.Context, sessionID, reason string) error {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.ErrSessionNotFound
	}
	session.cancel(reason)
	return nil
}

// Subscribe attaches a consumer to the session's event stream. The first
// delivered event is a state snapshot. The caller must Unsubscribe via the
// returned cancel function to avoid leaks.
func (s *SessionService) Subscribe(_ context.Context, sessionID string, buffer int) (*broadcast.Subscriber, func(), error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, nil, domain.ErrSessionNotFound
	}
	sub := session.subscribe(buffer)
	return sub, func() { session.channel.Unsubscribe(sub) }, nil
}

// Snapshot returns the session's current synthesized state.
func (s *SessionService) Snapshot(_ context.Context, sessionID string) (domain.Snapshot, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.Snapshot{}, domain.ErrSessionNotFound
	}
	return session.snapshot(), nil
}

// Summary exposes the serializable session summary.
func (s *SessionService) Summary(_ context.Context, sessionID string) (domain.SessionSummary, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.SessionSummary{}, domain.ErrSessionNotFound
	}
	return session.summary(), nil
}

func (s *SessionService) persistSummary(summary domain.SessionSummary) {
	if s.sink == nil {
		return
	}
	if err := s.sink.SaveSummary(context.Background(), summary); err != nil {
		s.logger.Error().Err(err).Str("session_id", summary.SessionID).Msg("failed to persist session summary")
	}
}

func (s *SessionService) evictSession(sessionID string) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return
	}
	s.sessions.Delete(sessionID)
	session.channel.Close()
	s.logger.Debug().Str("session_id", sessionID).Msg("session evicted after retention")
}
