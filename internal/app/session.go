package app

import (
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"quiz-arena/internal/bracket"
	"quiz-arena/internal/broadcast"
	"quiz-arena/internal/deadline"
	"quiz-arena/internal/domain"
	"quiz-arena/internal/elimination"
	"quiz-arena/internal/scoring"
)

// Phase is a session's lifecycle stage. Transitions are monotonic: once a
// session leaves a phase it never returns to it, and completed/cancelled
// are terminal.
type Phase string

const (
	PhaseLobby      Phase = "lobby"
	PhasePresenting Phase = "presenting"
	PhaseCollecting Phase = "collecting"
	PhaseRevealing  Phase = "revealing"
	PhaseCompleted  Phase = "completed"
	PhaseCancelled  Phase = "cancelled"
)

func (p Phase) terminal() bool {
	return p == PhaseCompleted || p == PhaseCancelled
}

type participantState struct {
	id       string
	name     string
	joinedAt time.Time
	score    int
	scoredAt time.Time
	status   domain.ParticipantStatus
	answers  map[int]*domain.AnswerRecord
}

// Session owns one quiz run from lobby to completion. Every mutating
// operation takes the session mutex, so operations on one session are
// strictly serialized while different sessions run fully in parallel.
// Subscribers only ever see immutable event copies, never live state.
type Session struct {
	id   string
	mode domain.Mode
	quiz domain.Quiz
	cfg  domain.SessionConfig

	clock     clockwork.Clock
	deadlines *deadline.Service
	channel   *broadcast.Channel
	logger    zerolog.Logger

	// finished receives the summary when the session reaches a terminal
	// phase; evict fires after the retention window. Both run outside the
	// session lock.
	finished func(domain.SessionSummary)
	evict    func(sessionID string)

	mu           sync.Mutex
	phase        Phase
	epoch        uint64
	qIndex       int
	qOpenedAt    time.Time
	createdAt    time.Time
	startedAt    time.Time
	completedAt  time.Time
	participants map[string]*participantState
	order        []string
	winnerID     string

	// Tournament state.
	br           *bracket.Bracket
	match        bracket.Match
	matchPlayed  int
	matchScores  map[string]int
	matchElapsed map[string]time.Duration
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Phase returns the current lifecycle stage.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) join(userID, displayName string) (domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseLobby {
		return domain.Snapshot{}, domain.ErrSessionNotJoinable
	}
	if _, ok := s.participants[userID]; ok {
		return domain.Snapshot{}, domain.ErrDuplicateParticipant
	}

	s.participants[userID] = &participantState{
		id:       userID,
		name:     displayName,
		joinedAt: s.clock.Now(),
		status:   domain.ParticipantActive,
		answers:  make(map[int]*domain.AnswerRecord),
	}
	s.order = append(s.order, userID)

	s.channel.Publish(domain.EventParticipantJoined, domain.ParticipantJoinedPayload{
		ParticipantID: userID,
		DisplayName:   displayName,
		Count:         len(s.participants),
	})
	return s.snapshotLocked(), nil
}

func (s *Session) leave(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[userID]
	if !ok {
		return
	}
	if s.phase == PhaseLobby {
		// Membership is only fluid before the session starts.
		delete(s.participants, userID)
		for i, id := range s.order {
			if id == userID {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
		s.channel.Publish(domain.EventLeaderboardUpdate, domain.LeaderboardPayload{Entries: s.leaderboardLocked()})
		return
	}
	if p.status == domain.ParticipantActive {
		p.status = domain.ParticipantDisconnected
	}
}

func (s *Session) start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseLobby {
		return domain.ErrSessionNotJoinable
	}
	if len(s.participants) < s.mode.MinParticipants() {
		return domain.ErrInsufficientParticipants
	}

	s.startedAt = s.clock.Now()
	if s.mode == domain.ModeTournament {
		br, err := bracket.New(s.order)
		if err != nil {
			return err
		}
		s.br = br
		match, _ := br.NextMatch()
		s.beginMatchLocked(match)
	}

	s.logger.Info().Str("session_id", s.id).Str("mode", string(s.mode)).
		Int("participants", len(s.participants)).Msg("session started")
	s.openQuestionLocked(0)
	return nil
}

func (s *Session) submitAnswer(userID string, sub domain.AnswerSubmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[userID]
	if !ok || p.status != domain.ParticipantActive {
		return domain.ErrParticipantNotActive
	}
	if s.mode == domain.ModeTournament && !s.match.Has(userID) {
		return domain.ErrParticipantNotActive
	}
	if s.phase != PhaseCollecting {
		return domain.ErrAnswerWindowClosed
	}
	if sub.QuestionIndex != s.qIndex {
		return domain.ErrQuestionMismatch
	}

	elapsed := s.clock.Now().Sub(s.qOpenedAt)
	if elapsed > s.currentQuestion().TimeLimit() {
		return domain.ErrAnswerWindowClosed
	}
	if _, dup := p.answers[s.qIndex]; dup {
		return domain.ErrDuplicateAnswer
	}

	ids := append([]string(nil), sub.AnswerIDs...)
	p.answers[s.qIndex] = &domain.AnswerRecord{
		QuestionIndex: s.qIndex,
		AnswerIDs:     ids,
		Elapsed:       elapsed,
	}
	s.channel.Publish(domain.EventAnswerAccepted, domain.AnswerAcceptedPayload{
		ParticipantID: userID,
		QuestionIndex: s.qIndex,
	})

	if s.allAnsweredLocked() {
		s.deadlines.Cancel(s.id)
		s.revealLocked()
	}
	return nil
}

func (s *Session) cancel(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase.terminal() {
		return
	}
	s.phase = PhaseCancelled
	s.epoch++
	s.completedAt = s.clock.Now()
	s.deadlines.Cancel(s.id)
	s.channel.Publish(domain.EventSessionCancelled, domain.SessionCancelledPayload{Reason: reason})
	s.logger.Info().Str("session_id", s.id).Str("reason", reason).Msg("session cancelled")
	s.finishLocked()
}

// onDeadline is the timer callback. The epoch guard discards callbacks that
// fire for a state the session has already moved past.
func (s *Session) onDeadline(epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase.terminal() || epoch != s.epoch {
		return
	}
	switch s.phase {
	case PhasePresenting:
		s.beginCollectingLocked()
	case PhaseCollecting:
		s.revealLocked()
	}
}

// openQuestionLocked enters Presenting(q) and arms the phase timer. A zero
// present delay collapses straight into Collecting.
func (s *Session) openQuestionLocked(q int) {
	s.phase = PhasePresenting
	s.qIndex = q
	s.epoch++

	question := s.currentQuestion()
	s.channel.Publish(domain.EventQuestionStarted, domain.QuestionStartedPayload{
		QuestionIndex:  q,
		Prompt:         question.Prompt,
		TimeLimitMs:    question.TimeLimit().Milliseconds(),
		ParticipantIDs: s.eligibleIDsLocked(),
	})

	if s.cfg.PresentDelay <= 0 {
		s.beginCollectingLocked()
		return
	}
	epoch := s.epoch
	s.deadlines.Schedule(s.id, s.cfg.PresentDelay, func() { s.onDeadline(epoch) })
}

func (s *Session) beginCollectingLocked() {
	s.phase = PhaseCollecting
	s.qOpenedAt = s.clock.Now()
	epoch := s.epoch
	s.deadlines.Schedule(s.id, s.currentQuestion().TimeLimit(), func() { s.onDeadline(epoch) })
}

// revealLocked scores the closed question for every eligible participant,
// publishes the reveal, then hands control to the mode strategy.
func (s *Session) revealLocked() {
	s.phase = PhaseRevealing
	question := s.currentQuestion()

	roundScores := make(map[string]int)
	outcomes := make(map[string]scoring.Outcome)
	for _, id := range s.eligibleIDsLocked() {
		p := s.participants[id]
		record := p.answers[s.qIndex]
		outcome := scoring.Outcome{ParticipantID: id}
		if record != nil {
			outcome.Answered = true
			outcome.Elapsed = record.Elapsed
			outcome.Correct = scoring.Correct(question, record.AnswerIDs)
			outcome.Awarded = scoring.Score(question, record.AnswerIDs, record.Elapsed, s.cfg.SpeedFloor)
			record.Correct = outcome.Correct
			record.Awarded = outcome.Awarded
		} else {
			// Unanswered questions score zero but still appear in the log.
			p.answers[s.qIndex] = &domain.AnswerRecord{QuestionIndex: s.qIndex}
		}
		if outcome.Awarded > 0 {
			p.score += outcome.Awarded
			p.scoredAt = s.clock.Now()
		}
		roundScores[id] = outcome.Awarded
		outcomes[id] = outcome
	}

	s.channel.Publish(domain.EventQuestionRevealed, domain.QuestionRevealedPayload{
		QuestionIndex:    s.qIndex,
		CorrectAnswerIDs: question.CorrectAnswerIDs(),
		Scores:           roundScores,
	})
	s.channel.Publish(domain.EventLeaderboardUpdate, domain.LeaderboardPayload{Entries: s.leaderboardLocked()})

	switch s.mode {
	case domain.ModeBattleRoyale:
		s.advanceBattleRoyaleLocked(roundScores)
	case domain.ModeTournament:
		s.advanceTournamentLocked(outcomes)
	default:
		s.advanceStandardLocked()
	}
}

func (s *Session) advanceStandardLocked() {
	if s.qIndex+1 < len(s.quiz.Questions) {
		s.openQuestionLocked(s.qIndex + 1)
		return
	}
	s.completeLocked("")
}

func (s *Session) advanceBattleRoyaleLocked(roundScores map[string]int) {
	k := elimination.Count(len(roundScores), s.cfg.EliminationFraction)
	res := elimination.Apply(roundScores, k)

	if len(res.Eliminated) > 0 {
		for _, id := range res.Eliminated {
			s.participants[id].status = domain.ParticipantEliminated
		}
		s.channel.Publish(domain.EventParticipantEliminated, domain.EliminationPayload{
			QuestionIndex:  s.qIndex,
			ParticipantIDs: res.Eliminated,
		})
	}

	switch {
	case len(res.Survivors) == 1:
		s.completeLocked(res.Survivors[0])
	case len(res.Survivors) == 0:
		// A full boundary tie wiped the field; rank by cumulative score.
		s.completeLocked("")
	case s.qIndex+1 < len(s.quiz.Questions):
		s.openQuestionLocked(s.qIndex + 1)
	default:
		s.completeLocked("")
	}
}

func (s *Session) advanceTournamentLocked(outcomes map[string]scoring.Outcome) {
	for id, outcome := range outcomes {
		s.matchScores[id] += outcome.Awarded
		s.matchElapsed[id] += outcome.Elapsed
	}
	s.matchPlayed++

	if s.matchPlayed < s.cfg.QuestionsPerMatch {
		s.openQuestionLocked(s.nextQuestionIndexLocked())
		return
	}

	left := scoring.Outcome{
		ParticipantID: s.match.Left,
		Correct:       s.matchScores[s.match.Left] > 0,
		Awarded:       s.matchScores[s.match.Left],
		Elapsed:       s.matchElapsed[s.match.Left],
	}
	right := scoring.Outcome{
		ParticipantID: s.match.Right,
		Correct:       s.matchScores[s.match.Right] > 0,
		Awarded:       s.matchScores[s.match.Right],
		Elapsed:       s.matchElapsed[s.match.Right],
	}
	winner := scoring.Winner(left, right)
	loser := s.match.Other(winner.ParticipantID)

	if err := s.br.Report(s.match.Node, winner.ParticipantID); err != nil {
		s.logger.Error().Err(err).Str("session_id", s.id).Int("node", s.match.Node).Msg("bracket report failed")
		s.completeLocked(winner.ParticipantID)
		return
	}
	// A disconnected loser keeps that status; match eligibility is decided by
	// the bracket pair, not the status field.
	if p := s.participants[loser]; p.status == domain.ParticipantActive {
		p.status = domain.ParticipantEliminated
	}
	s.channel.Publish(domain.EventMatchResult, domain.MatchResultPayload{
		Node:     s.match.Node,
		Round:    s.match.Round,
		WinnerID: winner.ParticipantID,
		LoserID:  loser,
	})

	if s.br.IsComplete() {
		champion, _ := s.br.Winner()
		s.completeLocked(champion)
		return
	}
	match, ok := s.br.NextMatch()
	if !ok {
		// Unreachable for a well-formed bracket, but never leave the
		// session stuck mid-tournament.
		s.completeLocked(winner.ParticipantID)
		return
	}
	s.beginMatchLocked(match)
	s.openQuestionLocked(s.nextQuestionIndexLocked())
}

func (s *Session) beginMatchLocked(m bracket.Match) {
	s.match = m
	s.matchPlayed = 0
	s.matchScores = map[string]int{m.Left: 0, m.Right: 0}
	s.matchElapsed = map[string]time.Duration{m.Left: 0, m.Right: 0}
}

// nextQuestionIndexLocked cycles over the quiz when a tournament needs more
// questions than the quiz holds.
func (s *Session) nextQuestionIndexLocked() int {
	return (s.qIndex + 1) % len(s.quiz.Questions)
}

func (s *Session) completeLocked(winnerID string) {
	s.phase = PhaseCompleted
	s.epoch++
	s.completedAt = s.clock.Now()
	s.deadlines.Cancel(s.id)

	ranking := s.leaderboardLocked()
	if winnerID == "" && len(ranking) > 0 {
		winnerID = ranking[0].ParticipantID
	}
	s.winnerID = winnerID

	s.channel.Publish(domain.EventSessionCompleted, domain.SessionCompletedPayload{
		WinnerID: winnerID,
		Ranking:  ranking,
	})
	s.logger.Info().Str("session_id", s.id).Str("winner_id", winnerID).Msg("session completed")
	s.finishLocked()
}

// finishLocked hands the summary to the finished hook and arms the
// retention eviction timer. Both run off the session lock.
func (s *Session) finishLocked() {
	summary := s.summaryLocked()
	if s.finished != nil {
		go s.finished(summary)
	}
	if s.evict != nil {
		id := s.id
		s.deadlines.Schedule(id+":retention", s.cfg.Retention, func() { s.evict(id) })
	}
}

func (s *Session) currentQuestion() domain.Question {
	return s.quiz.Questions[s.qIndex]
}

// eligibleIDsLocked returns the participants the open question applies to:
// the current match pair in tournament mode, every non-eliminated
// participant otherwise.
func (s *Session) eligibleIDsLocked() []string {
	if s.mode == domain.ModeTournament && s.br != nil {
		return []string{s.match.Left, s.match.Right}
	}
	ids := make([]string, 0, len(s.participants))
	for _, id := range s.order {
		if s.participants[id].status != domain.ParticipantEliminated {
			ids = append(ids, id)
		}
	}
	return ids
}

// allAnsweredLocked reports whether every active eligible participant has a
// submission for the open question. Disconnected participants do not hold
// the round open.
func (s *Session) allAnsweredLocked() bool {
	answered := 0
	waiting := 0
	for _, id := range s.eligibleIDsLocked() {
		p := s.participants[id]
		if p.status != domain.ParticipantActive {
			continue
		}
		waiting++
		if _, ok := p.answers[s.qIndex]; ok {
			answered++
		}
	}
	return waiting > 0 && answered == waiting
}

// leaderboardLocked orders participants by score, then by who reached their
// score first, then by id so the ordering is reproducible.
func (s *Session) leaderboardLocked() []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, 0, len(s.participants))
	for _, id := range s.order {
		p := s.participants[id]
		entries = append(entries, domain.LeaderboardEntry{
			ParticipantID: p.id,
			DisplayName:   p.name,
			Score:         p.score,
			Status:        p.status,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		pi := s.participants[entries[i].ParticipantID]
		pj := s.participants[entries[j].ParticipantID]
		if !pi.scoredAt.Equal(pj.scoredAt) {
			return pi.scoredAt.Before(pj.scoredAt)
		}
		return entries[i].ParticipantID < entries[j].ParticipantID
	})
	return entries
}

func (s *Session) snapshotLocked() domain.Snapshot {
	var remaining time.Duration
	switch s.phase {
	case PhaseCollecting:
		remaining = s.currentQuestion().TimeLimit() - s.clock.Now().Sub(s.qOpenedAt)
		if remaining < 0 {
			remaining = 0
		}
	case PhasePresenting:
		remaining = s.currentQuestion().TimeLimit()
	}
	return domain.Snapshot{
		SessionID:       s.id,
		Mode:            s.mode,
		Phase:           string(s.phase),
		QuestionIndex:   s.qIndex,
		TimeRemainingMs: remaining.Milliseconds(),
		Scoreboard:      s.leaderboardLocked(),
		ActiveIDs:       s.eligibleIDsLocked(),
		// Anchor the snapshot in the event stream so consumers resuming from
		// it never observe a sequence regression.
		Seq: s.channel.Seq(),
	}
}

func (s *Session) snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) subscribe(buffer int) *broadcast.Subscriber {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel.Subscribe(buffer, s.snapshotLocked())
}

func (s *Session) summaryLocked() domain.SessionSummary {
	log := make(map[string][]domain.AnswerRecord, len(s.participants))
	for id, p := range s.participants {
		records := make([]domain.AnswerRecord, 0, len(p.answers))
		indexes := make([]int, 0, len(p.answers))
		for q := range p.answers {
			indexes = append(indexes, q)
		}
		sort.Ints(indexes)
		for _, q := range indexes {
			records = append(records, *p.answers[q])
		}
		log[id] = records
	}
	return domain.SessionSummary{
		SessionID:   s.id,
		QuizID:      s.quiz.ID,
		Mode:        s.mode,
		Phase:       string(s.phase),
		WinnerID:    s.winnerID,
		Ranking:     s.leaderboardLocked(),
		AnswerLog:   log,
		CreatedAt:   s.createdAt,
		StartedAt:   s.startedAt,
		CompletedAt: s.completedAt,
	}
}

func (s *Session) summary() domain.SessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summaryLocked()
}
