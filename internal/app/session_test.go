package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz-arena/internal/domain"
)

func multiQuestionQuiz(n int) domain.Quiz {
	quiz := domain.Quiz{ID: "quiz-1", Title: "Arena"}
	for i := 0; i < n; i++ {
		quiz.Questions = append(quiz.Questions, question("q"+string(rune('1'+i)), 30, 100))
	}
	return quiz
}

func wrong() domain.AnswerSubmission {
	return domain.AnswerSubmission{AnswerIDs: []string{"wrong"}}
}

func at(q int, sub domain.AnswerSubmission) domain.AnswerSubmission {
	sub.QuestionIndex = q
	return sub
}

func TestBattleRoyaleEliminatesLowestScorersEachRound(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, map[string]domain.Quiz{"quiz-1": multiQuestionQuiz(3)})

	id, err := h.service.Create(ctx, "quiz-1", domain.ModeBattleRoyale, domain.SessionConfig{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	users := []string{"u1", "u2", "u3", "u4", "u5"}
	for _, u := range users {
		if _, err := h.service.Join(ctx, id, u, "name-"+u); err != nil {
			t.Fatalf("join %s: %v", u, err)
		}
	}
	sub, cancel, _ := h.service.Subscribe(ctx, id, 256)
	defer cancel()

	if err := h.service.Start(ctx, id); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, sub, domain.EventQuestionStarted)

	// Round 1: u1-u3 answer correctly at staggered times, u4 answers wrong,
	// u5 never answers. 50% of five rounds down to k=2.
	if err := h.service.SubmitAnswer(ctx, id, "u1", at(0, correct())); err != nil {
		t.Fatalf("u1: %v", err)
	}
	h.clock.Advance(2 * time.Second)
	if err := h.service.SubmitAnswer(ctx, id, "u2", at(0, correct())); err != nil {
		t.Fatalf("u2: %v", err)
	}
	h.clock.Advance(2 * time.Second)
	if err := h.service.SubmitAnswer(ctx, id, "u3", at(0, correct())); err != nil {
		t.Fatalf("u3: %v", err)
	}
	if err := h.service.SubmitAnswer(ctx, id, "u4", at(0, wrong())); err != nil {
		t.Fatalf("u4: %v", err)
	}
	h.clock.Advance(26 * time.Second)

	eliminated := waitFor(t, sub, domain.EventParticipantEliminated)
	ep := eliminated.Payload.(domain.EliminationPayload)
	if len(ep.ParticipantIDs) != 2 {
		t.Fatalf("expected 2 eliminations in round 1, got %v", ep.ParticipantIDs)
	}
	gone := map[string]bool{}
	for _, pid := range ep.ParticipantIDs {
		gone[pid] = true
	}
	if !gone["u4"] || !gone["u5"] {
		t.Fatalf("expected u4 and u5 to be eliminated, got %v", ep.ParticipantIDs)
	}

	started := waitFor(t, sub, domain.EventQuestionStarted)
	qs := started.Payload.(domain.QuestionStartedPayload)
	if qs.QuestionIndex != 1 || len(qs.ParticipantIDs) != 3 {
		t.Fatalf("round 2 should open for the 3 survivors, got %+v", qs)
	}

	// Eliminated participants cannot submit.
	if err := h.service.SubmitAnswer(ctx, id, "u4", at(1, correct())); !errors.Is(err, domain.ErrParticipantNotActive) {
		t.Fatalf("expected ErrParticipantNotActive for eliminated u4, got %v", err)
	}

	// Round 2: u3 answers wrong and is the single elimination (k=1 of 3).
	if err := h.service.SubmitAnswer(ctx, id, "u1", at(1, correct())); err != nil {
		t.Fatalf("round 2 u1: %v", err)
	}
	h.clock.Advance(3 * time.Second)
	if err := h.service.SubmitAnswer(ctx, id, "u2", at(1, correct())); err != nil {
		t.Fatalf("round 2 u2: %v", err)
	}
	if err := h.service.SubmitAnswer(ctx, id, "u3", at(1, wrong())); err != nil {
		t.Fatalf("round 2 u3: %v", err)
	}

	eliminated = waitFor(t, sub, domain.EventParticipantEliminated)
	ep = eliminated.Payload.(domain.EliminationPayload)
	if len(ep.ParticipantIDs) != 1 || ep.ParticipantIDs[0] != "u3" {
		t.Fatalf("expected only u3 eliminated in round 2, got %v", ep.ParticipantIDs)
	}

	started = waitFor(t, sub, domain.EventQuestionStarted)
	qs = started.Payload.(domain.QuestionStartedPayload)
	if qs.QuestionIndex != 2 || len(qs.ParticipantIDs) != 2 {
		t.Fatalf("round 3 should open for 2 survivors, got %+v", qs)
	}

	// Round 3: u2 answers wrong, u1 takes the crown.
	if err := h.service.SubmitAnswer(ctx, id, "u1", at(2, correct())); err != nil {
		t.Fatalf("round 3 u1: %v", err)
	}
	if err := h.service.SubmitAnswer(ctx, id, "u2", at(2, wrong())); err != nil {
		t.Fatalf("round 3 u2: %v", err)
	}

	completed := waitFor(t, sub, domain.EventSessionCompleted)
	cp := completed.Payload.(domain.SessionCompletedPayload)
	if cp.WinnerID != "u1" {
		t.Fatalf("expected u1 as last survivor, got %s", cp.WinnerID)
	}
}

func TestBattleRoyaleStopsAtOneSurvivorBeforeQuestionsRunOut(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, map[string]domain.Quiz{"quiz-1": multiQuestionQuiz(5)})

	id, _ := h.service.Create(ctx, "quiz-1", domain.ModeBattleRoyale, domain.SessionConfig{EliminationFraction: 0.6})
	for _, u := range []string{"u1", "u2", "u3"} {
		_, _ = h.service.Join(ctx, id, u, u)
	}
	sub, cancel, _ := h.service.Subscribe(ctx, id, 256)
	defer cancel()

	_ = h.service.Start(ctx, id)
	waitFor(t, sub, domain.EventQuestionStarted)

	// k = floor(0.6 * 3) = 1, but u2 and u3 tie at zero on the boundary and
	// go out together, leaving a single survivor after one round.
	_ = h.service.SubmitAnswer(ctx, id, "u1", at(0, correct()))
	_ = h.service.SubmitAnswer(ctx, id, "u2", at(0, wrong()))
	_ = h.service.SubmitAnswer(ctx, id, "u3", at(0, wrong()))

	eliminated := waitFor(t, sub, domain.EventParticipantEliminated)
	ep := eliminated.Payload.(domain.EliminationPayload)
	if len(ep.ParticipantIDs) != 2 {
		t.Fatalf("expected tie-inclusive elimination of 2, got %v", ep.ParticipantIDs)
	}

	completed := waitFor(t, sub, domain.EventSessionCompleted)
	cp := completed.Payload.(domain.SessionCompletedPayload)
	if cp.WinnerID != "u1" {
		t.Fatalf("expected u1 to win with questions to spare, got %s", cp.WinnerID)
	}
}

func TestTournamentRunsBracketToChampion(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, map[string]domain.Quiz{"quiz-1": multiQuestionQuiz(2)})

	id, err := h.service.Create(ctx, "quiz-1", domain.ModeTournament, domain.SessionConfig{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, u := range []string{"u1", "u2", "u3"} {
		if _, err := h.service.Join(ctx, id, u, u); err != nil {
			t.Fatalf("join %s: %v", u, err)
		}
	}
	sub, cancel, _ := h.service.Subscribe(ctx, id, 256)
	defer cancel()

	if err := h.service.Start(ctx, id); err != nil {
		t.Fatalf("start: %v", err)
	}

	// With three entrants u3 draws the bye; the opener is u1 vs u2.
	started := waitFor(t, sub, domain.EventQuestionStarted)
	qs := started.Payload.(domain.QuestionStartedPayload)
	if len(qs.ParticipantIDs) != 2 || qs.ParticipantIDs[0] != "u1" || qs.ParticipantIDs[1] != "u2" {
		t.Fatalf("expected opening match u1 vs u2, got %v", qs.ParticipantIDs)
	}

	// Spectators outside the current match cannot answer.
	if err := h.service.SubmitAnswer(ctx, id, "u3", at(0, correct())); !errors.Is(err, domain.ErrParticipantNotActive) {
		t.Fatalf("expected ErrParticipantNotActive for non-match participant, got %v", err)
	}

	if err := h.service.SubmitAnswer(ctx, id, "u1", at(0, correct())); err != nil {
		t.Fatalf("u1: %v", err)
	}
	if err := h.service.SubmitAnswer(ctx, id, "u2", at(0, wrong())); err != nil {
		t.Fatalf("u2: %v", err)
	}

	result := waitFor(t, sub, domain.EventMatchResult)
	mr := result.Payload.(domain.MatchResultPayload)
	if mr.WinnerID != "u1" || mr.LoserID != "u2" || mr.Round != 1 {
		t.Fatalf("unexpected first match result: %+v", mr)
	}

	// Final: u1 vs the bye holder u3 on the next question.
	started = waitFor(t, sub, domain.EventQuestionStarted)
	qs = started.Payload.(domain.QuestionStartedPayload)
	if qs.QuestionIndex != 1 || len(qs.ParticipantIDs) != 2 {
		t.Fatalf("unexpected final pairing: %+v", qs)
	}
	if err := h.service.SubmitAnswer(ctx, id, "u1", at(1, wrong())); err != nil {
		t.Fatalf("final u1: %v", err)
	}
	if err := h.service.SubmitAnswer(ctx, id, "u3", at(1, correct())); err != nil {
		t.Fatalf("final u3: %v", err)
	}

	result = waitFor(t, sub, domain.EventMatchResult)
	mr = result.Payload.(domain.MatchResultPayload)
	if mr.WinnerID != "u3" || mr.Round != 2 {
		t.Fatalf("unexpected final result: %+v", mr)
	}

	completed := waitFor(t, sub, domain.EventSessionCompleted)
	cp := completed.Payload.(domain.SessionCompletedPayload)
	if cp.WinnerID != "u3" {
		t.Fatalf("expected champion u3, got %s", cp.WinnerID)
	}
}

func TestTournamentKeepsDisconnectedLoserStatus(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, map[string]domain.Quiz{"quiz-1": multiQuestionQuiz(1)})

	id, _ := h.service.Create(ctx, "quiz-1", domain.ModeTournament, domain.SessionConfig{})
	_, _ = h.service.Join(ctx, id, "u1", "Alice")
	_, _ = h.service.Join(ctx, id, "u2", "Bob")
	sub, cancel, _ := h.service.Subscribe(ctx, id, 256)
	defer cancel()

	_ = h.service.Start(ctx, id)
	waitFor(t, sub, domain.EventQuestionStarted)

	// u2 drops mid-match; u1's answer closes the round without them.
	h.service.Leave(ctx, id, "u2")
	if err := h.service.SubmitAnswer(ctx, id, "u1", at(0, correct())); err != nil {
		t.Fatalf("u1: %v", err)
	}

	result := waitFor(t, sub, domain.EventMatchResult)
	mr := result.Payload.(domain.MatchResultPayload)
	if mr.WinnerID != "u1" || mr.LoserID != "u2" {
		t.Fatalf("unexpected match result: %+v", mr)
	}
	waitFor(t, sub, domain.EventSessionCompleted)

	// Losing the match must not paper over the disconnect in the record.
	summary, err := h.service.Summary(ctx, id)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	for _, entry := range summary.Ranking {
		if entry.ParticipantID == "u2" && entry.Status != domain.ParticipantDisconnected {
			t.Fatalf("expected u2 to stay disconnected, got %s", entry.Status)
		}
	}
}

func TestTournamentTieBreaksBySpeedThenID(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, map[string]domain.Quiz{"quiz-1": multiQuestionQuiz(1)})

	id, _ := h.service.Create(ctx, "quiz-1", domain.ModeTournament, domain.SessionConfig{})
	_, _ = h.service.Join(ctx, id, "u1", "Alice")
	_, _ = h.service.Join(ctx, id, "u2", "Bob")
	sub, cancel, _ := h.service.Subscribe(ctx, id, 256)
	defer cancel()

	_ = h.service.Start(ctx, id)
	waitFor(t, sub, domain.EventQuestionStarted)

	// Both answer correctly at the same fake-clock instant with the same
	// award, so the id fallback decides: u1 wins, reproducibly.
	if err := h.service.SubmitAnswer(ctx, id, "u2", at(0, correct())); err != nil {
		t.Fatalf("u2: %v", err)
	}
	if err := h.service.SubmitAnswer(ctx, id, "u1", at(0, correct())); err != nil {
		t.Fatalf("u1: %v", err)
	}

	result := waitFor(t, sub, domain.EventMatchResult)
	mr := result.Payload.(domain.MatchResultPayload)
	if mr.WinnerID != "u1" {
		t.Fatalf("expected deterministic id tie-break to pick u1, got %s", mr.WinnerID)
	}
	completed := waitFor(t, sub, domain.EventSessionCompleted)
	if cp := completed.Payload.(domain.SessionCompletedPayload); cp.WinnerID != "u1" {
		t.Fatalf("expected champion u1, got %s", cp.WinnerID)
	}
}
