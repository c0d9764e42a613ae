// Package scoring turns submissions into point awards. Everything here is a
// pure function of its inputs so reveals are reproducible.
package scoring

import (
	"math"
	"time"

	"quiz-arena/internal/domain"
)

// Outcome is one participant's result on one question.
type Outcome struct {
	ParticipantID string
	Answered      bool
	Correct       bool
	Awarded       int
	Elapsed       time.Duration
}

// Correct reports whether the chosen answer set matches the question exactly.
// Single-choice questions require exactly the one correct id; multiple-choice
// questions require the chosen set to equal the correct set.
func Correct(q domain.Question, chosen []string) bool {
	correct := q.CorrectAnswerIDs()
	if q.Type == domain.QuestionSingle {
		return len(chosen) == 1 && len(correct) == 1 && chosen[0] == correct[0]
	}
	if len(chosen) != len(correct) {
		return false
	}
	want := make(map[string]struct{}, len(correct))
	for _, id := range correct {
		want[id] = struct{}{}
	}
	for _, id := range chosen {
		if _, ok := want[id]; !ok {
			return false
		}
		delete(want, id)
	}
	return len(want) == 0
}

// SpeedFactor decays linearly from 1.0 at elapsed=0 to floor at the time
// limit, clamped to [floor, 1.0].
func SpeedFactor(elapsed, limit time.Duration, floor float64) float64 {
	if limit <= 0 {
		return floor
	}
	factor := 1.0 - (1.0-floor)*(float64(elapsed)/float64(limit))
	return math.Min(1.0, math.Max(floor, factor))
}

// Score awards points for a submission. Absent or incorrect submissions earn
// zero; correct ones earn basePoints scaled by the speed factor, rounded to
// the nearest point.
func Score(q domain.Question, chosen []string, elapsed time.Duration, floor float64) int {
	if len(chosen) == 0 || !Correct(q, chosen) {
		return 0
	}
	return int(math.Round(float64(q.Points) * SpeedFactor(elapsed, q.TimeLimit(), floor)))
}

// Winner resolves a head-to-head question deterministically: higher award
// wins; on equal awards with both correct, the faster answer wins; any
// remaining tie falls back to participant id ordering so identical inputs
// always produce the same winner.
func Winner(a, b Outcome) Outcome {
	if a.Awarded != b.Awarded {
		if a.Awarded > b.Awarded {
			return a
		}
		return b
	}
	if a.Correct && b.Correct && a.Elapsed != b.Elapsed {
		if a.Elapsed < b.Elapsed {
			return a
		}
		return b
	}
	if a.ParticipantID < b.ParticipantID {
		return a
	}
	return b
}
