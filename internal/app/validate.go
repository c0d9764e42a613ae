package app

import (
	"fmt"

	"quiz-arena/internal/domain"
)

// Numeric bounds from the quiz-authoring contract, re-checked defensively.
const (
	minTimeLimitSec = 5
	maxTimeLimitSec = 300
	minPoints       = 1
	maxPoints       = 10000
)

// applyConfigDefaults fills zero-valued fields from def. PresentDelay is
// special: zero means "no presenting pause" and is preserved; a negative
// value requests the default.
func applyConfigDefaults(cfg, def domain.SessionConfig) domain.SessionConfig {
	if cfg.SpeedFloor == 0 {
		cfg.SpeedFloor = def.SpeedFloor
	}
	if cfg.EliminationFraction == 0 {
		cfg.EliminationFraction = def.EliminationFraction
	}
	if cfg.QuestionsPerMatch == 0 {
		cfg.QuestionsPerMatch = def.QuestionsPerMatch
	}
	if cfg.Retention == 0 {
		cfg.Retention = def.Retention
	}
	if cfg.PresentDelay < 0 {
		cfg.PresentDelay = def.PresentDelay
	}
	return cfg
}

func validateSession(quiz domain.Quiz, mode domain.Mode, cfg domain.SessionConfig) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: unknown mode %q", domain.ErrInvalidSessionConfig, mode)
	}
	if len(quiz.Questions) == 0 {
		return fmt.Errorf("%w: quiz has no questions", domain.ErrInvalidSessionConfig)
	}
	if cfg.SpeedFloor <= 0 || cfg.SpeedFloor > 1 {
		return fmt.Errorf("%w: speed floor %v outside (0, 1]", domain.ErrInvalidSessionConfig, cfg.SpeedFloor)
	}
	if cfg.EliminationFraction <= 0 || cfg.EliminationFraction >= 1 {
		return fmt.Errorf("%w: elimination fraction %v outside (0, 1)", domain.ErrInvalidSessionConfig, cfg.EliminationFraction)
	}
	if cfg.QuestionsPerMatch < 1 {
		return fmt.Errorf("%w: questions per match %d below 1", domain.ErrInvalidSessionConfig, cfg.QuestionsPerMatch)
	}

	for i, q := range quiz.Questions {
		if q.TimeLimitSec < minTimeLimitSec || q.TimeLimitSec > maxTimeLimitSec {
			return fmt.Errorf("%w: question %d time limit %ds outside %d-%ds",
				domain.ErrInvalidSessionConfig, i, q.TimeLimitSec, minTimeLimitSec, maxTimeLimitSec)
		}
		if q.Points < minPoints || q.Points > maxPoints {
			return fmt.Errorf("%w: question %d points %d outside %d-%d",
				domain.ErrInvalidSessionConfig, i, q.Points, minPoints, maxPoints)
		}
		if len(q.Answers) < 2 {
			return fmt.Errorf("%w: question %d needs at least two answers", domain.ErrInvalidSessionConfig, i)
		}
		correct := len(q.CorrectAnswerIDs())
		if correct == 0 {
			return fmt.Errorf("%w: question %d has no correct answer", domain.ErrInvalidSessionConfig, i)
		}
		if q.Type == domain.QuestionSingle && correct != 1 {
			return fmt.Errorf("%w: question %d marked single with %d correct answers",
				domain.ErrInvalidSessionConfig, i, correct)
		}
		if q.Type != domain.QuestionSingle && q.Type != domain.QuestionMultiple {
			return fmt.Errorf("%w: question %d has unknown type %q", domain.ErrInvalidSessionConfig, i, q.Type)
		}
	}
	return nil
}
