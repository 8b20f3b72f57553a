package performance

import (
	"math"

	"osupulse/bridge/internal/beatmap"
)

// ScoreState captures the judgement counts and combo the pp formulas need.
type ScoreState struct {
	MaxCombo int
	N300     int
	N100     int
	N50      int
	NGeki    int
	NKatu    int
	NMiss    int
}

// TotalHits returns the mode-specific number of judged objects.
func (s ScoreState) TotalHits(mode beatmap.Mode) int {
	switch mode {
	case beatmap.ModeTaiko:
		return s.N300 + s.N100 + s.NMiss
	case beatmap.ModeCatch:
		return s.N300 + s.N100 + s.N50 + s.NMiss + s.NKatu
	case beatmap.ModeMania:
		return s.N300 + s.N100 + s.N50 + s.NMiss + s.NKatu + s.NGeki
	default:
		return s.N300 + s.N100 + s.N50 + s.NMiss
	}
}

// Accuracy returns the mode-specific weighted hit ratio in [0, 1]. An empty
// state counts as perfect by convention.
func (s ScoreState) Accuracy(mode beatmap.Mode) float64 {
	var numerator, denominator float64
	switch mode {
	case beatmap.ModeTaiko:
		numerator = float64(2*s.N300 + s.N100)
		denominator = float64(2 * (s.N300 + s.N100 + s.NMiss))
	case beatmap.ModeCatch:
		numerator = float64(s.N300 + s.N100 + s.N50)
		denominator = float64(s.N300 + s.N100 + s.N50 + s.NKatu + s.NMiss)
	case beatmap.ModeMania:
		numerator = float64(6*s.NGeki + 6*s.N300 + 4*s.NKatu + 2*s.N100 + s.N50)
		denominator = float64(6 * (s.NGeki + s.N300 + s.NKatu + s.N100 + s.N50 + s.NMiss))
	default:
		numerator = float64(6*s.N300 + 2*s.N100 + s.N50)
		denominator = float64(6 * (s.N300 + s.N100 + s.N50 + s.NMiss))
	}
	if denominator == 0 {
		return 1.0
	}
	return numerator / denominator
}

// PerformanceAttributes is the outcome of one pp calculation.
type PerformanceAttributes struct {
	PP         float64
	Accuracy   float64
	Difficulty DifficultyAttributes
}

// Calculator computes performance points for a difficulty and score state.
// The zero state scores as a perfect pass, so a fresh calculator doubles as
// the SS computation.
type Calculator struct {
	attrs DifficultyAttributes
	mode  beatmap.Mode
	state ScoreState
	ideal bool
}

// NewCalculator seeds a one-shot calculator from precomputed difficulty
// attributes.
func NewCalculator(attrs DifficultyAttributes, mode beatmap.Mode) *Calculator {
	return &Calculator{attrs: attrs, mode: mode, ideal: true}
}

// State sets the score state the calculation judges.
func (c *Calculator) State(state ScoreState) *Calculator {
	c.state = state
	c.ideal = false
	return c
}

// Calculate evaluates the pp formula.
func (c *Calculator) Calculate() PerformanceAttributes {
	state := c.state
	if c.ideal {
		state = ScoreState{MaxCombo: c.attrs.MaxCombo, N300: c.attrs.ObjectCount}
	}

	accuracy := state.Accuracy(c.mode)
	stars := c.attrs.Stars

	base := math.Pow(5*math.Max(1, stars/starScale)-4, 3) / 100000.0

	totalHits := float64(state.TotalHits(c.mode))
	lengthBonus := 0.95 + 0.4*math.Min(1.0, totalHits/2000.0)
	if totalHits > 2000 {
		lengthBonus += math.Log10(totalHits/2000.0) * 0.5
	}

	comboFactor := 1.0
	if c.attrs.MaxCombo > 0 && state.MaxCombo > 0 {
		comboFactor = math.Pow(math.Min(1, float64(state.MaxCombo)/float64(c.attrs.MaxCombo)), 0.8)
	}

	missPenalty := math.Pow(0.97, float64(state.NMiss))
	accFactor := math.Pow(accuracy, 5.5)

	pp := base * lengthBonus * comboFactor * missPenalty * accFactor

	return PerformanceAttributes{
		PP:         pp,
		Accuracy:   accuracy,
		Difficulty: c.attrs,
	}
}
