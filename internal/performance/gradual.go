package performance

import (
	"osupulse/bridge/internal/beatmap"
	"osupulse/bridge/internal/mods"
)

// GradualCalculator advances through a map object by object during live
// play. It owns its strain series, so it is destroyed and rebuilt together
// whenever the beatmap, the mods or the play episode changes.
type GradualCalculator struct {
	series    *strainSeries
	mode      beatmap.Mode
	processed int
}

// NewGradual seeds a gradual calculator from the map and the gameplay mods.
func NewGradual(bm *beatmap.Beatmap, m mods.Mods) *GradualCalculator {
	return &GradualCalculator{
		series: newStrainSeries(bm, m),
		mode:   bm.Mode,
	}
}

// Processed reports how many objects have been consumed so far.
func (g *GradualCalculator) Processed() int { return g.processed }

// Remaining reports how many objects are left.
func (g *GradualCalculator) Remaining() int { return len(g.series.aim) - g.processed }

// ProcessMany advances the calculator by n objects and evaluates pp for the
// resulting prefix under the supplied score state. A non-positive n
// re-evaluates the current prefix without advancing. Once every object has
// been consumed, further advances return nil.
func (g *GradualCalculator) ProcessMany(state ScoreState, n int) *PerformanceAttributes {
	total := len(g.series.aim)
	if n > 0 {
		if g.processed >= total {
			return nil
		}
		g.processed += n
		if g.processed > total {
			g.processed = total
		}
	}
	if g.processed == 0 {
		return nil
	}

	attrs := g.series.attributesAt(g.processed)
	result := NewCalculator(attrs, g.mode).State(state).Calculate()
	return &result
}
