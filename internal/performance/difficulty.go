// Package performance derives star ratings and performance points from a
// parsed beatmap, a mod bitfield and a score state. It exposes a one-shot
// calculator plus a gradual variant that advances object by object during
// live play.
package performance

import (
	"math"

	"osupulse/bridge/internal/beatmap"
	"osupulse/bridge/internal/mods"
)

const (
	// starScale converts accumulated strain into the familiar star range.
	starScale = 0.0675
	// minDelta floors the spacing between objects so stacked notes do not
	// produce unbounded strain.
	minDelta = 25.0
)

// DifficultyAttributes summarizes how hard a map (or map prefix) is.
type DifficultyAttributes struct {
	Stars       float64
	Aim         float64
	Speed       float64
	ObjectCount int
	MaxCombo    int
	ClockRate   float64
}

// strainSeries holds per-object cumulative strain sums, so any prefix
// difficulty is a single index away.
type strainSeries struct {
	aim      []float64
	speed    []float64
	mode     beatmap.Mode
	mods     mods.Mods
	ar, od   float64
	maxCombo int
}

// newStrainSeries walks the object list once, accumulating decayed aim and
// speed strain per object under the mod-adjusted clock rate.
func newStrainSeries(bm *beatmap.Beatmap, m mods.Mods) *strainSeries {
	objects := bm.HitObjects
	series := &strainSeries{
		aim:   make([]float64, len(objects)),
		speed: make([]float64, len(objects)),
		mode:  bm.Mode,
		mods:  m,
	}
	series.ar, series.od = adjustedRates(bm, m)
	series.maxCombo = maxCombo(bm)

	rate := m.ClockRate()
	var aimStrain, speedStrain float64
	var sumAim, sumSpeed float64

	for i, obj := range objects {
		if i > 0 {
			prev := objects[i-1]
			delta := (obj.Time - prev.Time) / rate
			if delta < minDelta {
				delta = minDelta
			}
			decay := math.Pow(0.15, delta/1000.0)

			distance := math.Hypot(obj.X-prev.X, obj.Y-prev.Y)
			aimStrain = aimStrain*decay + distance/delta
			speedStrain = speedStrain*decay + 75.0/delta
		}
		sumAim += aimStrain
		sumSpeed += speedStrain
		series.aim[i] = sumAim
		series.speed[i] = sumSpeed
	}
	return series
}

// attributesAt converts the cumulative strain of the first n objects into
// difficulty attributes. n is clamped to the object count.
func (s *strainSeries) attributesAt(n int) DifficultyAttributes {
	if n > len(s.aim) {
		n = len(s.aim)
	}
	attrs := DifficultyAttributes{
		ObjectCount: n,
		MaxCombo:    s.maxCombo,
		ClockRate:   s.mods.ClockRate(),
	}
	if n == 0 {
		return attrs
	}

	aim := math.Sqrt(s.aim[n-1]) * starScale
	speed := math.Sqrt(s.speed[n-1]) * starScale

	switch s.mode {
	case beatmap.ModeTaiko, beatmap.ModeMania:
		aim = 0
	case beatmap.ModeCatch:
		speed *= 0.5
	}

	stars := aim + speed + math.Abs(aim-speed)/2
	stars *= rateBonus(s.ar, s.od)
	if s.mods.Has(mods.Flashlight) {
		stars *= 1.05
	}

	attrs.Aim = aim
	attrs.Speed = speed
	attrs.Stars = stars
	return attrs
}

// CalculateDifficulty computes full-map difficulty attributes.
func CalculateDifficulty(bm *beatmap.Beatmap, m mods.Mods) DifficultyAttributes {
	series := newStrainSeries(bm, m)
	return series.attributesAt(len(bm.HitObjects))
}

// adjustedRates applies the difficulty-changing mods to AR and OD.
func adjustedRates(bm *beatmap.Beatmap, m mods.Mods) (ar, od float64) {
	ar, od = bm.AR, bm.OD
	switch {
	case m.Has(mods.HardRock):
		ar = math.Min(ar*1.4, 10)
		od = math.Min(od*1.4, 10)
	case m.Has(mods.Easy):
		ar *= 0.5
		od *= 0.5
	}
	return ar, od
}

// rateBonus rewards high approach and accuracy requirements slightly.
func rateBonus(ar, od float64) float64 {
	return 1 + (od-5)*0.02 + (ar-5)*0.01
}

// maxCombo estimates the maximum achievable combo: one per circle and
// spinner, sliders score their head, repeats and ticks.
func maxCombo(bm *beatmap.Beatmap) int {
	combo := 0
	for _, obj := range bm.HitObjects {
		if obj.IsSlider() {
			ticks := 0
			if obj.Length > 0 {
				ticks = int(obj.Length / 30.0)
			}
			combo += obj.Repeats + ticks
			continue
		}
		combo++
	}
	return combo
}
