package beatmap

import "sort"

// BPM returns the map's dominant tempo: the uninherited point whose beat
// length is active for the longest stretch of the object timeline.
func (bm *Beatmap) BPM() float64 {
	points := bm.TimingPoints
	if len(points) == 0 {
		return 0
	}
	if len(points) == 1 {
		return points[0].BPM()
	}
	end := bm.LastObjectTime()
	durations := make(map[float64]float64, len(points))
	for i, point := range points {
		until := end
		if i+1 < len(points) {
			until = points[i+1].Time
		}
		if until > point.Time {
			durations[point.BeatLen] += until - point.Time
		}
	}
	best := points[0].BeatLen
	bestDuration := -1.0
	for beatLen, duration := range durations {
		if duration > bestDuration {
			best, bestDuration = beatLen, duration
		}
	}
	return TimingPoint{BeatLen: best}.BPM()
}

// MinMaxBPM scans every uninherited timing point for the tempo extremes.
func (bm *Beatmap) MinMaxBPM() (min, max float64) {
	for _, point := range bm.TimingPoints {
		bpm := point.BPM()
		if bpm <= 0 {
			continue
		}
		if min == 0 || bpm < min {
			min = bpm
		}
		if bpm > max {
			max = bpm
		}
	}
	return min, max
}

// TimingPointAt returns the uninherited timing point in effect at time t,
// falling back to the previous point when t sits between points and to the
// first point before any tempo is established.
func (bm *Beatmap) TimingPointAt(t float64) (TimingPoint, bool) {
	points := bm.TimingPoints
	if len(points) == 0 {
		return TimingPoint{}, false
	}
	i := sort.Search(len(points), func(i int) bool { return points[i].Time > t })
	if i == 0 {
		return points[0], true
	}
	return points[i-1], true
}

// EffectPointAt returns the effect point covering time t, or false when t
// precedes every effect point.
func (bm *Beatmap) EffectPointAt(t float64) (EffectPoint, bool) {
	points := bm.EffectPoints
	if len(points) == 0 {
		return EffectPoint{}, false
	}
	i := sort.Search(len(points), func(i int) bool { return points[i].Time > t })
	if i == 0 {
		return EffectPoint{}, false
	}
	return points[i-1], true
}

// KiaiAt reports whether the kiai flag is raised at time t.
func (bm *Beatmap) KiaiAt(t float64) bool {
	point, ok := bm.EffectPointAt(t)
	return ok && point.Kiai
}
