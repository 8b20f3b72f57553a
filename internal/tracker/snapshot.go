package tracker

import (
	"math"
	"path/filepath"

	"osupulse/bridge/internal/beatmap"
	"osupulse/bridge/internal/mods"
	"osupulse/bridge/internal/performance"
)

// Paths collects the file names and computed absolute paths of the loaded map.
type Paths struct {
	BeatmapFolder      string `json:"beatmap_folder"`
	BeatmapFile        string `json:"beatmap_file"`
	BackgroundFile     string `json:"background_file"`
	AudioFile          string `json:"audio_file"`
	BeatmapFullPath    string `json:"beatmap_full_path"`
	BackgroundPathFull string `json:"background_path_full"`
	AudioPathFull      string `json:"audio_path_full"`
}

// BeatmapInfo is the menu-visible description of the selected map.
type BeatmapInfo struct {
	Artist     string  `json:"artist"`
	Title      string  `json:"title"`
	Creator    string  `json:"creator"`
	Difficulty string  `json:"difficulty"`
	MapID      int32   `json:"map_id"`
	MapsetID   int32   `json:"mapset_id"`
	MD5        string  `json:"md5"`
	AR         float32 `json:"ar"`
	CS         float32 `json:"cs"`
	HP         float32 `json:"hp"`
	OD         float32 `json:"od"`

	Status BeatmapStatus `json:"beatmap_status"`

	FirstObjTime float64 `json:"first_obj_time"`
	LastObjTime  float64 `json:"last_obj_time"`

	BPM    float64 `json:"bpm"`
	MinBPM float64 `json:"min_bpm"`
	MaxBPM float64 `json:"max_bpm"`

	Paths Paths `json:"paths"`
}

// Gameplay is the live scoring state while a play is running.
type Gameplay struct {
	Username        string    `json:"username"`
	Score           int32     `json:"score"`
	Hit300          int16     `json:"hit_300"`
	Hit100          int16     `json:"hit_100"`
	Hit50           int16     `json:"hit_50"`
	HitGeki         int16     `json:"hit_geki"`
	HitKatu         int16     `json:"hit_katu"`
	HitMiss         int16     `json:"hit_miss"`
	Combo           int16     `json:"combo"`
	MaxCombo        int16     `json:"max_combo"`
	Mode            int32     `json:"mode"`
	SliderBreaks    int16     `json:"slider_breaks"`
	Accuracy        float64   `json:"accuracy"`
	Grade           string    `json:"grade"`
	CurrentHP       float64   `json:"current_hp"`
	CurrentHPSmooth float64   `json:"current_hp_smooth"`
	UnstableRate    float64   `json:"unstable_rate"`
	PassedObjects   int       `json:"passed_objects"`
	Mods            mods.Mods `json:"mods"`

	HitErrors []int32 `json:"-"`
}

// GameMode returns the ruleset of the running play.
func (g *Gameplay) GameMode() beatmap.Mode {
	return beatmap.ModeFrom(int(g.Mode))
}

// CalculatePassedObjects is the mode-specific number of judged objects.
func (g *Gameplay) CalculatePassedObjects() int {
	return passedObjects(g.GameMode(), g.Hit300, g.Hit100, g.Hit50, g.HitGeki, g.HitKatu, g.HitMiss)
}

// UpdateAccuracy refreshes the weighted hit ratio.
func (g *Gameplay) UpdateAccuracy() {
	g.Accuracy = g.scoreState().Accuracy(g.GameMode())
}

// CalculateUnstableRate is ten times the standard deviation of the hit
// error sequence; an empty sequence yields zero.
func (g *Gameplay) CalculateUnstableRate() float64 {
	if len(g.HitErrors) == 0 {
		return 0
	}
	var sum float64
	for _, e := range g.HitErrors {
		sum += float64(e)
	}
	avg := sum / float64(len(g.HitErrors))
	var variance float64
	for _, e := range g.HitErrors {
		diff := float64(e) - avg
		variance += diff * diff
	}
	variance /= float64(len(g.HitErrors))
	return math.Sqrt(variance) * 10
}

// CurrentGrade applies the mode-specific grade thresholds, switching to the
// hidden variants when HD, FL or FI is active.
func (g *Gameplay) CurrentGrade() string {
	grade := baseGrade(g.GameMode(), g.Hit300, g.Hit100, g.Hit50, g.HitMiss, g.Accuracy)
	if g.Mods.HiddenGrade() {
		switch grade {
		case "SS":
			return "SSH"
		case "S":
			return "SH"
		}
	}
	return grade
}

func (g *Gameplay) scoreState() performance.ScoreState {
	return performance.ScoreState{
		MaxCombo: int(g.MaxCombo),
		N300:     int(g.Hit300),
		N100:     int(g.Hit100),
		N50:      int(g.Hit50),
		NGeki:    int(g.HitGeki),
		NKatu:    int(g.HitKatu),
		NMiss:    int(g.HitMiss),
	}
}

// ResultScreen mirrors the scoring shape of Gameplay at play completion.
type ResultScreen struct {
	Username string    `json:"username"`
	Mods     mods.Mods `json:"mods"`
	Mode     int32     `json:"mode"`
	Score    int32     `json:"score"`
	Hit300   int16     `json:"hit_300"`
	Hit100   int16     `json:"hit_100"`
	Hit50    int16     `json:"hit_50"`
	HitGeki  int16     `json:"hit_geki"`
	HitKatu  int16     `json:"hit_katu"`
	HitMiss  int16     `json:"hit_miss"`
	Accuracy float64   `json:"accuracy"`
}

// GameMode returns the ruleset the result was scored under.
func (r *ResultScreen) GameMode() beatmap.Mode {
	return beatmap.ModeFrom(int(r.Mode))
}

// UpdateAccuracy refreshes the weighted hit ratio.
func (r *ResultScreen) UpdateAccuracy() {
	r.Accuracy = r.scoreState().Accuracy(r.GameMode())
}

func (r *ResultScreen) scoreState() performance.ScoreState {
	return performance.ScoreState{
		N300:  int(r.Hit300),
		N100:  int(r.Hit100),
		N50:   int(r.Hit50),
		NGeki: int(r.HitGeki),
		NKatu: int(r.HitKatu),
		NMiss: int(r.HitMiss),
	}
}

// KeyOverlay is the four pressed/count pairs of the in-game key overlay.
type KeyOverlay struct {
	K1Pressed bool   `json:"k1_pressed"`
	K1Count   uint32 `json:"k1_count"`
	K2Pressed bool   `json:"k2_pressed"`
	K2Count   uint32 `json:"k2_count"`
	M1Pressed bool   `json:"m1_pressed"`
	M1Count   uint32 `json:"m1_count"`
	M2Pressed bool   `json:"m2_pressed"`
	M2Count   uint32 `json:"m2_count"`
}

// Snapshot is the publishable point-in-time view of the game. The reading
// loop is its only writer; the broadcast surface serializes it under a
// shared lock.
type Snapshot struct {
	State            GameState    `json:"state"`
	Playtime         int32        `json:"playtime"`
	MenuMode         int32        `json:"menu_mode"`
	MenuMods         mods.Mods    `json:"menu_mods"`
	Stars            float64      `json:"stars"`
	StarsMods        float64      `json:"stars_mods"`
	CurrentStars     float64      `json:"current_stars"`
	Gameplay         Gameplay     `json:"gameplay"`
	Beatmap          BeatmapInfo  `json:"beatmap"`
	ResultScreen     ResultScreen `json:"result_screen"`
	KeyOverlay       KeyOverlay   `json:"keyoverlay"`
	CurrentPP        float64      `json:"current_pp"`
	FCPP             float64      `json:"fc_pp"`
	SSPP             float64      `json:"ss_pp"`
	CurrentBPM       float64      `json:"current_bpm"`
	KiaiNow          bool         `json:"kiai_now"`
	ModsStr          []string     `json:"mods_str"`
	Plays            int32        `json:"plays"`
	PreciseAudioTime int32        `json:"precise_audio_time"`
	ChatEnabled      bool         `json:"chat_enabled"`
	Skin             string       `json:"skin"`
	SkinFolder       string       `json:"skin_folder"`

	// Loop-private state, never serialized.
	osuPath        string
	currentBeatmap *beatmap.Beatmap

	prevState         GameState
	prevMenuMode      int32
	prevMenuMods      mods.Mods
	prevPlaytime      int32
	prevCombo         int16
	prevHitMiss       int16
	prevPassedObjects int
	deltaSum          int
}

// innerState is the reading-loop-private derivation cache: the full-map
// perfect attributes used to seed one-shot computations and the gradual
// calculator advancing through a live play. Both are cleared whenever the
// loaded beatmap, the gameplay mods or the play episode changes.
type innerState struct {
	ssAttrs *performance.PerformanceAttributes
	gradual *performance.GradualCalculator
	// gradualMods records the mod bitfield the gradual calculator was
	// seeded with, so a mid-play mod change rebuilds it.
	gradualMods mods.Mods
}

func (s *innerState) reset() {
	s.ssAttrs = nil
	s.gradual = nil
	s.gradualMods = 0
}

// CurrentMods returns the effective mod bitfield: the gameplay mods while a
// play is running or finished, the menu mods otherwise.
func (s *Snapshot) CurrentMods() mods.Mods {
	switch s.State {
	case StatePlaying:
		return s.Gameplay.Mods
	case StateResultScreen:
		return s.ResultScreen.Mods
	default:
		return s.MenuMods
	}
}

// MenuGameMode returns the ruleset selected in the menu.
func (s *Snapshot) MenuGameMode() beatmap.Mode {
	return beatmap.ModeFrom(int(s.MenuMode))
}

// ResetGameplay wipes the live scoring state and the derivation cache at the
// boundaries of a play episode.
func (s *Snapshot) ResetGameplay(inner *innerState) {
	s.Gameplay = Gameplay{HitErrors: s.Gameplay.HitErrors[:0]}
	s.KeyOverlay = KeyOverlay{}

	s.prevCombo = 0
	s.prevHitMiss = 0
	s.prevPlaytime = 0
	s.prevPassedObjects = 0
	s.deltaSum = 0

	s.CurrentPP = 0
	s.FCPP = 0
	s.CurrentStars = 0
	s.CurrentBPM = 0
	s.KiaiNow = false

	inner.reset()
}

// UpdateReadableMods refreshes the decoded short-name sequence.
func (s *Snapshot) UpdateReadableMods() {
	s.ModsStr = s.CurrentMods().Names()
}

// UpdateStarsAndSSPP recomputes the no-mod stars, the modded stars and the
// perfect-play pp for the loaded map, caching the perfect attributes as the
// seed of later FC computations.
func (s *Snapshot) UpdateStarsAndSSPP(inner *innerState) {
	bm := s.currentBeatmap
	if bm == nil {
		return
	}
	s.Stars = performance.CalculateDifficulty(bm, 0).Stars

	modded := performance.CalculateDifficulty(bm, s.CurrentMods())
	s.StarsMods = modded.Stars

	attrs := performance.NewCalculator(modded, bm.Mode).Calculate()
	s.SSPP = attrs.PP
	inner.ssAttrs = &attrs
}

// UpdateCurrentPP refreshes the running pp figure. During play it advances
// the gradual calculator by exactly the number of freshly passed objects; on
// the result screen it evaluates the final score one-shot; other states keep
// their current value.
func (s *Snapshot) UpdateCurrentPP(inner *innerState) {
	bm := s.currentBeatmap
	if bm == nil {
		return
	}

	switch s.State {
	case StatePlaying:
		if inner.gradual != nil && inner.gradualMods != s.Gameplay.Mods {
			inner.gradual = nil
			inner.ssAttrs = nil
		}
		delta := s.Gameplay.PassedObjects - s.prevPassedObjects
		if inner.gradual == nil {
			// Nothing has been judged yet; the calculator is created on
			// the first populated read.
			if s.Gameplay.PassedObjects == 0 {
				return
			}
			inner.gradual = performance.NewGradual(bm, s.Gameplay.Mods)
			inner.gradualMods = s.Gameplay.Mods
			// The full-map attributes may predate the play's mods; reseed
			// them from the same mods as the gradual calculator.
			inner.ssAttrs = nil
			// A fresh attachment can find the play already in progress;
			// catch up in one call.
			if s.prevPassedObjects == 0 {
				delta = s.Gameplay.PassedObjects
			}
		}
		if delta < 0 {
			return
		}
		attrs := inner.gradual.ProcessMany(s.Gameplay.scoreState(), delta)
		s.deltaSum += delta
		if attrs != nil {
			s.CurrentPP = attrs.PP
			s.CurrentStars = attrs.Difficulty.Stars
		}
	case StateResultScreen:
		modded := performance.CalculateDifficulty(bm, s.ResultScreen.Mods)
		result := performance.NewCalculator(modded, bm.Mode).
			State(s.ResultScreen.scoreState()).
			Calculate()
		s.CurrentPP = result.PP
	}
}

// UpdateFCPP computes the pp the current hit counts would earn with misses
// forced to zero and the combo unbroken, seeded from the cached full-map
// attributes.
func (s *Snapshot) UpdateFCPP(inner *innerState) {
	bm := s.currentBeatmap
	if bm == nil {
		return
	}
	if inner.ssAttrs == nil {
		modded := performance.CalculateDifficulty(bm, s.CurrentMods())
		attrs := performance.NewCalculator(modded, bm.Mode).Calculate()
		inner.ssAttrs = &attrs
		s.SSPP = attrs.PP
	}
	state := s.Gameplay.scoreState()
	state.NMiss = 0
	state.MaxCombo = inner.ssAttrs.Difficulty.MaxCombo
	result := performance.NewCalculator(inner.ssAttrs.Difficulty, bm.Mode).
		State(state).
		Calculate()
	s.FCPP = result.PP
}

// UpdateMinMaxBPM rescans the loaded map's timing points for tempo extremes.
func (s *Snapshot) UpdateMinMaxBPM() {
	bm := s.currentBeatmap
	if bm == nil {
		return
	}
	s.Beatmap.MinBPM, s.Beatmap.MaxBPM = bm.MinMaxBPM()
}

// AdjustBPM refreshes the published tempo values from the loaded map and
// scales them for rate-changing mods; the unstable rate scales inversely.
func (s *Snapshot) AdjustBPM() {
	bm := s.currentBeatmap
	if bm == nil {
		return
	}

	s.Beatmap.BPM = bm.BPM()
	s.Beatmap.MinBPM, s.Beatmap.MaxBPM = bm.MinMaxBPM()

	if s.State != StatePlaying && s.State != StateSongSelect {
		return
	}
	rate := 1.0
	current := s.CurrentMods()
	switch {
	case current.Has(mods.DoubleTime):
		rate = 1.5
	case current.Has(mods.HalfTime):
		rate = 0.75
	}
	if rate == 1.0 {
		return
	}
	s.Beatmap.BPM *= rate
	s.Beatmap.MinBPM *= rate
	s.Beatmap.MaxBPM *= rate
	s.CurrentBPM *= rate
	if s.Gameplay.UnstableRate != 0 {
		s.Gameplay.UnstableRate /= rate
	}
}

// UpdateCurrentBPM looks up the tempo in effect at the current playtime.
func (s *Snapshot) UpdateCurrentBPM() {
	bm := s.currentBeatmap
	if bm == nil {
		return
	}
	if point, ok := bm.TimingPointAt(float64(s.Playtime)); ok {
		s.CurrentBPM = point.BPM()
	}
}

// UpdateKiai refreshes the kiai flag for the current playtime.
func (s *Snapshot) UpdateKiai() {
	bm := s.currentBeatmap
	if bm == nil {
		return
	}
	s.KiaiNow = bm.KiaiAt(float64(s.Playtime))
}

// UpdateFullPaths recomputes the absolute paths of the loaded map's files.
func (s *Snapshot) UpdateFullPaths() {
	songs := filepath.Join(s.osuPath, "Songs", s.Beatmap.Paths.BeatmapFolder)
	s.Beatmap.Paths.BeatmapFullPath = filepath.Join(songs, s.Beatmap.Paths.BeatmapFile)
	if s.Beatmap.Paths.BackgroundFile != "" {
		s.Beatmap.Paths.BackgroundPathFull = filepath.Join(songs, s.Beatmap.Paths.BackgroundFile)
	} else {
		s.Beatmap.Paths.BackgroundPathFull = ""
	}
	if s.Beatmap.Paths.AudioFile != "" {
		s.Beatmap.Paths.AudioPathFull = filepath.Join(songs, s.Beatmap.Paths.AudioFile)
	} else {
		s.Beatmap.Paths.AudioPathFull = ""
	}
}

// passedObjects sums the judgement counts relevant to the mode.
func passedObjects(mode beatmap.Mode, h300, h100, h50, geki, katu, miss int16) int {
	switch mode {
	case beatmap.ModeTaiko:
		return int(h300) + int(h100) + int(miss)
	case beatmap.ModeCatch:
		return int(h300) + int(h100) + int(h50) + int(miss) + int(katu)
	case beatmap.ModeMania:
		return int(h300) + int(h100) + int(h50) + int(miss) + int(katu) + int(geki)
	default:
		return int(h300) + int(h100) + int(h50) + int(miss)
	}
}

// baseGrade applies the mode's grade thresholds to the raw counts.
func baseGrade(mode beatmap.Mode, h300, h100, h50, miss int16, accuracy float64) string {
	switch mode {
	case beatmap.ModeCatch:
		switch {
		case accuracy == 1:
			return "SS"
		case accuracy > 0.98:
			return "S"
		case accuracy > 0.94:
			return "A"
		case accuracy > 0.90:
			return "B"
		case accuracy > 0.85:
			return "C"
		default:
			return "D"
		}
	case beatmap.ModeMania:
		switch {
		case accuracy == 1:
			return "SS"
		case accuracy > 0.95:
			return "S"
		case accuracy > 0.90:
			return "A"
		case accuracy > 0.80:
			return "B"
		case accuracy > 0.70:
			return "C"
		default:
			return "D"
		}
	}

	total := int(h300) + int(h100) + int(h50) + int(miss)
	if mode == beatmap.ModeTaiko {
		total = int(h300) + int(h100) + int(miss)
	}
	if total == 0 {
		return "SS"
	}
	ratio300 := float64(h300) / float64(total)
	ratio50 := float64(h50) / float64(total)

	switch {
	case ratio300 == 1:
		return "SS"
	case ratio300 > 0.9 && miss == 0 && (mode == beatmap.ModeTaiko || ratio50 <= 0.01):
		return "S"
	case (ratio300 > 0.8 && miss == 0) || ratio300 > 0.9:
		return "A"
	case (ratio300 > 0.7 && miss == 0) || ratio300 > 0.8:
		return "B"
	case ratio300 > 0.6:
		return "C"
	default:
		return "D"
	}
}
