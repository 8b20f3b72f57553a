package tracker

// The gosu-compatible schema: the historical external format older overlays
// consume on /ws. Field names and nesting are fixed by that ecosystem.

type gosuValues struct {
	Menu     gosuMenu     `json:"menu"`
	Gameplay gosuGameplay `json:"gameplay"`
}

type gosuMenu struct {
	State       GameState   `json:"state"`
	SkinFolder  string      `json:"SkinFolder"`
	GameMode    int32       `json:"gameMode"`
	ChatEnabled bool        `json:"isChatEnabled"`
	Beatmap     gosuBeatmap `json:"bm"`
	Mods        gosuMods    `json:"mods"`
	PP          gosuMenuPP  `json:"pp"`
}

type gosuMenuPP struct {
	SS float64 `json:"100"`
}

type gosuBeatmap struct {
	ID       int32               `json:"id"`
	Set      int32               `json:"set"`
	MD5      string              `json:"md5"`
	Time     gosuBeatmapTime     `json:"time"`
	Status   BeatmapStatus       `json:"rankedStatus"`
	Metadata gosuBeatmapMetadata `json:"metadata"`
	Stats    gosuBeatmapStats    `json:"stats"`
	Path     gosuBeatmapPath     `json:"path"`
}

type gosuBeatmapTime struct {
	FirstObj float64 `json:"first_obj"`
	Current  float64 `json:"current"`
	Full     float64 `json:"full"`
	MP3      float64 `json:"mp3"`
}

type gosuBeatmapMetadata struct {
	Artist     string `json:"artist"`
	Title      string `json:"title"`
	Mapper     string `json:"mapper"`
	Difficulty string `json:"difficulty"`
}

type gosuBeatmapStats struct {
	AR     float32         `json:"AR"`
	CS     float32         `json:"CS"`
	OD     float32         `json:"OD"`
	HP     float32         `json:"HP"`
	SR     float64         `json:"SR"`
	BPM    gosuBeatmapBPM  `json:"BPM"`
	FullSR float64         `json:"fullSR"`
}

type gosuBeatmapBPM struct {
	Min int32 `json:"min"`
	Max int32 `json:"max"`
}

type gosuBeatmapPath struct {
	Full   string `json:"full"`
	Folder string `json:"folder"`
	File   string `json:"file"`
	BG     string `json:"bg"`
	Audio  string `json:"audio"`
}

type gosuMods struct {
	Num uint32 `json:"num"`
	Str string `json:"str"`
}

type gosuGameplay struct {
	GameMode int32            `json:"gameMode"`
	Name     string           `json:"name"`
	Score    int32            `json:"score"`
	Accuracy float64          `json:"accuracy"`
	Combo    gosuCombo        `json:"combo"`
	HP       gosuHP           `json:"hp"`
	Hits     gosuGameplayHits `json:"hits"`
	PP       gosuGameplayPP   `json:"pp"`
}

type gosuCombo struct {
	Current int16 `json:"current"`
	Max     int16 `json:"max"`
}

type gosuHP struct {
	Normal float64 `json:"normal"`
	Smooth float64 `json:"smooth"`
}

type gosuGameplayHits struct {
	Hit300       int16     `json:"300"`
	Hit200       int16     `json:"200"`
	Hit100       int16     `json:"100"`
	Hit50        int16     `json:"50"`
	HitGeki      int16     `json:"geki"`
	HitKatu      int16     `json:"katu"`
	HitMiss      int16     `json:"0"`
	Grade        gosuGrade `json:"grade"`
	SliderBreaks int16     `json:"sliderBreaks"`
	UnstableRate float64   `json:"unstableRate"`
}

type gosuGrade struct {
	Current string `json:"current"`
	Max     string `json:"maxThisPlay"`
}

type gosuGameplayPP struct {
	Current float64 `json:"current"`
	FC      float64 `json:"fc"`
	Max     float64 `json:"max"`
}

// newGosuValues projects the native snapshot into the compat schema. Caller
// holds the snapshot lock.
func newGosuValues(v *Snapshot) gosuValues {
	grade := v.Gameplay.CurrentGrade()
	return gosuValues{
		Menu: gosuMenu{
			State:       v.State,
			SkinFolder:  v.SkinFolder,
			GameMode:    v.MenuMode,
			ChatEnabled: v.ChatEnabled,
			Beatmap: gosuBeatmap{
				ID:     v.Beatmap.MapID,
				Set:    v.Beatmap.MapsetID,
				MD5:    v.Beatmap.MD5,
				Status: v.Beatmap.Status,
				Metadata: gosuBeatmapMetadata{
					Artist:     v.Beatmap.Artist,
					Title:      v.Beatmap.Title,
					Mapper:     v.Beatmap.Creator,
					Difficulty: v.Beatmap.Difficulty,
				},
				Stats: gosuBeatmapStats{
					AR: v.Beatmap.AR,
					CS: v.Beatmap.CS,
					OD: v.Beatmap.OD,
					HP: v.Beatmap.HP,
					SR: v.CurrentStars,
					BPM: gosuBeatmapBPM{
						Min: int32(v.Beatmap.MinBPM),
						Max: int32(v.Beatmap.MaxBPM),
					},
					FullSR: v.StarsMods,
				},
				Time: gosuBeatmapTime{
					FirstObj: v.Beatmap.FirstObjTime,
					Current:  float64(v.Playtime),
					Full:     v.Beatmap.LastObjTime,
					MP3:      v.Beatmap.LastObjTime,
				},
				Path: gosuBeatmapPath{
					Full:   v.Beatmap.Paths.BackgroundPathFull,
					Folder: v.Beatmap.Paths.BeatmapFolder,
					File:   v.Beatmap.Paths.BeatmapFile,
					BG:     v.Beatmap.Paths.BackgroundFile,
					Audio:  v.Beatmap.Paths.AudioFile,
				},
			},
			Mods: gosuMods{
				Num: uint32(v.CurrentMods()),
				Str: v.CurrentMods().String(),
			},
			PP: gosuMenuPP{SS: v.SSPP},
		},
		Gameplay: gosuGameplay{
			GameMode: v.Gameplay.Mode,
			Name:     v.Gameplay.Username,
			Score:    v.Gameplay.Score,
			Accuracy: v.Gameplay.Accuracy,
			Combo: gosuCombo{
				Current: v.Gameplay.Combo,
				Max:     v.Gameplay.MaxCombo,
			},
			HP: gosuHP{
				Normal: v.Gameplay.CurrentHP,
				Smooth: v.Gameplay.CurrentHPSmooth,
			},
			Hits: gosuGameplayHits{
				Hit300:       v.Gameplay.Hit300,
				Hit200:       v.Gameplay.HitKatu,
				Hit100:       v.Gameplay.Hit100,
				Hit50:        v.Gameplay.Hit50,
				HitGeki:      v.Gameplay.HitGeki,
				HitKatu:      v.Gameplay.HitKatu,
				HitMiss:      v.Gameplay.HitMiss,
				Grade:        gosuGrade{Current: grade, Max: grade},
				SliderBreaks: v.Gameplay.SliderBreaks,
				UnstableRate: v.Gameplay.UnstableRate,
			},
			PP: gosuGameplayPP{
				Current: v.CurrentPP,
				FC:      v.FCPP,
				Max:     v.FCPP,
			},
		},
	}
}
