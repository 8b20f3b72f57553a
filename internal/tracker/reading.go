package tracker

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"

	"osupulse/bridge/internal/beatmap"
	"osupulse/bridge/internal/logging"
	"osupulse/bridge/internal/memory"
	"osupulse/bridge/internal/mods"
)

// Bounds for the runtime-managed strings read each tick.
const (
	limitArtist     = 100
	limitTitle      = 150
	limitCreator    = 30
	limitDifficulty = 30
	limitMD5        = 50
	limitUsername   = 30
	limitFileName   = 300
	limitAudioName  = 150
	limitSkinName   = 300
)

// Tracker owns the snapshot and performs one full pointer walk per tick.
// The reading loop is the exclusive writer; the broadcast surface reads
// through Serialize under the shared side of the lock.
type Tracker struct {
	mu     sync.RWMutex
	values Snapshot
	inner  innerState
	log    *logging.Logger
	ticks  uint64
}

// New constructs a tracker.
func New(log *logging.Logger) *Tracker {
	if log == nil {
		log = logging.L()
	}
	return &Tracker{log: log}
}

// SetOsuPath records the game's install directory, the root for Songs and
// Skin lookups.
func (t *Tracker) SetOsuPath(path string) {
	t.mu.Lock()
	t.values.osuPath = path
	t.mu.Unlock()
}

// OsuPath returns the configured install directory.
func (t *Tracker) OsuPath() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.values.osuPath
}

// Ticks reports how many reading-loop iterations have completed.
func (t *Tracker) Ticks() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ticks
}

// CurrentState returns the last decoded game state.
func (t *Tracker) CurrentState() GameState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.values.State
}

// Playtime returns the last read track position in milliseconds.
func (t *Tracker) Playtime() int32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.values.Playtime
}

// BackgroundPath returns the absolute path of the loaded map's background.
func (t *Tracker) BackgroundPath() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.values.Beatmap.Paths.BackgroundPathFull
}

// Serialize renders the snapshot once per schema under a single shared lock,
// giving every subscriber a consistent point-in-time view.
func (t *Tracker) Serialize() (native, gosu []byte, err error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	native, err = json.Marshal(&t.values)
	if err != nil {
		return nil, nil, err
	}
	gosu, err = json.Marshal(newGosuValues(&t.values))
	if err != nil {
		return nil, nil, err
	}
	return native, gosu, nil
}

// Tick performs the full per-tick pointer walk under the exclusive lock.
// A returned error means the tick was abandoned; transient errors leave the
// attachment alive and the next tick retries.
func (t *Tracker) Tick(r memory.Reader, anchors *Anchors) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	err := t.tick(r, anchors)
	if err == nil {
		t.ticks++
	}
	return err
}

func (t *Tracker) tick(r memory.Reader, anchors *Anchors) error {
	v := &t.values

	menuModsPtr, err := memory.ReadPtr(r, anchors.MenuMods+0x9)
	if err != nil {
		return err
	}
	menuMods, err := memory.ReadU32(r, menuModsPtr)
	if err != nil {
		return err
	}
	v.MenuMods = mods.Mods(menuMods)

	playtimePtr, err := memory.ReadPtr(r, anchors.Playtime+0x5)
	if err != nil {
		return err
	}
	if v.Playtime, err = memory.ReadI32(r, playtimePtr); err != nil {
		return err
	}

	beatmapPtr, err := memory.ReadPtr(r, anchors.Base-0xC)
	if err != nil {
		return err
	}
	beatmapAddr, err := memory.ReadPtr(r, beatmapPtr)
	if err != nil {
		return err
	}

	statusPtr, err := memory.ReadPtr(r, anchors.Status-0x4)
	if err != nil {
		return err
	}
	rawState, err := memory.ReadU32(r, statusPtr)
	if err != nil {
		return err
	}
	v.State = GameStateFrom(rawState)

	// Leaving the play episode resets gameplay and re-derives the menu view.
	if v.prevState == StatePlaying && v.State != StatePlaying {
		v.ResetGameplay(&t.inner)
		v.UpdateStarsAndSSPP(&t.inner)
	}

	// Without a beatmap nothing further can be read safely.
	if beatmapAddr == 0 {
		return nil
	}

	if v.State != StateMultiplayerLobby {
		if err := t.readBeatmapMeta(r, anchors, beatmapAddr); err != nil {
			return err
		}
	}

	rawStatus, err := memory.ReadI16(r, beatmapAddr+0x12C)
	if err != nil {
		return err
	}
	v.Beatmap.Status = BeatmapStatusFrom(rawStatus)

	chat, err := memory.ReadI8(r, anchors.ChatChecker-0x20)
	if err != nil {
		return err
	}
	v.ChatEnabled = chat != 0

	if err := t.readSkin(r, anchors); err != nil {
		return err
	}

	newMap := false
	if v.State != StatePreSongSelect &&
		v.State != StateMultiplayerLobby &&
		v.State != StateMultiplayerResultScreen {
		if newMap, err = t.readBeatmapFiles(r, anchors, beatmapAddr); err != nil {
			return err
		}
	}

	if newMap {
		// The cached calculators belong to the previous map.
		t.inner.reset()
		if bm := v.currentBeatmap; bm != nil && bm.Mode != v.MenuGameMode() {
			v.currentBeatmap = bm.Convert(v.MenuGameMode())
		}
		v.UpdateStarsAndSSPP(&t.inner)
		v.UpdateCurrentPP(&t.inner)
	}

	rulesetPtr, err := memory.ReadPtr(r, anchors.Rulesets-0xB)
	if err != nil {
		return err
	}
	rulesetAddr, err := memory.ReadPtr(r, rulesetPtr+0x4)
	if err != nil {
		return err
	}

	audioTimePtr, err := memory.ReadPtr(r, anchors.AudioTimeBase+0x9)
	if err != nil {
		return err
	}
	if v.PreciseAudioTime, err = memory.ReadI32(r, audioTimePtr); err != nil {
		return err
	}

	// Every gameplay and result value hangs off the ruleset.
	if rulesetAddr == 0 {
		return nil
	}

	if v.State == StateResultScreen {
		if err := t.readResultScreen(r, rulesetAddr); err != nil {
			return err
		}
	}

	if v.State == StatePlaying {
		if err := t.processGameplay(r, rulesetAddr); err != nil {
			// The gameplay objects lag the scene switch by a few frames;
			// retry next tick.
			t.log.Debug("skipped gameplay read", logging.Error(err))
		}
	}

	if v.prevState != StateResultScreen && v.State == StateResultScreen {
		v.UpdateCurrentPP(&t.inner)
		v.UpdateStarsAndSSPP(&t.inner)
	}

	if v.prevState != StateSongSelect && v.State == StateSongSelect {
		if v.prevState == StateResultScreen {
			v.CurrentPP = 0
		}
		v.UpdateCurrentPP(&t.inner)
		v.UpdateStarsAndSSPP(&t.inner)
		v.UpdateReadableMods()
		v.AdjustBPM()
	}

	if v.prevState != StatePlaying && v.State == StatePlaying {
		v.ResetGameplay(&t.inner)
		v.UpdateStarsAndSSPP(&t.inner)
		v.AdjustBPM()
	}

	if v.State == StateSongSelect && v.prevMenuMods != v.MenuMods {
		v.UpdateStarsAndSSPP(&t.inner)
		v.UpdateCurrentPP(&t.inner)
		v.UpdateReadableMods()
		v.AdjustBPM()
	}

	v.prevMenuMode = v.MenuMode
	v.prevMenuMods = v.MenuMods
	v.prevState = v.State
	return nil
}

// readBeatmapMeta pulls the difficulty block, the play counter and the
// metadata strings of the selected map.
func (t *Tracker) readBeatmapMeta(r memory.Reader, anchors *Anchors, beatmapAddr int64) error {
	v := &t.values

	var stats [16]byte
	if err := r.Read(beatmapAddr+0x2C, stats[:]); err != nil {
		return err
	}
	v.Beatmap.AR = math.Float32frombits(binary.LittleEndian.Uint32(stats[0:]))
	v.Beatmap.CS = math.Float32frombits(binary.LittleEndian.Uint32(stats[4:]))
	v.Beatmap.HP = math.Float32frombits(binary.LittleEndian.Uint32(stats[8:]))
	v.Beatmap.OD = math.Float32frombits(binary.LittleEndian.Uint32(stats[12:]))

	playsBase, err := memory.ReadPtr(r, anchors.Base-0x33)
	if err != nil {
		return err
	}
	if v.Plays, err = memory.ReadI32(r, playsBase+0xC); err != nil {
		return err
	}

	if v.Beatmap.Artist, err = readStringField(r, beatmapAddr+0x18, limitArtist); err != nil {
		return err
	}
	if v.Beatmap.Title, err = readStringField(r, beatmapAddr+0x24, limitTitle); err != nil {
		return err
	}
	if v.Beatmap.Creator, err = readStringField(r, beatmapAddr+0x7C, limitCreator); err != nil {
		return err
	}
	if v.Beatmap.Difficulty, err = readStringField(r, beatmapAddr+0xAC, limitDifficulty); err != nil {
		return err
	}
	if v.Beatmap.MapID, err = memory.ReadI32(r, beatmapAddr+0xC8); err != nil {
		return err
	}
	if v.Beatmap.MapsetID, err = memory.ReadI32(r, beatmapAddr+0xCC); err != nil {
		return err
	}
	return nil
}

// readSkin follows the skin chain and publishes the active skin name and
// folder.
func (t *Tracker) readSkin(r memory.Reader, anchors *Anchors) error {
	v := &t.values

	skinPtr, err := memory.ReadPtr(r, anchors.Skin+0x7)
	if err != nil {
		return err
	}
	skinBase, err := memory.ReadPtr(r, skinPtr)
	if err != nil {
		return err
	}
	name, err := readStringField(r, skinBase+0x44, limitSkinName)
	if err != nil {
		return err
	}
	v.Skin = name
	v.SkinFolder = filepath.Join(v.osuPath, "Skin", name)
	return nil
}

// readBeatmapFiles reads the file names of the selected map and reloads the
// beatmap from disk when the selection (or menu mode) changed. It reports
// whether a new map was parsed.
func (t *Tracker) readBeatmapFiles(r memory.Reader, anchors *Anchors, beatmapAddr int64) (bool, error) {
	v := &t.values

	menuModeAddr, err := memory.ReadPtr(r, anchors.Base-0x33)
	if err != nil {
		return false, err
	}
	beatmapFile, err := readStringField(r, beatmapAddr+0x90, limitFileName)
	if err != nil {
		return false, err
	}
	beatmapFolder, err := readStringField(r, beatmapAddr+0x78, limitFileName)
	if err != nil {
		return false, err
	}
	audioFile, err := readStringField(r, beatmapAddr+0x64, limitAudioName)
	if err != nil {
		return false, err
	}
	if v.MenuMode, err = memory.ReadI32(r, menuModeAddr); err != nil {
		return false, err
	}
	if v.Beatmap.MD5, err = readStringField(r, beatmapAddr+0x6C, limitMD5); err != nil {
		return false, err
	}

	changed := beatmapFolder != v.Beatmap.Paths.BeatmapFolder ||
		beatmapFile != v.Beatmap.Paths.BeatmapFile ||
		v.prevMenuMode != v.MenuMode
	if !changed {
		return false, nil
	}
	fullPath := filepath.Join(v.osuPath, "Songs", beatmapFolder, beatmapFile)
	if _, err := os.Stat(fullPath); err != nil {
		return false, nil
	}

	newMap := false
	bm, parseErr := beatmap.ParseFile(fullPath)
	if parseErr != nil {
		t.log.Warn("failed to parse beatmap",
			logging.String("path", fullPath), logging.Error(parseErr))
		v.currentBeatmap = nil
	} else {
		newMap = true
		v.currentBeatmap = bm
		v.Beatmap.FirstObjTime = bm.FirstObjectTime()
		v.Beatmap.LastObjTime = bm.LastObjectTime()
		v.Beatmap.BPM = bm.BPM()
		v.Beatmap.Paths.BackgroundFile = bm.BackgroundFile
	}

	v.Beatmap.Paths.BeatmapFolder = beatmapFolder
	v.Beatmap.Paths.BeatmapFile = beatmapFile
	v.Beatmap.Paths.AudioFile = audioFile

	v.UpdateMinMaxBPM()
	v.UpdateFullPaths()
	v.AdjustBPM()
	return newMap, nil
}

// readResultScreen decodes the completed play hanging off the ruleset.
func (t *Tracker) readResultScreen(r memory.Reader, rulesetAddr int64) error {
	rs := &t.values.ResultScreen

	resultBase, err := memory.ReadPtr(r, rulesetAddr+0x38)
	if err != nil {
		return err
	}
	if rs.Username, err = readStringField(r, resultBase+0x28, limitUsername); err != nil {
		return err
	}

	modsXorBase, err := memory.ReadPtr(r, resultBase+0x1C)
	if err != nil {
		return err
	}
	xor1, err := memory.ReadI32(r, modsXorBase+0xC)
	if err != nil {
		return err
	}
	xor2, err := memory.ReadI32(r, modsXorBase+0x8)
	if err != nil {
		return err
	}
	rs.Mods = mods.Mods(uint32(xor1) ^ uint32(xor2))

	if rs.Mode, err = memory.ReadI32(r, resultBase+0x64); err != nil {
		return err
	}
	if rs.Score, err = memory.ReadI32(r, resultBase+0x78); err != nil {
		return err
	}
	if rs.Hit300, err = memory.ReadI16(r, resultBase+0x8A); err != nil {
		return err
	}
	if rs.Hit100, err = memory.ReadI16(r, resultBase+0x88); err != nil {
		return err
	}
	if rs.Hit50, err = memory.ReadI16(r, resultBase+0x8C); err != nil {
		return err
	}
	if rs.HitGeki, err = memory.ReadI16(r, resultBase+0x8E); err != nil {
		return err
	}
	if rs.HitKatu, err = memory.ReadI16(r, resultBase+0x90); err != nil {
		return err
	}
	rs.UpdateAccuracy()
	return nil
}

// processGameplay is the per-tick walk of the live play objects.
func (t *Tracker) processGameplay(r memory.Reader, rulesetAddr int64) error {
	v := &t.values

	// Playtime running backwards means a restart or a seek: the episode
	// starts over.
	if v.prevPlaytime > v.Playtime {
		v.ResetGameplay(&t.inner)
	}
	v.prevPlaytime = v.Playtime

	if rulesetAddr == 0 {
		return nil
	}
	gameplayBase, err := memory.ReadPtr(r, rulesetAddr+0x68)
	if err != nil {
		return err
	}
	if gameplayBase == 0 {
		return nil
	}
	scoreBase, err := memory.ReadPtr(r, gameplayBase+0x38)
	if err != nil {
		return err
	}
	hpBase, err := memory.ReadPtr(r, gameplayBase+0x40)
	if err != nil {
		return err
	}

	// The HP pair is garbage for the first moments of a play.
	if v.Playtime > 150 {
		if v.Gameplay.CurrentHP, err = memory.ReadF64(r, hpBase+0x1C); err != nil {
			return err
		}
		if v.Gameplay.CurrentHPSmooth, err = memory.ReadF64(r, hpBase+0x14); err != nil {
			return err
		}
	}

	hitErrorsBase, err := memory.ReadPtr(r, scoreBase+0x38)
	if err != nil {
		return err
	}
	if err := memory.ReadI32Array(r, hitErrorsBase, &v.Gameplay.HitErrors); err != nil {
		return err
	}
	v.Gameplay.UnstableRate = v.Gameplay.CalculateUnstableRate()

	if v.Gameplay.Mode, err = memory.ReadI32(r, scoreBase+0x64); err != nil {
		return err
	}
	if v.Gameplay.Hit300, err = memory.ReadI16(r, scoreBase+0x8A); err != nil {
		return err
	}
	if v.Gameplay.Hit100, err = memory.ReadI16(r, scoreBase+0x88); err != nil {
		return err
	}
	if v.Gameplay.Hit50, err = memory.ReadI16(r, scoreBase+0x8C); err != nil {
		return err
	}
	if v.Gameplay.Username, err = readStringField(r, scoreBase+0x28, limitUsername); err != nil {
		return err
	}
	if v.Gameplay.HitGeki, err = memory.ReadI16(r, scoreBase+0x8E); err != nil {
		return err
	}
	if v.Gameplay.HitKatu, err = memory.ReadI16(r, scoreBase+0x90); err != nil {
		return err
	}
	if v.Gameplay.HitMiss, err = memory.ReadI16(r, scoreBase+0x92); err != nil {
		return err
	}

	v.Gameplay.PassedObjects = v.Gameplay.CalculatePassedObjects()
	v.Gameplay.UpdateAccuracy()

	if v.Gameplay.Score, err = memory.ReadI32(r, scoreBase+0x78); err != nil {
		return err
	}
	if v.Gameplay.Combo, err = memory.ReadI16(r, scoreBase+0x94); err != nil {
		return err
	}
	if v.Gameplay.MaxCombo, err = memory.ReadI16(r, scoreBase+0x68); err != nil {
		return err
	}

	// A combo drop without a new miss is a slider break.
	if v.Gameplay.Combo < v.prevCombo && v.Gameplay.HitMiss == v.prevHitMiss {
		v.Gameplay.SliderBreaks++
	}
	v.prevHitMiss = v.Gameplay.HitMiss

	modsXorBase, err := memory.ReadPtr(r, scoreBase+0x1C)
	if err != nil {
		return err
	}
	modsRaw, err := memory.ReadU64(r, modsXorBase+0x8)
	if err != nil {
		return err
	}

	if err := t.readKeyOverlay(r, rulesetAddr); err != nil {
		return err
	}

	v.Gameplay.Mods = mods.Mods(uint32(modsRaw&0xFFFFFFFF) ^ uint32(modsRaw>>32))
	v.UpdateReadableMods()

	v.UpdateCurrentPP(&t.inner)
	v.UpdateFCPP(&t.inner)

	v.prevPassedObjects = v.Gameplay.PassedObjects
	v.prevCombo = v.Gameplay.Combo

	v.Gameplay.Grade = v.Gameplay.CurrentGrade()
	v.UpdateCurrentBPM()
	v.UpdateKiai()
	return nil
}

// readKeyOverlay decodes the four key counters. The overlay object is absent
// while the map is loading or when the overlay is disabled in settings.
func (t *Tracker) readKeyOverlay(r memory.Reader, rulesetAddr int64) error {
	ko := &t.values.KeyOverlay

	overlayPtr, err := memory.ReadPtr(r, rulesetAddr+0xB0)
	if err != nil {
		return err
	}
	if overlayPtr == 0 {
		return nil
	}
	listPtr, err := memory.ReadPtr(r, overlayPtr+0x10)
	if err != nil {
		return err
	}
	base, err := memory.ReadPtr(r, listPtr+0x4)
	if err != nil {
		return err
	}

	for _, key := range []struct {
		offset  int64
		pressed *bool
		count   *uint32
	}{
		{0x8, &ko.K1Pressed, &ko.K1Count},
		{0xC, &ko.K2Pressed, &ko.K2Count},
		{0x10, &ko.M1Pressed, &ko.M1Count},
		{0x14, &ko.M2Pressed, &ko.M2Count},
	} {
		obj, err := memory.ReadPtr(r, base+key.offset)
		if err != nil {
			return err
		}
		pressed, err := memory.ReadI8(r, obj+0x1C)
		if err != nil {
			return err
		}
		count, err := memory.ReadI32(r, obj+0x14)
		if err != nil {
			return err
		}
		*key.pressed = pressed != 0
		*key.count = uint32(count)
	}
	return nil
}

// readStringField reads a pointer-addressed string; decoding failures yield
// an empty field instead of aborting the tick.
func readStringField(r memory.Reader, addr int64, limit uint32) (string, error) {
	s, err := memory.ReadStringPtr(r, addr, limit)
	if err != nil {
		if errors.Is(err, memory.ErrConversion) {
			return "", nil
		}
		return "", err
	}
	return s, nil
}
