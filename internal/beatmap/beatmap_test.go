package beatmap

import (
	"strings"
	"testing"
)

const sampleMap = `osu file format v14

[General]
AudioFilename: audio.mp3
AudioLeadIn: 0
Mode: 0

[Metadata]
Title:Test Song
Artist:Test Artist
Creator:Test Mapper
Version:Insane

[Difficulty]
HPDrainRate:5.5
CircleSize:4
OverallDifficulty:8
ApproachRate:9
SliderMultiplier:1.8
SliderTickRate:1

[Events]
//Background and Video events
0,0,"background.jpg",0,0

[TimingPoints]
1000,500,4,2,0,60,1,0
5000,-100,4,2,0,60,0,1
20000,300,4,2,0,60,1,0

[HitObjects]
256,192,1000,1,0,0:0:0:0:
320,192,1500,1,0,0:0:0:0:
100,100,2000,2,0,L|200:100,2,90
256,192,21000,12,0,24000,0:0:0:0:
`

func parseSample(t *testing.T) *Beatmap {
	t.Helper()
	bm, err := Parse(strings.NewReader(sampleMap))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	return bm
}

func TestParseSections(t *testing.T) {
	bm := parseSample(t)

	if bm.Title != "Test Song" || bm.Artist != "Test Artist" || bm.Creator != "Test Mapper" || bm.Version != "Insane" {
		t.Fatalf("metadata mismatch: %+v", bm)
	}
	if bm.AudioFile != "audio.mp3" {
		t.Fatalf("audio file = %q", bm.AudioFile)
	}
	if bm.BackgroundFile != "background.jpg" {
		t.Fatalf("background file = %q", bm.BackgroundFile)
	}
	if bm.Mode != ModeOsu {
		t.Fatalf("mode = %v", bm.Mode)
	}
	if bm.HP != 5.5 || bm.CS != 4 || bm.OD != 8 || bm.AR != 9 {
		t.Fatalf("difficulty mismatch: HP=%v CS=%v OD=%v AR=%v", bm.HP, bm.CS, bm.OD, bm.AR)
	}
	if bm.SliderMultiplier != 1.8 {
		t.Fatalf("slider multiplier = %v", bm.SliderMultiplier)
	}
}

func TestParseObjects(t *testing.T) {
	bm := parseSample(t)

	if len(bm.HitObjects) != 4 {
		t.Fatalf("expected 4 hit objects, got %d", len(bm.HitObjects))
	}
	if bm.FirstObjectTime() != 1000 {
		t.Fatalf("first object time = %v", bm.FirstObjectTime())
	}
	if bm.LastObjectTime() != 21000 {
		t.Fatalf("last object time = %v", bm.LastObjectTime())
	}
	slider := bm.HitObjects[2]
	if !slider.IsSlider() || slider.Repeats != 2 || slider.Length != 90 {
		t.Fatalf("slider parse mismatch: %+v", slider)
	}
	if !bm.HitObjects[3].IsSpinner() {
		t.Fatalf("expected spinner, got %+v", bm.HitObjects[3])
	}
}

func TestParseTimingPoints(t *testing.T) {
	bm := parseSample(t)

	// The inherited point (-100) contributes an effect point but no tempo.
	if len(bm.TimingPoints) != 2 {
		t.Fatalf("expected 2 uninherited points, got %d", len(bm.TimingPoints))
	}
	if got := bm.TimingPoints[0].BPM(); got != 120 {
		t.Fatalf("first point BPM = %v, want 120", got)
	}
	if got := bm.TimingPoints[1].BPM(); got != 200 {
		t.Fatalf("second point BPM = %v, want 200", got)
	}
	if len(bm.EffectPoints) != 3 {
		t.Fatalf("expected 3 effect points, got %d", len(bm.EffectPoints))
	}
}

func TestParseRejectsEmptyMap(t *testing.T) {
	_, err := Parse(strings.NewReader("osu file format v14\n[HitObjects]\n"))
	if err == nil {
		t.Fatal("expected error for a map with no hit objects")
	}
}

func TestARFallsBackToOD(t *testing.T) {
	raw := `[Difficulty]
OverallDifficulty:6

[HitObjects]
256,192,1000,1,0,0:0:0:0:
`
	bm, err := Parse(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if bm.AR != 6 {
		t.Fatalf("AR should inherit OD, got %v", bm.AR)
	}
}

func TestBPMQueries(t *testing.T) {
	bm := parseSample(t)

	min, max := bm.MinMaxBPM()
	if min != 120 || max != 200 {
		t.Fatalf("MinMaxBPM = (%v, %v), want (120, 200)", min, max)
	}
	// 120 BPM covers 1000..20000, 200 BPM only 20000..21000.
	if got := bm.BPM(); got != 120 {
		t.Fatalf("BPM = %v, want 120", got)
	}
}

func TestTimingPointAt(t *testing.T) {
	bm := parseSample(t)

	point, ok := bm.TimingPointAt(10000)
	if !ok || point.BPM() != 120 {
		t.Fatalf("TimingPointAt(10000) = (%+v, %v)", point, ok)
	}
	point, ok = bm.TimingPointAt(20500)
	if !ok || point.BPM() != 200 {
		t.Fatalf("TimingPointAt(20500) = (%+v, %v)", point, ok)
	}
	// Before any point, the first tempo applies.
	point, ok = bm.TimingPointAt(0)
	if !ok || point.BPM() != 120 {
		t.Fatalf("TimingPointAt(0) = (%+v, %v)", point, ok)
	}
}

func TestKiaiAt(t *testing.T) {
	bm := parseSample(t)

	if bm.KiaiAt(2000) {
		t.Fatal("kiai should be off before the kiai section")
	}
	if !bm.KiaiAt(6000) {
		t.Fatal("kiai should be on inside the kiai section")
	}
	if bm.KiaiAt(25000) {
		t.Fatal("kiai should be off after the section ends")
	}
}

func TestConvert(t *testing.T) {
	bm := parseSample(t)

	converted := bm.Convert(ModeMania)
	if converted.Mode != ModeMania {
		t.Fatalf("converted mode = %v", converted.Mode)
	}
	if bm.Mode != ModeOsu {
		t.Fatal("conversion must not mutate the source map")
	}
	// Non-osu maps never convert.
	taiko := &Beatmap{Mode: ModeTaiko}
	if taiko.Convert(ModeOsu).Mode != ModeTaiko {
		t.Fatal("non-osu map should keep its native mode")
	}
	// Converting to the same mode returns the map unchanged.
	if bm.Convert(ModeOsu) != bm {
		t.Fatal("same-mode convert should be a no-op")
	}
}

func TestModeFrom(t *testing.T) {
	cases := map[int]Mode{0: ModeOsu, 1: ModeTaiko, 2: ModeCatch, 3: ModeMania, 7: ModeOsu, -1: ModeOsu}
	for raw, want := range cases {
		if got := ModeFrom(raw); got != want {
			t.Fatalf("ModeFrom(%d) = %v, want %v", raw, got, want)
		}
	}
}
