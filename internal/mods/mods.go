// Package mods models the game's 32-bit mod bitfield.
package mods

import "strings"

// Mods is the raw bitfield as it appears in game memory.
type Mods uint32

// Individual mod bits.
const (
	NoFail Mods = 1 << iota
	Easy
	TouchDevice
	Hidden
	HardRock
	SuddenDeath
	DoubleTime
	Relax
	HalfTime
	Nightcore
	Flashlight
	Autoplay
	SpunOut
	Autopilot
	Perfect
	Key4
	Key5
	Key6
	Key7
	Key8
	FadeIn
	Random
	Cinema
	TargetPractice
	Key9
	Coop
	Key1
	Key3
	Key2
	ScoreV2
	Mirror
)

// shortNames is the bit-index ordered table of display names.
var shortNames = [31]string{
	"NF", "EZ", "TD", "HD", "HR", "SD", "DT", "RX", "HT", "NC",
	"FL", "AU", "SO", "AP", "PF", "K4", "K5", "K6", "K7", "K8",
	"FI", "RN", "CN", "TP", "K9", "Coop", "K1", "K3", "K2", "V2",
	"MR",
}

// Has reports whether every bit of m2 is set in m.
func (m Mods) Has(m2 Mods) bool { return m&m2 == m2 }

// ClockRate returns the playback rate the mods impose on the track.
func (m Mods) ClockRate() float64 {
	switch {
	case m.Has(DoubleTime) || m.Has(Nightcore):
		return 1.5
	case m.Has(HalfTime):
		return 0.75
	default:
		return 1.0
	}
}

// HiddenGrade reports whether the grade gets its hidden variant (SS→SSH, S→SH).
func (m Mods) HiddenGrade() bool {
	return m&(Hidden|Flashlight|FadeIn) != 0
}

// Names decodes the bitfield into short names in bit order. Two dedup rules
// apply: NC implies DT, so DT is dropped when NC is present, and PF implies
// SD, so SD is dropped when PF is present.
func (m Mods) Names() []string {
	names := make([]string, 0, 4)
	for bit, name := range shortNames {
		flag := Mods(1) << uint(bit)
		if !m.Has(flag) {
			continue
		}
		if flag == DoubleTime && m.Has(Nightcore) {
			continue
		}
		if flag == SuddenDeath && m.Has(Perfect) {
			continue
		}
		names = append(names, name)
	}
	return names
}

// String concatenates the decoded short names, the form overlay clients show.
func (m Mods) String() string {
	return strings.Join(m.Names(), "")
}
