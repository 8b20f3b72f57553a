package tracker

import (
	"osupulse/bridge/internal/memory"
)

// Anchor patterns for the supported client version. Signatures are brittle:
// a game update invalidates them and they must be rediscovered out of band.
var (
	sigBase          = memory.MustSignature("F8 01 74 04 83 65")
	sigStatus        = memory.MustSignature("48 83 F8 04 73 1E")
	sigMenuMods      = memory.MustSignature("C8 FF ?? ?? ?? ?? ?? 81 0D ?? ?? ?? ?? 00 08 00 00")
	sigRulesets      = memory.MustSignature("7D 15 A1 ?? ?? ?? ?? 85 C0")
	sigPlaytime      = memory.MustSignature("5E 5F 5D C3 A1 ?? ?? ?? ?? 89 ?? 04")
	sigSkin          = memory.MustSignature("75 21 8B 1D")
	sigChatChecker   = memory.MustSignature("0A D7 23 3C 00 00 ?? 01")
	sigAudioTimeBase = memory.MustSignature("DB 5C 24 34 8B 44 24 34")
)

// SignatureFinder locates a byte pattern inside an attached process.
type SignatureFinder interface {
	FindSignature(sig memory.Signature) (int64, error)
}

// Anchors is the set of stable addresses every pointer walk starts from.
// They are resolved once, atomically, per attachment and never refreshed.
type Anchors struct {
	Base          int64
	Status        int64
	MenuMods      int64
	Rulesets      int64
	Playtime      int64
	Skin          int64
	ChatChecker   int64
	AudioTimeBase int64
}

// ResolveAnchors scans for every pattern. A single missing pattern fails the
// whole resolution: the attached game version is incompatible.
func ResolveAnchors(finder SignatureFinder) (*Anchors, error) {
	anchors := &Anchors{}
	for _, entry := range []struct {
		sig  memory.Signature
		dest *int64
	}{
		{sigBase, &anchors.Base},
		{sigStatus, &anchors.Status},
		{sigMenuMods, &anchors.MenuMods},
		{sigRulesets, &anchors.Rulesets},
		{sigPlaytime, &anchors.Playtime},
		{sigSkin, &anchors.Skin},
		{sigChatChecker, &anchors.ChatChecker},
		{sigAudioTimeBase, &anchors.AudioTimeBase},
	} {
		addr, err := finder.FindSignature(entry.sig)
		if err != nil {
			return nil, err
		}
		*entry.dest = addr
	}
	return anchors, nil
}
