// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ps2card parses raw PS2 memory-card (.ps2/.mcd) images: the
// directory of save slots, the game id embedded in each slot's name,
// and the timestamps needed to detect which slot changed between two
// snapshots of the same card.
package ps2card

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/retrosave/agent-core/internal/agenterrors"
)

const (
	minCardSize = 8_388_608
	maxCardSize = 8_700_000

	clusterSize   = 1024
	entrySize     = 512
	entriesPerDir = 30
	rootClusterAt = 0x3C

	entryModeOff = 0x00
	entrySizeOff = 0x04
	entryTimeOff = 0x18
	entryNameOff = 0x40
	entryNameLen = 32

	modeExists  = 0x8000
	modeDirBit  = 0x0020
	modeFileBit = 0x0010
	modeInvalid = 0xFFFFFFFF
)

var fallbackDirOffsets = []int{0x2000, 0x4000}

// Save describes a single occupied slot on a memory card.
type Save struct {
	Name     string
	GameID   string
	Size     uint32
	Modified time.Time
}

// Card is a parsed PS2 memory-card image.
type Card struct {
	data []byte
}

// New validates and wraps a raw memory-card image. Per the PS2's own
// format, valid images are 8 MiB to roughly 8.7 MB (some emulators pad
// slightly) and begin with the "Sony" magic.
func New(data []byte) (*Card, error) {
	if len(data) < minCardSize || len(data) > maxCardSize {
		return nil, agenterrors.Newf("ps2card.New", agenterrors.KindParse,
			"invalid memory card size %d bytes", len(data))
	}
	if !bytes.HasPrefix(data, []byte("Sony")) {
		return nil, agenterrors.New("ps2card.New", agenterrors.KindParse,
			errNotASonyCard)
	}
	return &Card{data: data}, nil
}

var errNotASonyCard = agenterrors.Newf("ps2card", agenterrors.KindParse, "missing Sony memory card magic")

// ParseSaves walks the card's root directory and returns every
// occupied slot. The directory location is computed from the
// superblock's root cluster field, with a fallback to the two fixed
// offsets real-world cards are known to use when that computation
// lands somewhere else.
func (c *Card) ParseSaves() ([]Save, error) {
	if len(c.data) < rootClusterAt+4 {
		return nil, agenterrors.New("ps2card.ParseSaves", agenterrors.KindParse, errTruncatedSuperblock)
	}
	rootCluster := binary.LittleEndian.Uint32(c.data[rootClusterAt : rootClusterAt+4])
	computed := int(rootCluster) * clusterSize

	offsets := []int{computed}
	isFallback := computed != fallbackDirOffsets[0] && computed != fallbackDirOffsets[1]
	if isFallback {
		offsets = append(offsets, fallbackDirOffsets...)
	}

	for _, off := range offsets {
		saves, err := c.parseDirectoryAt(off)
		if err == nil && len(saves) > 0 {
			return saves, nil
		}
	}
	// Directory-walk found nothing usable; fall back to a raw scan for
	// known game-id prefixes embedded anywhere in the image.
	return c.fallbackScanSaves(), nil
}

var errTruncatedSuperblock = agenterrors.Newf("ps2card", agenterrors.KindParse, "superblock truncated")

func (c *Card) parseDirectoryAt(offset int) ([]Save, error) {
	var saves []Save
	for i := 0; i < entriesPerDir; i++ {
		entryOff := offset + i*entrySize
		if entryOff+entrySize > len(c.data) {
			break
		}
		entry := c.data[entryOff : entryOff+entrySize]

		mode := binary.LittleEndian.Uint32(entry[entryModeOff : entryModeOff+4])
		if mode == modeInvalid {
			continue
		}
		if mode&modeExists == 0 || mode&modeDirBit != 0 || mode&modeFileBit == 0 {
			continue
		}

		size := binary.LittleEndian.Uint32(entry[entrySizeOff : entrySizeOff+4])
		modified := parsePS2DateTime(entry[entryTimeOff : entryTimeOff+8])
		name := trimName(entry[entryNameOff : entryNameOff+entryNameLen])
		if name == "" {
			continue
		}

		saves = append(saves, Save{
			Name:     name,
			GameID:   ExtractGameID(name),
			Size:     size,
			Modified: modified,
		})
	}
	return saves, nil
}

func trimName(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(bytes.TrimSpace(b))
}

// parsePS2DateTime decodes the 8-byte PS2 directory-entry timestamp:
// [0] unused, [1] sec, [2] min, [3] hour, [4] day, [5] month,
// [6:8] year (little-endian u16). Returns the zero time for any
// byte layout outside plausible calendar bounds.
func parsePS2DateTime(b []byte) time.Time {
	if len(b) < 8 {
		return time.Time{}
	}
	sec, min, hour := int(b[1]), int(b[2]), int(b[3])
	day, month := int(b[4]), int(b[5])
	year := int(binary.LittleEndian.Uint16(b[6:8]))

	if year < 1970 || year > 2100 || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}
	}
	return time.Date(year, time.Month(month), day, hour, min, sec, 0, time.UTC)
}

var gameIDPrefixes = []string{
	"ESLUS-", "ESLES-", "ASLES-", "ASLUS-",
	"SLUS-", "SLES-", "SCES-", "SCUS-",
	"SLPM-", "SLPS-", "SCPS-", "SLKA-",
}

// ExtractGameID pulls a game id out of a slot name, following the same
// BE/BA-prefix-then-known-prefix scan the original parser uses.
func ExtractGameID(name string) string {
	s := name
	if len(s) > 2 && (s[:2] == "BE" || s[:2] == "BA") {
		s = s[2:]
	}
	for _, prefix := range gameIDPrefixes {
		idx := indexOf(s, prefix)
		if idx < 0 {
			continue
		}
		start := idx + len(prefix)
		end := start
		for end < len(s) && end-start < 5 && s[end] >= '0' && s[end] <= '9' {
			end++
		}
		if end == start {
			continue
		}
		return prefix[:len(prefix)-1] + "-" + s[start:end]
	}
	return ""
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

var fallbackScanPrefixes = []string{
	"BESLES-", "BASLUS-", "BASLES-", "BESLUS-",
	"SLES-", "SLUS-", "SCES-", "SCUS-", "SLPM-", "SLPS-", "SCPS-",
}

// fallbackScanSaves scans the raw image for known game-id prefixes
// when directory parsing finds nothing — used for images whose
// directory structure doesn't match the standard layout but still
// embed recognizable save data.
func (c *Card) fallbackScanSaves() []Save {
	seen := map[string]bool{}
	var saves []Save
	for _, prefix := range fallbackScanPrefixes {
		pb := []byte(prefix)
		for i := 0; i+len(pb) <= len(c.data); i++ {
			if !bytes.Equal(c.data[i:i+len(pb)], pb) {
				continue
			}
			end := i + len(pb)
			for end < len(c.data) && end-(i+len(pb)) < 5 && c.data[end] >= '0' && c.data[end] <= '9' {
				end++
			}
			if end == i+len(pb) {
				continue
			}
			id := string(c.data[i:end])
			if seen[id] {
				continue
			}
			seen[id] = true
			saves = append(saves, Save{Name: id, GameID: id})
		}
	}
	return saves
}

// HasGameSaves reports whether any save in saves matches gameID.
func HasGameSaves(saves []Save, gameID string) bool {
	for _, s := range saves {
		if s.GameID == gameID {
			return true
		}
	}
	return false
}

// HasAnySaves reports whether the card has any occupied slots at all.
func HasAnySaves(saves []Save) bool {
	return len(saves) > 0
}

// LastModifiedSave returns the save with the greatest Modified
// timestamp among saves with a non-zero timestamp.
func LastModifiedSave(saves []Save) (Save, bool) {
	var best Save
	found := false
	for _, s := range saves {
		if s.Modified.IsZero() {
			continue
		}
		if !found || s.Modified.After(best.Modified) {
			best = s
			found = true
		}
	}
	return best, found
}

// DetectModifiedSave compares current against a previous snapshot of
// the same card and returns the slot that changed — either because its
// Modified timestamp advanced, its Size differs, or it didn't exist in
// the previous snapshot at all.
func DetectModifiedSave(previous, current []Save) (Save, bool) {
	prevByName := make(map[string]Save, len(previous))
	for _, s := range previous {
		prevByName[s.Name] = s
	}
	for _, cur := range current {
		prev, existed := prevByName[cur.Name]
		if !existed {
			return cur, true
		}
		if cur.Modified.After(prev.Modified) || cur.Size != prev.Size {
			return cur, true
		}
	}
	return Save{}, false
}

// Metadata summarizes a card's contents for upload alongside the raw
// image.
type Metadata struct {
	GamesContained []string
	PrimaryGame    string
	TotalSaves     int
	FormatVersion  string
}

// GenerateMetadata builds a Metadata summary for saves, with
// primaryGame recorded as-is (the caller resolves which game id should
// be considered primary, e.g. via the most recently modified save).
func GenerateMetadata(saves []Save, primaryGame string) Metadata {
	gameSet := map[string]bool{}
	for _, s := range saves {
		if s.GameID != "" {
			gameSet[s.GameID] = true
		}
	}
	games := make([]string, 0, len(gameSet))
	for id := range gameSet {
		games = append(games, id)
	}
	sortStrings(games)

	return Metadata{
		GamesContained: games,
		PrimaryGame:    primaryGame,
		TotalSaves:     len(saves),
		FormatVersion:  "PS2_8MB",
	}
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
