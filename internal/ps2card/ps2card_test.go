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

package ps2card

import (
	"encoding/binary"
	"testing"
	"time"
)

func blankCard() []byte {
	data := make([]byte, minCardSize)
	copy(data, []byte("Sony"))
	// Root cluster chosen so computed offset lands on one of the
	// well-known fallback offsets (0x2000 = cluster 8).
	binary.LittleEndian.PutUint32(data[rootClusterAt:rootClusterAt+4], 8)
	return data
}

func writeDirEntry(data []byte, dirOffset, index int, name string, size uint32, year, month, day, hour, min, sec int) {
	off := dirOffset + index*entrySize
	// A real file entry: present, the directory bit clear, the file bit set.
	mode := uint32(modeExists | modeFileBit)
	binary.LittleEndian.PutUint32(data[off+entryModeOff:off+entryModeOff+4], mode)
	binary.LittleEndian.PutUint32(data[off+entrySizeOff:off+entrySizeOff+4], size)

	ts := data[off+entryTimeOff : off+entryTimeOff+8]
	ts[1] = byte(sec)
	ts[2] = byte(min)
	ts[3] = byte(hour)
	ts[4] = byte(day)
	ts[5] = byte(month)
	binary.LittleEndian.PutUint16(ts[6:8], uint16(year))

	copy(data[off+entryNameOff:off+entryNameOff+entryNameLen], []byte(name))
}

func TestNewRejectsWrongSize(t *testing.T) {
	if _, err := New(make([]byte, 100)); err == nil {
		t.Fatal("expected error for undersized image")
	}
}

func TestNewRejectsMissingMagic(t *testing.T) {
	data := make([]byte, minCardSize)
	if _, err := New(data); err == nil {
		t.Fatal("expected error for missing Sony magic")
	}
}

func TestExtractGameIDStripsBEPrefixAndFindsKnownPrefix(t *testing.T) {
	cases := map[string]string{
		"BESLES-52056-HPA":   "SLES-52056",
		"BASLUS-20826-HP1":   "SLUS-20826",
		"BESLES-52563-FIFA05": "SLES-52563",
		"SLUS-20826-NOPREFIX": "SLUS-20826",
		"NOTAGAME":           "",
	}
	for in, want := range cases {
		if got := ExtractGameID(in); got != want {
			t.Fatalf("ExtractGameID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseSavesHarryPotterAndFIFA(t *testing.T) {
	data := blankCard()
	writeDirEntry(data, 0x2000, 0, "BESLES-52056-HPA", 131072, 2024, 1, 15, 10, 30, 0)
	writeDirEntry(data, 0x2000, 1, "BESLES-52563-FIFA05", 262144, 2024, 1, 15, 11, 0, 0)

	card, err := New(data)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	saves, err := card.ParseSaves()
	if err != nil {
		t.Fatalf("ParseSaves: %v", err)
	}
	if len(saves) != 2 {
		t.Fatalf("expected 2 saves, got %d", len(saves))
	}

	if !HasGameSaves(saves, "SLES-52056") {
		t.Fatal("expected Harry Potter save (SLES-52056)")
	}
	if !HasGameSaves(saves, "SLES-52563") {
		t.Fatal("expected FIFA 05 save (SLES-52563)")
	}
}

func TestDetectModifiedSaveEndToEndScenario(t *testing.T) {
	// First card image: Harry Potter saved at 10:30:00, FIFA 05 at 11:00:00.
	first := blankCard()
	writeDirEntry(first, 0x2000, 0, "BESLES-52056-HPA", 131072, 2024, 1, 15, 10, 30, 0)
	writeDirEntry(first, 0x2000, 1, "BESLES-52563-FIFA05", 262144, 2024, 1, 15, 11, 0, 0)
	c1, err := New(first)
	if err != nil {
		t.Fatalf("New(first): %v", err)
	}
	firstSaves, err := c1.ParseSaves()
	if err != nil {
		t.Fatalf("ParseSaves(first): %v", err)
	}

	// Second card image: FIFA 05 slot modified 60 seconds later.
	second := blankCard()
	writeDirEntry(second, 0x2000, 0, "BESLES-52056-HPA", 131072, 2024, 1, 15, 10, 30, 0)
	writeDirEntry(second, 0x2000, 1, "BESLES-52563-FIFA05", 262144, 2024, 1, 15, 11, 1, 0)
	c2, err := New(second)
	if err != nil {
		t.Fatalf("New(second): %v", err)
	}
	secondSaves, err := c2.ParseSaves()
	if err != nil {
		t.Fatalf("ParseSaves(second): %v", err)
	}

	changed, ok := DetectModifiedSave(firstSaves, secondSaves)
	if !ok {
		t.Fatal("expected a detected modification")
	}
	if changed.GameID != "SLES-52563" {
		t.Fatalf("expected modified save to be FIFA 05 (SLES-52563), got %q", changed.GameID)
	}
}

func TestLastModifiedSave(t *testing.T) {
	saves := []Save{
		{Name: "a", GameID: "SLES-00001", Modified: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{Name: "b", GameID: "SLES-00002", Modified: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)},
		{Name: "c", GameID: "SLES-00003"},
	}
	latest, ok := LastModifiedSave(saves)
	if !ok {
		t.Fatal("expected a latest save")
	}
	if latest.GameID != "SLES-00002" {
		t.Fatalf("expected SLES-00002, got %q", latest.GameID)
	}
}

func TestGenerateMetadata(t *testing.T) {
	saves := []Save{
		{GameID: "SLES-52056"},
		{GameID: "SLES-52563"},
		{GameID: "SLES-52056"},
	}
	meta := GenerateMetadata(saves, "SLES-52563")
	if meta.TotalSaves != 3 {
		t.Fatalf("TotalSaves = %d, want 3", meta.TotalSaves)
	}
	if len(meta.GamesContained) != 2 {
		t.Fatalf("GamesContained = %v, want 2 unique ids", meta.GamesContained)
	}
	if meta.PrimaryGame != "SLES-52563" {
		t.Fatalf("PrimaryGame = %q", meta.PrimaryGame)
	}
	if meta.FormatVersion != "PS2_8MB" {
		t.Fatalf("FormatVersion = %q", meta.FormatVersion)
	}
}

func TestHasAnySaves(t *testing.T) {
	if HasAnySaves(nil) {
		t.Fatal("expected false for empty saves")
	}
	if !HasAnySaves([]Save{{GameID: "SLES-00001"}}) {
		t.Fatal("expected true for non-empty saves")
	}
}
