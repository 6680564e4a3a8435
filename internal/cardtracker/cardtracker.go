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

// Package cardtracker watches PS2 memory-card images for the specific
// save slot that changed between two reads, so only the game that
// actually produced new data triggers an upload (C12).
package cardtracker

import (
	"strings"
	"sync"

	"github.com/retrosave/agent-core/internal/gameid"
	"github.com/retrosave/agent-core/internal/hashing"
	"github.com/retrosave/agent-core/internal/ps2card"
)

// ChangeKind distinguishes a brand-new save slot from a modification
// of an existing one.
type ChangeKind int

const (
	KindNone ChangeKind = iota
	KindAdded
	KindModified
)

// Change describes what the tracker localized in a new card image.
type Change struct {
	Kind     ChangeKind
	GameID   string
	GameName string
}

type snapshot struct {
	hash  string
	saves []ps2card.Save
}

// Tracker keeps one snapshot per card path and localizes which save
// slot changed on each subsequent update.
type Tracker struct {
	resolver *gameid.Resolver

	mu   sync.Mutex
	last map[string]snapshot
}

// New returns a Tracker that resolves changed slots' game IDs via resolver.
func New(resolver *gameid.Resolver) *Tracker {
	return &Tracker{resolver: resolver, last: map[string]snapshot{}}
}

// Update feeds a freshly-read card image for path through the
// tracker, returning the localized Change (KindNone if the image's
// hash is unchanged from the previous call).
func (t *Tracker) Update(path string, data []byte) (Change, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	hash := hashing.HashBytes(data)
	prev, hadPrev := t.last[path]
	if hadPrev && prev.hash == hash {
		return Change{Kind: KindNone}, nil
	}

	card, err := ps2card.New(data)
	if err != nil {
		return Change{}, err
	}
	saves, err := card.ParseSaves()
	if err != nil {
		return Change{}, err
	}
	t.last[path] = snapshot{hash: hash, saves: saves}

	if !hadPrev {
		return t.changeFromLastModified(saves, KindAdded), nil
	}

	if changed, ok := ps2card.DetectModifiedSave(prev.saves, saves); ok {
		return t.changeFor(changed, KindModified), nil
	}

	return t.changeFromLastModified(saves, KindModified), nil
}

func (t *Tracker) changeFromLastModified(saves []ps2card.Save, kind ChangeKind) Change {
	save, ok := ps2card.LastModifiedSave(saves)
	if !ok {
		return Change{Kind: KindNone}
	}
	return t.changeFor(save, kind)
}

func (t *Tracker) changeFor(save ps2card.Save, kind ChangeKind) Change {
	name, ok := t.resolver.Lookup(save.GameID)
	if !ok {
		name = save.GameID
	}
	return Change{Kind: kind, GameID: save.GameID, GameName: name}
}

// ShouldUpload implements spec.md's policy: when the emulator-detected
// current game is known, only accept a change whose name substring-
// matches it (case-insensitive, either direction); an unknown current
// game accepts any localized change; a change that could not be
// localized (KindNone) is always suppressed.
func ShouldUpload(change Change, currentGame string) bool {
	if change.Kind == KindNone {
		return false
	}
	if currentGame == "" {
		return true
	}
	a, b := strings.ToLower(change.GameName), strings.ToLower(currentGame)
	return strings.Contains(a, b) || strings.Contains(b, a)
}
