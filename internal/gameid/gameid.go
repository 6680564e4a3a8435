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

// Package gameid resolves console-specific game identifiers (PS2,
// GameCube, PSP) to human-readable titles. The default tables are
// embedded at compile time; a caller may load an upstream catalogue to
// take precedence over them.
package gameid

import (
	_ "embed"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"gopkg.in/yaml.v3"

	"github.com/retrosave/agent-core/internal/agenterrors"
)

//go:embed fallback.yaml
var fallbackYAML []byte

//go:embed gamecube_fallback.yaml
var gamecubeYAML []byte

//go:embed psp_fallback.yaml
var pspYAML []byte

var (
	loadOnce      sync.Once
	fallbackTable map[string]string
	gamecubeTable map[string]string
	pspTable      map[string]string
)

func loadTables() {
	fallbackTable = mustParse(fallbackYAML)
	gamecubeTable = mustParse(gamecubeYAML)
	pspTable = mustParse(pspYAML)
}

func mustParse(b []byte) map[string]string {
	m := map[string]string{}
	if err := yaml.Unmarshal(b, &m); err != nil {
		// Embedded tables are part of the binary; a parse failure here
		// is a build defect, not a runtime condition callers can act on.
		panic(agenterrors.New("gameid.mustParse", agenterrors.KindParse, err))
	}
	return m
}

// Resolver looks up game titles by console-specific ID. It is safe for
// concurrent use: the backing tables are immutable once loaded, and
// the LRU cache is internally synchronized.
type Resolver struct {
	mu        sync.RWMutex
	ps2       map[string]string
	gamecube  map[string]string
	psp       map[string]string
	cache     *lru.Cache[string, string]
}

const defaultCacheSize = 512

// New returns a Resolver seeded with the embedded fallback tables.
func New() *Resolver {
	loadOnce.Do(loadTables)
	cache, _ := lru.New[string, string](defaultCacheSize)
	r := &Resolver{
		ps2:      fallbackTable,
		gamecube: gamecubeTable,
		psp:      pspTable,
		cache:    cache,
	}
	return r
}

// Catalogue is an upstream override for one or more of the console
// tables. Any nil/empty map in the struct leaves that console's
// embedded fallback table in place.
type Catalogue struct {
	PS2      map[string]string
	GameCube map[string]string
	PSP      map[string]string
}

// LoadCatalogue replaces the tables named in c, taking precedence over
// the embedded fallback for the consoles supplied. It invalidates the
// lookup cache so new entries take effect immediately.
func (r *Resolver) LoadCatalogue(c Catalogue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(c.PS2) > 0 {
		r.ps2 = c.PS2
	}
	if len(c.GameCube) > 0 {
		r.gamecube = c.GameCube
	}
	if len(c.PSP) > 0 {
		r.psp = c.PSP
	}
	r.cache.Purge()
}

// normalize applies the PS2 ID normalisation rules in the order spec.md
// §4.3 requires:
//  1. strip a two-character region/distribution prefix (e.g. "BE", "BA")
//     when present — detected by the id being longer than seven
//     characters and having 'S' as its third character;
//  2. compute the base id by taking the first two '-'-joined segments,
//     which drops any trailing disc/variant suffix (e.g. "-HPA");
//  3. fall through to the normalized id, then to the raw input.
// It returns the candidates in lookup precedence order, base id first.
func normalize(id string) []string {
	candidates := make([]string, 0, 3)

	working := id
	if len(working) > 7 && working[2] == 'S' {
		working = working[2:]
	}

	if parts := strings.Split(working, "-"); len(parts) >= 2 {
		base := parts[0] + "-" + parts[1]
		candidates = append(candidates, base)
	}
	if working != id {
		candidates = append(candidates, working)
	}
	candidates = append(candidates, id)

	return dedupe(candidates)
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Lookup resolves a PS2 game ID to its title, applying the
// normalisation rules and checking the lookup cache before the backing
// table. It returns ok=false when no candidate resolves.
func (r *Resolver) Lookup(id string) (string, bool) {
	return r.lookupIn(id, func() map[string]string {
		r.mu.RLock()
		defer r.mu.RUnlock()
		return r.ps2
	})
}

// LookupGameCube resolves a 4-character GameCube game code.
func (r *Resolver) LookupGameCube(code string) (string, bool) {
	r.mu.RLock()
	table := r.gamecube
	r.mu.RUnlock()
	name, ok := table[code]
	return name, ok
}

// LookupPSP resolves a 9-character PSP game code (e.g. "ULUS-10041").
func (r *Resolver) LookupPSP(code string) (string, bool) {
	r.mu.RLock()
	table := r.psp
	r.mu.RUnlock()
	name, ok := table[code]
	return name, ok
}

func (r *Resolver) lookupIn(id string, table func() map[string]string) (string, bool) {
	if cached, ok := r.cache.Get(id); ok {
		if cached == "" {
			return "", false
		}
		return cached, true
	}

	t := table()
	for _, candidate := range normalize(id) {
		if name, ok := t[candidate]; ok {
			r.cache.Add(id, name)
			return name, true
		}
	}
	r.cache.Add(id, "")
	return "", false
}
