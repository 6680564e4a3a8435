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

package sync

import (
	"fmt"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"
)

// conflictWindow is the timestamp-delta threshold below which the
// analyser asks the user instead of picking a side, per spec.md §4.14.1.
const conflictWindow = time.Hour

// GamePair joins one game's local and cloud facets for the analyser.
// Building this join (matching by game ID across the local store and
// the remote listing) is the caller's job; Analyze itself does no I/O.
type GamePair struct {
	GameID   string
	GameName string
	Local    VersionFacet
	Cloud    VersionFacet
}

// Analyze implements spec.md §4.14.1: it yields one Conflict per game
// whose local and cloud facets differ, with no side effects.
func Analyze(pairs []GamePair) []Conflict {
	var out []Conflict
	for _, p := range pairs {
		c, differs := analyzeOne(p)
		if differs {
			out = append(out, c)
		}
	}
	return out
}

func analyzeOne(p GamePair) (Conflict, bool) {
	c := Conflict{GameID: p.GameID, GameName: p.GameName, Local: p.Local, Cloud: p.Cloud}

	switch {
	case p.Local.Present && !p.Cloud.Present:
		c.Kind = ConflictLocalOnly
		c.Recommended = ActionKeepLocal
	case !p.Local.Present && p.Cloud.Present:
		c.Kind = ConflictCloudOnly
		c.Recommended = ActionUseCloud
	case p.Local.Present && p.Cloud.Present:
		if p.Local.Hash == p.Cloud.Hash && p.Local.SaveCount == p.Cloud.SaveCount {
			return Conflict{}, false
		}
		delta := p.Local.Timestamp.Sub(p.Cloud.Timestamp)
		switch {
		case delta > 0:
			c.Kind = ConflictLocalNewer
		case delta < 0:
			c.Kind = ConflictCloudNewer
		default:
			c.Kind = ConflictSameTimeDifferent
		}
		c.Recommended = recommendAction(c.Kind, delta)
	default:
		return Conflict{}, false
	}

	c.Summary = summarize(p)
	return c, true
}

// recommendAction picks a resolution independently of Kind's sign-only
// classification: a LocalNewer/CloudNewer delta only gets a one-sided
// recommendation once it clears conflictWindow; anything narrower, plus
// an exact tie, asks the user.
func recommendAction(kind ConflictKind, delta time.Duration) RecommendedAction {
	switch kind {
	case ConflictLocalNewer:
		if delta > conflictWindow {
			return ActionKeepLocal
		}
		return ActionAskUser
	case ConflictCloudNewer:
		if -delta > conflictWindow {
			return ActionUseCloud
		}
		return ActionAskUser
	default:
		return ActionAskUser
	}
}

// summarize renders a one-line-per-game human-readable diff of the two
// facets for the UI collaborator to display verbatim.
func summarize(p GamePair) string {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(facetLine("local", p.Local)),
		B:        difflib.SplitLines(facetLine("cloud", p.Cloud)),
		FromFile: "local",
		ToFile:   "cloud",
		Context:  0,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return fmt.Sprintf("%s: local=%+v cloud=%+v", p.GameName, p.Local, p.Cloud)
	}
	return p.GameName + ": " + strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
}

func facetLine(label string, f VersionFacet) string {
	if !f.Present {
		return fmt.Sprintf("%s: absent\n", label)
	}
	return fmt.Sprintf("%s: hash=%s saves=%d modified=%s\n", label, f.Hash, f.SaveCount, f.Timestamp.Format(time.RFC3339))
}

// ResolutionStrategy is a bulk policy a caller applies to a batch of
// Conflicts, per spec.md §4.14.1.
type ResolutionStrategy int

const (
	AlwaysLocal ResolutionStrategy = iota
	AlwaysCloud
	AlwaysNewer
	Interactive
	Smart
)

// Apply resolves every conflict according to the strategy, returning
// an aggregate count of what happened. Interactive and the AskUser
// recommendation under Smart both count as Skipped — the caller (the
// UI collaborator) must resolve those explicitly; Apply never blocks
// waiting for that decision.
func (s ResolutionStrategy) Apply(conflicts []Conflict) ConflictSummary {
	var sum ConflictSummary
	for _, c := range conflicts {
		switch s.decide(c) {
		case ActionKeepLocal:
			sum.KeptLocal++
		case ActionUseCloud:
			sum.KeptCloud++
		default:
			sum.Skipped++
		}
	}
	return sum
}

func (s ResolutionStrategy) decide(c Conflict) RecommendedAction {
	switch s {
	case AlwaysLocal:
		return ActionKeepLocal
	case AlwaysCloud:
		return ActionUseCloud
	case AlwaysNewer:
		switch c.Kind {
		case ConflictLocalNewer, ConflictLocalOnly:
			return ActionKeepLocal
		case ConflictCloudNewer, ConflictCloudOnly:
			return ActionUseCloud
		default:
			return ActionAskUser
		}
	case Interactive:
		return ActionAskUser
	default: // Smart: the analyser's own recommendation
		return c.Recommended
	}
}
