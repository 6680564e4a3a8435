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

package supervisor

import (
	"path/filepath"
	"testing"

	"github.com/retrosave/agent-core/internal/detect"
)

type fakeLocator struct {
	dir string
}

func (f fakeLocator) CandidateSaveDirs(string) []string { return []string{f.dir} }

func newTestSupervisor(t *testing.T, saveDir string) *Supervisor {
	t.Helper()
	return New(0, fakeLocator{dir: saveDir}, detect.New(nil, nil), nil)
}

func TestOnDetectedTransitionsToWatching(t *testing.T) {
	dir := t.TempDir()
	s := newTestSupervisor(t, dir)

	s.onDetected("pcsx2", 1234)

	tracked, ok := s.tracked["pcsx2"]
	if !ok {
		t.Fatal("expected pcsx2 to be tracked")
	}
	if tracked.State != StateWatching {
		t.Fatalf("State = %v, want Watching", tracked.State)
	}
	tracked.watcher.Stop()
}

func TestOnDetectedWithoutSaveDirStaysDetected(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "does-not-exist")
	s := newTestSupervisor(t, missing)

	s.onDetected("pcsx2", 1234)

	tracked := s.tracked["pcsx2"]
	if tracked.State != StateDetected {
		t.Fatalf("State = %v, want Detected", tracked.State)
	}
	if tracked.watcher != nil {
		t.Fatal("expected no watcher without a resolvable save directory")
	}
}

func TestOnDisappearedRemovesTrackedEntry(t *testing.T) {
	dir := t.TempDir()
	s := newTestSupervisor(t, dir)
	s.onDetected("pcsx2", 1234)

	t2 := s.tracked["pcsx2"]
	s.onDisappeared("pcsx2", t2)

	if _, ok := s.tracked["pcsx2"]; ok {
		t.Fatal("expected tracked entry to be removed")
	}
}

func TestReconcileTickDetectsNewAndDrops(t *testing.T) {
	dir := t.TempDir()
	s := newTestSupervisor(t, dir)

	s.reconcileTick(map[string]int32{"pcsx2": 1234})
	if _, ok := s.tracked["pcsx2"]; !ok {
		t.Fatal("expected pcsx2 tracked after first tick")
	}

	s.reconcileTick(map[string]int32{})
	if _, ok := s.tracked["pcsx2"]; ok {
		t.Fatal("expected pcsx2 dropped once absent from the process scan")
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateAbsent:   "Absent",
		StateDetected: "Detected",
		StateWatching: "Watching",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Fatalf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestRunStopsCleanly(t *testing.T) {
	dir := t.TempDir()
	called := make(chan struct{}, 1)
	s := New(0, fakeLocator{dir: dir}, detect.New(nil, nil), nil)
	s.scanProcesses = func() map[string]int32 {
		select {
		case called <- struct{}{}:
		default:
		}
		return map[string]int32{}
	}
	s.interval = 1
	go s.Run()
	<-called
	s.Stop()
}
