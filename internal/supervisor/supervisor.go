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

// Package supervisor ticks the process table every few seconds,
// attaching a filesystem watcher to each detected emulator and
// tearing it down when the process disappears.
package supervisor

import (
	"log"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/retrosave/agent-core/internal/detect"
	"github.com/retrosave/agent-core/internal/platform"
	"github.com/retrosave/agent-core/internal/watch"
)

// State is a tracked emulator's position in its small state machine:
// Absent → Detected(locating) → Watching(game=?) → Watching(game=X).
type State int

const (
	StateAbsent State = iota
	StateDetected
	StateWatching
)

func (s State) String() string {
	switch s {
	case StateDetected:
		return "Detected"
	case StateWatching:
		return "Watching"
	default:
		return "Absent"
	}
}

// supportedEmulators is the case-insensitive process-name substring
// table for the 8 variants spec.md §4.9 names.
var supportedEmulators = map[string]string{
	"pcsx2":     "pcsx2",
	"dolphin":   "dolphin",
	"rpcs3":     "rpcs3",
	"citra":     "citra",
	"retroarch": "retroarch",
	"yuzu":      "yuzu",
	"ryujinx":   "ryujinx",
	"ppsspp":    "ppsspp",
}

// Tracked is one emulator the supervisor is actively following.
type Tracked struct {
	Name        string
	PID         int32
	State       State
	CurrentGame string

	watcher *watch.Watcher
}

// Supervisor scans the process table on a tick interval and maintains
// one Tracked entry per detected emulator.
type Supervisor struct {
	interval time.Duration
	locator  platform.Locator
	detector *detect.Detector
	events   chan<- watch.SaveEvent

	// Monitor hooks, set by internal/agent after New; nil is a valid
	// no-op, so supervisor_test.go's construction without them is
	// unaffected.
	OnEmulatorDetected func(name string)
	OnEmulatorStopped  func(name string)
	OnGameDetected     func(name string)

	// scanProcesses is overridden in tests to avoid depending on the
	// real OS process table.
	scanProcesses func() map[string]int32

	tracked map[string]*Tracked
	stop    chan struct{}
	done    chan struct{}
}

// New returns a Supervisor that ticks every interval (spec.md's
// default is ~5s), resolving save directories via locator, game
// identity via detector, and forwarding every watcher's SaveEvents
// (annotated with the emulator name) onto events.
func New(interval time.Duration, locator platform.Locator, detector *detect.Detector, events chan<- watch.SaveEvent) *Supervisor {
	s := &Supervisor{
		interval: interval,
		locator:  locator,
		detector: detector,
		events:   events,
		tracked:  map[string]*Tracked{},
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.scanProcesses = s.scanProcessesViaGopsutil
	return s
}

// Run blocks, ticking until Stop is called.
func (s *Supervisor) Run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			s.teardownAll()
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// Stop signals Run to exit and waits for it to finish.
func (s *Supervisor) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Supervisor) tick() {
	seen := s.scanProcesses()
	s.reconcileTick(seen)
}

func (s *Supervisor) reconcileTick(seen map[string]int32) {

	for name := range seen {
		if _, ok := s.tracked[name]; !ok {
			s.onDetected(name, seen[name])
		}
	}
	for name, t := range s.tracked {
		if _, stillPresent := seen[name]; !stillPresent {
			s.onDisappeared(name, t)
		}
	}
	for name, t := range s.tracked {
		if _, stillPresent := seen[name]; stillPresent {
			s.reconcile(name, t)
		}
	}
}

func (s *Supervisor) scanProcessesViaGopsutil() map[string]int32 {
	seen := map[string]int32{}
	procs, err := process.Processes()
	if err != nil {
		log.Printf("supervisor: process scan failed: %v", err)
		return seen
	}
	for _, p := range procs {
		name, err := p.Name()
		if err != nil || name == "" {
			continue
		}
		lower := strings.ToLower(name)
		for emulator, substr := range supportedEmulators {
			if strings.Contains(lower, substr) {
				seen[emulator] = p.Pid
				break
			}
		}
	}
	return seen
}

func (s *Supervisor) onDetected(name string, pid int32) {
	t := &Tracked{Name: name, PID: pid, State: StateDetected}
	s.tracked[name] = t
	if s.OnEmulatorDetected != nil {
		s.OnEmulatorDetected(name)
	}

	saveDir := platform.ResolveSaveDir(s.locator, name)
	if saveDir == "" {
		log.Printf("supervisor: no save directory found for %s, tracking without a watcher", name)
		return
	}

	w, err := watch.New(saveDir, nil)
	if err != nil {
		log.Printf("supervisor: failed to watch save directory for %s: %v", name, err)
		return
	}
	t.watcher = w

	if game, ok := s.detector.Detect(detect.Hint{Emulator: name}); ok {
		t.CurrentGame = game
		if s.OnGameDetected != nil {
			s.OnGameDetected(game)
		}
	}
	t.State = StateWatching
}

func (s *Supervisor) onDisappeared(name string, t *Tracked) {
	if t.watcher != nil {
		t.watcher.Stop()
	}
	delete(s.tracked, name)
	if s.OnEmulatorStopped != nil {
		s.OnEmulatorStopped(name)
	}
}

func (s *Supervisor) reconcile(name string, t *Tracked) {
	game, ok := s.detector.Detect(detect.Hint{Emulator: name})
	if ok && game != t.CurrentGame {
		t.CurrentGame = game
		if s.OnGameDetected != nil {
			s.OnGameDetected(game)
		}
	}
	s.drain(t)
}

func (s *Supervisor) drain(t *Tracked) {
	if t.watcher == nil || s.events == nil {
		return
	}
	for {
		select {
		case ev := <-t.watcher.Events():
			ev.Emulator = t.Name
			ev.GameName = t.CurrentGame
			s.events <- ev
		default:
			return
		}
	}
}

func (s *Supervisor) teardownAll() {
	for name, t := range s.tracked {
		s.onDisappeared(name, t)
	}
}
