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

// Package agent wires C1–C15 into one running process: the supervisor
// feeds detected saves through a bounded worker pool that records,
// backs up, and queues them for sync; MonitorEvent/MonitorCommand are
// the process boundary a UI layer (outside this repo's scope) would
// drive.
package agent

import (
	"time"

	"github.com/retrosave/agent-core/internal/sync"
)

// MonitorEventKind tags a MonitorEvent's variant, spec.md §6.
type MonitorEventKind int

const (
	EventEmulatorDetected MonitorEventKind = iota
	EventEmulatorStopped
	EventGameDetected
	EventSaveDetected
	EventManualSaveResult
	EventSyncStatusChanged
	EventConflict
)

// ManualSaveOutcome tags an EventManualSaveResult's result.
type ManualSaveOutcome int

const (
	ManualSaveSuccess ManualSaveOutcome = iota
	ManualSaveNoChanges
	ManualSaveFailed
)

// MonitorEvent is the outbound channel message, one flat struct
// carrying every variant's fields — the same closed-tag encoding the
// teacher's own RaftCommand uses for its command log, per
// SPEC_FULL.md §5.
type MonitorEvent struct {
	Kind MonitorEventKind

	Name string // EmulatorDetected/Stopped, GameDetected

	Path string // SaveDetected

	Outcome      ManualSaveOutcome // ManualSaveResult
	FailedReason string            // ManualSaveResult when Outcome == ManualSaveFailed

	Status sync.SyncStatus // SyncStatusChanged

	Conflict sync.Conflict // Conflict
}

// MonitorCommandKind tags a MonitorCommand's variant.
type MonitorCommandKind int

const (
	CommandTriggerManualSave MonitorCommandKind = iota
)

// MonitorCommand is the inbound command channel message.
type MonitorCommand struct {
	Kind MonitorCommandKind
	Game string // TriggerManualSave
}

// jobKind tags the internal work-queue item a watched save event
// becomes once it reaches the bounded worker pool.
type jobKind int

const (
	jobPlainSave jobKind = iota
	jobMemoryCard
)

type job struct {
	kind jobKind

	gameName string
	emulator string
	path     string
	hash     string
	size     int64
	seenAt   time.Time
}
