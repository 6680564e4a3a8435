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

import "time"

// EventKind tags a SyncEvent's variant.
type EventKind int

const (
	EventSaveDetected EventKind = iota
	EventSyncRequested
	EventAuthChanged
)

// SyncEvent is the engine's inbound message, carrying only the fields
// its Kind uses — the same closed-tag-plus-fields shape savetype.Kind
// and cardtracker.ChangeKind use elsewhere in this module.
type SyncEvent struct {
	Kind EventKind

	// EventSaveDetected
	GameName  string
	Emulator  string
	FilePath  string
	FileHash  string
	FileSize  int64
	Timestamp time.Time

	// EventAuthChanged
	Authenticated bool
}

// UploadTask is one queued file awaiting upload, per spec.md §4.14.
type UploadTask struct {
	GameName     string
	Emulator     string
	FilePath     string
	FileHash     string
	FileSize     int64
	Timestamp    time.Time
	AttemptCount int
}

// SyncStatus is the read-only snapshot other components observe.
type SyncStatus struct {
	IsSyncing        bool
	LastSync         *time.Time
	PendingUploads   int
	PendingDownloads int
	TotalSynced      int
}

// ConflictKind classifies how a game's local and cloud save history
// diverged.
type ConflictKind int

const (
	ConflictBothModified ConflictKind = iota
	ConflictLocalNewer
	ConflictCloudNewer
	ConflictSameTimeDifferent
	ConflictLocalOnly
	ConflictCloudOnly
)

func (k ConflictKind) String() string {
	switch k {
	case ConflictLocalNewer:
		return "LocalNewer"
	case ConflictCloudNewer:
		return "CloudNewer"
	case ConflictSameTimeDifferent:
		return "SameTimeDifferent"
	case ConflictLocalOnly:
		return "LocalOnly"
	case ConflictCloudOnly:
		return "CloudOnly"
	default:
		return "BothModified"
	}
}

// RecommendedAction is the analyser's suggested resolution.
type RecommendedAction int

const (
	ActionAskUser RecommendedAction = iota
	ActionKeepLocal
	ActionUseCloud
)

func (a RecommendedAction) String() string {
	switch a {
	case ActionKeepLocal:
		return "KeepLocal"
	case ActionUseCloud:
		return "UseCloud"
	default:
		return "AskUser"
	}
}

// VersionFacet is one side (local or cloud) of a conflicting game's
// state, as fed to the analyser.
type VersionFacet struct {
	Present   bool
	Hash      string
	Timestamp time.Time
	SaveCount int
}

// Conflict is one game whose local and cloud state differ, along with
// a human-readable summary for the UI collaborator.
type Conflict struct {
	GameID      string
	GameName    string
	Local       VersionFacet
	Cloud       VersionFacet
	Kind        ConflictKind
	Recommended RecommendedAction
	Summary     string
}

// ConflictSummary aggregates how a batch of Conflicts was resolved.
type ConflictSummary struct {
	KeptLocal int
	KeptCloud int
	Merged    int
	Skipped   int
}
