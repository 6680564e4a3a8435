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

package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/retrosave/agent-core/internal/backupstore"
	"github.com/retrosave/agent-core/internal/cardtracker"
	"github.com/retrosave/agent-core/internal/gameid"
	"github.com/retrosave/agent-core/internal/store"
	"github.com/retrosave/agent-core/internal/sync"
	"github.com/retrosave/agent-core/internal/watch"
)

// fakeSyncClient is an in-memory stand-in for sync.Client, matching
// the engine's own test idiom so Agent's tests never spin up an
// httptest server.
type fakeSyncClient struct{}

func (fakeSyncClient) RegisterGame(ctx context.Context, token, name, emulator string) (uuid.UUID, error) {
	return uuid.New(), nil
}
func (fakeSyncClient) InitUpload(ctx context.Context, token string, gameID uuid.UUID, hash string, size int64, ts time.Time) (string, string, error) {
	return "http://upload.example/put", "save-id", nil
}
func (fakeSyncClient) PutBytes(ctx context.Context, uploadURL string, data []byte) error { return nil }
func (fakeSyncClient) ListSaves(ctx context.Context, token string, page, perPage int) ([]sync.RemoteSave, bool, error) {
	return nil, false, nil
}
func (fakeSyncClient) PushSetting(ctx context.Context, token, key, value string) error { return nil }

// newTestAgent builds an Agent with every network-facing collaborator
// replaced by an in-memory fake, exercising only the local pipeline
// (store, backups, cardtracker) the way supervisor_test.go exercises
// Supervisor's internals directly rather than through Run.
func newTestAgent(t *testing.T) *Agent {
	t.Helper()

	st, err := store.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	resolver := gameid.New()

	syncOut := make(chan sync.OutEvent, 16)
	engine := sync.New(fakeSyncClient{}, st, func() (string, bool) { return "tok", true }, syncOut)

	return &Agent{
		cfg:        Config{KeepVersions: 20}.withDefaults(),
		store:      st,
		backups:    backupstore.New(t.TempDir()),
		tracker:    cardtracker.New(resolver),
		syncEngine: engine,
		syncOut:    syncOut,
		jobs:       make(chan job, 8),
	}
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestProcessPlainSaveRecordsAndBacksUp(t *testing.T) {
	a := newTestAgent(t)
	out := make(chan MonitorEvent, 8)
	a.out = out

	savePath := filepath.Join(t.TempDir(), "game.sav")
	writeFile(t, savePath, []byte("save-v1"))

	j := job{
		kind:     jobPlainSave,
		gameName: "Test Game",
		emulator: "PCSX2",
		path:     savePath,
		hash:     "hash-v1",
		size:     7,
		seenAt:   time.Now(),
	}
	if err := a.process(j); err != nil {
		t.Fatalf("process: %v", err)
	}

	games := a.store.GetAllGames()
	if len(games) != 1 {
		t.Fatalf("len(games) = %d, want 1", len(games))
	}
	saves := a.store.GetSavesForGame(games[0].ID, 0)
	if len(saves) != 1 {
		t.Fatalf("len(saves) = %d, want 1", len(saves))
	}
	if saves[0].Hash != "hash-v1" {
		t.Fatalf("Hash = %q, want hash-v1", saves[0].Hash)
	}
	if _, err := os.Stat(saves[0].BackupPath); err != nil {
		t.Fatalf("backup file missing: %v", err)
	}

	select {
	case ev := <-out:
		if ev.Kind != EventSaveDetected || ev.Path != savePath {
			t.Fatalf("unexpected MonitorEvent: %+v", ev)
		}
	default:
		t.Fatal("expected an EventSaveDetected MonitorEvent")
	}
}

func TestProcessPlainSaveReusesExistingGame(t *testing.T) {
	a := newTestAgent(t)

	first := filepath.Join(t.TempDir(), "a.sav")
	writeFile(t, first, []byte("v1"))
	if err := a.process(job{kind: jobPlainSave, gameName: "Same Game", emulator: "Dolphin", path: first, hash: "h1", size: 2, seenAt: time.Now()}); err != nil {
		t.Fatalf("process #1: %v", err)
	}

	second := filepath.Join(t.TempDir(), "b.sav")
	writeFile(t, second, []byte("v2"))
	if err := a.process(job{kind: jobPlainSave, gameName: "Same Game", emulator: "Dolphin", path: second, hash: "h2", size: 2, seenAt: time.Now()}); err != nil {
		t.Fatalf("process #2: %v", err)
	}

	games := a.store.GetAllGames()
	if len(games) != 1 {
		t.Fatalf("len(games) = %d, want 1 (same game reused)", len(games))
	}
	saves := a.store.GetSavesForGame(games[0].ID, 0)
	if len(saves) != 2 {
		t.Fatalf("len(saves) = %d, want 2", len(saves))
	}
}

// waitForPendingUpload polls Status since Engine.Push only hands the
// event to its internal pump goroutine — Run must be running to drain
// it into e.pending before Status reflects it.
func waitForPendingUpload(t *testing.T, a *Agent) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if a.syncEngine.Status().PendingUploads > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for a pending upload to appear in Status")
}

func TestRecordAndEnqueuePushesSyncEvent(t *testing.T) {
	a := newTestAgent(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.syncEngine.Run(ctx)

	savePath := filepath.Join(t.TempDir(), "game.sav")
	writeFile(t, savePath, []byte("data"))

	g, err := a.store.GetOrCreateGame("Pushed Game", "RetroArch", "")
	if err != nil {
		t.Fatalf("GetOrCreateGame: %v", err)
	}
	if err := a.recordAndEnqueue(g.ID, "Pushed Game", "RetroArch", savePath, "h", 4, time.Now()); err != nil {
		t.Fatalf("recordAndEnqueue: %v", err)
	}

	waitForPendingUpload(t, a)
}

func TestTriggerManualSaveReportsNoChangesWhenQueueEmpty(t *testing.T) {
	a := newTestAgent(t)
	out := make(chan MonitorEvent, 4)

	a.triggerManualSave(out)

	select {
	case ev := <-out:
		if ev.Kind != EventManualSaveResult || ev.Outcome != ManualSaveNoChanges {
			t.Fatalf("unexpected MonitorEvent: %+v", ev)
		}
	default:
		t.Fatal("expected a ManualSaveResult event")
	}
}

func TestTriggerManualSaveReportsSuccessWhenPending(t *testing.T) {
	a := newTestAgent(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.syncEngine.Run(ctx)

	out := make(chan MonitorEvent, 4)

	savePath := filepath.Join(t.TempDir(), "game.sav")
	writeFile(t, savePath, []byte("data"))
	g, err := a.store.GetOrCreateGame("Queued Game", "Citra", "")
	if err != nil {
		t.Fatalf("GetOrCreateGame: %v", err)
	}
	if err := a.recordAndEnqueue(g.ID, "Queued Game", "Citra", savePath, "h", 4, time.Now()); err != nil {
		t.Fatalf("recordAndEnqueue: %v", err)
	}
	waitForPendingUpload(t, a)

	a.triggerManualSave(out)

	select {
	case ev := <-out:
		if ev.Kind != EventManualSaveResult || ev.Outcome != ManualSaveSuccess {
			t.Fatalf("unexpected MonitorEvent: %+v", ev)
		}
	default:
		t.Fatal("expected a ManualSaveResult event")
	}
}

func TestHandleCommandDispatchesTriggerManualSave(t *testing.T) {
	a := newTestAgent(t)
	out := make(chan MonitorEvent, 4)

	a.handleCommand(MonitorCommand{Kind: CommandTriggerManualSave}, out)

	select {
	case ev := <-out:
		if ev.Kind != EventManualSaveResult {
			t.Fatalf("Kind = %v, want EventManualSaveResult", ev.Kind)
		}
	default:
		t.Fatal("expected handleCommand to emit an event")
	}
}

func TestEmitIsNonBlockingOnFullChannel(t *testing.T) {
	a := newTestAgent(t)
	out := make(chan MonitorEvent) // unbuffered, no reader

	done := make(chan struct{})
	go func() {
		a.emit(out, MonitorEvent{Kind: EventSaveDetected})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit blocked on a full/unread channel")
	}
}

func TestEmitIsNilSafe(t *testing.T) {
	a := newTestAgent(t)
	a.emit(nil, MonitorEvent{Kind: EventSaveDetected}) // must not panic
}

func TestTranslateSyncEventMapsConflict(t *testing.T) {
	ev := translateSyncEvent(sync.OutEvent{Kind: sync.OutConflict, Conflict: sync.Conflict{Kind: sync.ConflictCloudOnly}})
	if ev.Kind != EventConflict {
		t.Fatalf("Kind = %v, want EventConflict", ev.Kind)
	}
	if ev.Conflict.Kind != sync.ConflictCloudOnly {
		t.Fatalf("Conflict.Kind = %v, want ConflictCloudOnly", ev.Conflict.Kind)
	}
}

func TestTranslateSyncEventMapsStatusChange(t *testing.T) {
	ev := translateSyncEvent(sync.OutEvent{Kind: sync.OutStatusChanged, Status: sync.SyncStatus{PendingUploads: 3}})
	if ev.Kind != EventSyncStatusChanged {
		t.Fatalf("Kind = %v, want EventSyncStatusChanged", ev.Kind)
	}
	if ev.Status.PendingUploads != 3 {
		t.Fatalf("PendingUploads = %d, want 3", ev.Status.PendingUploads)
	}
}

func TestDispatchWatchEventsStopsOnContextCancel(t *testing.T) {
	a := newTestAgent(t)
	a.watchEvents = make(chan watch.SaveEvent)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.dispatchWatchEvents(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatchWatchEvents did not stop after context cancellation")
	}
}

func TestDispatchWatchEventsClassifiesPlainFileAsPlainJob(t *testing.T) {
	a := newTestAgent(t)
	a.watchEvents = make(chan watch.SaveEvent, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.dispatchWatchEvents(ctx)

	a.watchEvents <- watch.SaveEvent{
		GameName: "Some Game",
		Emulator: "RetroArch",
		FilePath: filepath.Join(t.TempDir(), "game.srm"),
		FileHash: "h",
		FileSize: 10,
	}

	select {
	case j := <-a.jobs:
		if j.kind != jobPlainSave {
			t.Fatalf("kind = %v, want jobPlainSave", j.kind)
		}
		if j.gameName != "Some Game" {
			t.Fatalf("gameName = %q, want %q", j.gameName, "Some Game")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dispatched job")
	}
}
