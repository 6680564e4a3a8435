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
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/retrosave/agent-core/internal/store"
)

// fakeClient is an in-memory stand-in for the real backend, letting
// the engine's tests exercise retry/dedup/reconcile logic without an
// httptest server.
type fakeClient struct {
	mu sync.Mutex

	registerCalls int
	failUploads   int // InitUpload fails this many times before succeeding
	uploadCalls   int
	uploaded      [][]byte

	listPages [][]RemoteSave
}

func (f *fakeClient) RegisterGame(ctx context.Context, token, name, emulator string) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registerCalls++
	return uuid.New(), nil
}

func (f *fakeClient) InitUpload(ctx context.Context, token string, gameID uuid.UUID, hash string, size int64, ts time.Time) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadCalls++
	if f.failUploads > 0 {
		f.failUploads--
		return "", "", fmt.Errorf("simulated transient failure")
	}
	return "http://upload.example/put", "save-id", nil
}

func (f *fakeClient) PutBytes(ctx context.Context, uploadURL string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploaded = append(f.uploaded, data)
	return nil
}

func (f *fakeClient) ListSaves(ctx context.Context, token string, page, perPage int) ([]RemoteSave, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := page - 1
	if idx < 0 || idx >= len(f.listPages) {
		return nil, false, nil
	}
	return f.listPages[idx], idx < len(f.listPages)-1, nil
}

func (f *fakeClient) PushSetting(ctx context.Context, token, key, value string) error {
	return nil
}

func tokenAlways(tok string) func() (string, bool) {
	return func() (string, bool) { return tok, true }
}

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestEngineUploadsQueuedTask(t *testing.T) {
	dir := t.TempDir()
	savePath := writeFile(t, dir, "save.dat", []byte("hello world"))

	st, err := store.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}

	client := &fakeClient{}
	e := New(client, st, tokenAlways("tok"), nil)

	ctx := context.Background()
	e.handle(ctx, SyncEvent{Kind: EventSaveDetected, GameName: "Test Game", Emulator: "PCSX2", FilePath: savePath, FileHash: "h1", Timestamp: time.Now()})
	e.performSync(ctx)

	if client.registerCalls != 1 {
		t.Fatalf("registerCalls = %d, want 1", client.registerCalls)
	}
	if len(client.uploaded) != 1 {
		t.Fatalf("uploaded = %d, want 1", len(client.uploaded))
	}
}

func TestEngineEnqueueCoalescesByHash(t *testing.T) {
	st, err := store.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	e := New(&fakeClient{}, st, tokenAlways("tok"), nil)

	task := UploadTask{GameName: "G", FilePath: "/p", FileHash: "h"}
	e.enqueue(task)
	e.enqueue(task)

	e.mu.Lock()
	n := len(e.pending)
	e.mu.Unlock()
	if n != 1 {
		t.Fatalf("pending = %d, want 1 (duplicate should coalesce)", n)
	}
}

func TestEnginePerformSyncReentrancyGuardDropsConcurrentCaller(t *testing.T) {
	st, err := store.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	e := New(&fakeClient{}, st, tokenAlways("tok"), nil)

	e.syncing.Store(true)
	defer e.syncing.Store(false)

	done := make(chan struct{})
	go func() {
		e.performSync(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("performSync should return immediately when already syncing")
	}
}

func TestEngineUploadRetriesThenSucceeds(t *testing.T) {
	dir := t.TempDir()
	savePath := writeFile(t, dir, "save.dat", []byte("payload"))

	st, err := store.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	client := &fakeClient{failUploads: 2}
	e := New(client, st, tokenAlways("tok"), nil)

	task := UploadTask{GameName: "G", Emulator: "PCSX2", FilePath: savePath, FileHash: "h1", Timestamp: time.Now()}
	if err := e.uploadWithRetry(context.Background(), "tok", task); err != nil {
		t.Fatalf("uploadWithRetry: %v", err)
	}
	if len(client.uploaded) != 1 {
		t.Fatalf("expected exactly one successful PUT, got %d", len(client.uploaded))
	}
}

func TestEngineUploadGivesUpAfterMaxAttempts(t *testing.T) {
	dir := t.TempDir()
	savePath := writeFile(t, dir, "save.dat", []byte("payload"))

	st, err := store.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	client := &fakeClient{failUploads: 10}
	e := New(client, st, tokenAlways("tok"), nil)

	task := UploadTask{GameName: "G", Emulator: "PCSX2", FilePath: savePath, FileHash: "h1", Timestamp: time.Now()}
	if err := e.uploadWithRetry(context.Background(), "tok", task); err == nil {
		t.Fatal("expected uploadWithRetry to give up after maxAttempts")
	}
	if client.uploadCalls != maxAttempts {
		t.Fatalf("uploadCalls = %d, want %d", client.uploadCalls, maxAttempts)
	}
}

func TestEngineReconcileEmitsConflictForCloudOnlyGame(t *testing.T) {
	st, err := store.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	client := &fakeClient{listPages: [][]RemoteSave{
		{{GameID: "srv-1", GameName: "Cloud Only Game", Hash: "abc", Timestamp: time.Now()}},
	}}
	out := make(chan OutEvent, 16)
	e := New(client, st, tokenAlways("tok"), out)

	if err := e.reconcileRemote(context.Background(), "tok"); err != nil {
		t.Fatalf("reconcileRemote: %v", err)
	}

	found := false
	for {
		select {
		case ev := <-out:
			if ev.Kind == OutConflict && ev.Conflict.Kind == ConflictCloudOnly {
				found = true
			}
		default:
			if !found {
				t.Fatal("expected a CloudOnly conflict to be emitted")
			}
			return
		}
	}
}
