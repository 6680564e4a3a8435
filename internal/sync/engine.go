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
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/retrosave/agent-core/internal/compress"
	"github.com/retrosave/agent-core/internal/hashing"
	"github.com/retrosave/agent-core/internal/store"
)

const (
	syncInterval  = 300 * time.Second
	maxAttempts   = 3
	listPageSize  = 100
	compressLevel = 3
)

// OutKind tags an Engine's outbound notification.
type OutKind int

const (
	OutStatusChanged OutKind = iota
	OutConflict
)

// OutEvent is what the engine reports upstream — folded, in the final
// wiring, into the agent's MonitorEvent stream.
type OutEvent struct {
	Kind     OutKind
	Status   SyncStatus
	Conflict Conflict
}

// Engine is the sync queue & engine of spec.md §4.14: it owns the
// upload queue, the game_cache, and SyncStatus exclusively, consuming
// SyncEvents and driving uploads against Client.
type Engine struct {
	client Client
	store  *store.Store
	token  func() (string, bool)
	out    chan<- OutEvent

	mu        sync.Mutex
	gameCache map[string]uuid.UUID
	pending   []UploadTask
	status    SyncStatus

	syncing atomic.Bool

	events *Queue[SyncEvent]
	stop   chan struct{}
	done   chan struct{}
}

// New returns an Engine. token returns the current access token, or
// false if the agent is not authenticated.
func New(client Client, st *store.Store, token func() (string, bool), out chan<- OutEvent) *Engine {
	return &Engine{
		client:    client,
		store:     st,
		token:     token,
		out:       out,
		gameCache: map[string]uuid.UUID{},
		events:    NewQueue[SyncEvent](),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Push enqueues a SyncEvent for the engine to process. Never blocks.
func (e *Engine) Push(ev SyncEvent) {
	e.events.Push(ev)
}

// Run processes events and ticks perform_sync every 300s, until Stop
// is called.
func (e *Engine) Run(ctx context.Context) {
	defer close(e.done)
	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-ctx.Done():
			return
		case ev := <-e.events.Chan():
			e.handle(ctx, ev)
		case <-ticker.C:
			if _, ok := e.token(); ok {
				e.performSync(ctx)
			}
		}
	}
}

// Stop signals Run to exit and waits for it to finish.
func (e *Engine) Stop() {
	close(e.stop)
	e.events.Close()
	<-e.done
}

func (e *Engine) handle(ctx context.Context, ev SyncEvent) {
	switch ev.Kind {
	case EventSaveDetected:
		e.enqueue(UploadTask{
			GameName:  ev.GameName,
			Emulator:  ev.Emulator,
			FilePath:  ev.FilePath,
			FileHash:  ev.FileHash,
			FileSize:  ev.FileSize,
			Timestamp: ev.Timestamp,
		})
	case EventSyncRequested:
		e.performSync(ctx)
	case EventAuthChanged:
		if ev.Authenticated {
			e.mu.Lock()
			e.gameCache = map[string]uuid.UUID{}
			e.mu.Unlock()
			e.performSync(ctx)
		}
	}
}

// enqueue appends task unless an in-flight task for the same
// (game, path) with the same hash is already queued — spec.md §5's
// coalesce-by-hash-equality ordering guarantee.
func (e *Engine) enqueue(task UploadTask) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, t := range e.pending {
		if t.GameName == task.GameName && t.FilePath == task.FilePath && t.FileHash == task.FileHash {
			return
		}
	}
	e.pending = append(e.pending, task)
	e.status.PendingUploads = len(e.pending)
}

func (e *Engine) gameCacheKey(name, emulator string) string {
	return name + "\x00" + emulator
}

// performSync is the critical section of spec.md §4.14: a second
// caller while a sync is already running returns immediately, the
// same single-flight idiom the teacher's raft bootstrap goroutine
// applies to its own leadership check.
func (e *Engine) performSync(ctx context.Context) {
	if !e.syncing.CompareAndSwap(false, true) {
		return
	}
	defer e.syncing.Store(false)

	token, ok := e.token()
	if !ok {
		return
	}

	e.setStatus(func(s *SyncStatus) { s.IsSyncing = true })
	defer e.setStatus(func(s *SyncStatus) { s.IsSyncing = false })

	e.mu.Lock()
	tasks := e.pending
	e.pending = nil
	e.mu.Unlock()
	e.setStatus(func(s *SyncStatus) { s.PendingUploads = 0 })

	for _, task := range tasks {
		if err := e.uploadWithRetry(ctx, token, task); err != nil {
			log.Printf("sync: upload dropped for %s/%s: %v", task.GameName, task.FilePath, err)
		}
	}

	now := time.Now()
	e.setStatus(func(s *SyncStatus) { s.LastSync = &now })

	if err := e.reconcileRemote(ctx, token); err != nil {
		log.Printf("sync: remote listing reconciliation failed: %v", err)
	}
}

func (e *Engine) uploadWithRetry(ctx context.Context, token string, task UploadTask) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := e.uploadOnce(ctx, token, task); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

func (e *Engine) uploadOnce(ctx context.Context, token string, task UploadTask) error {
	gameID, err := e.getOrRegisterGame(ctx, token, task.GameName, task.Emulator)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(task.FilePath)
	if err != nil {
		return err
	}
	compressed, _, err := compress.CompressBytes(data, compressLevel, true)
	if err != nil {
		return err
	}
	hash := hashing.HashBytes(compressed)

	uploadURL, _, err := e.client.InitUpload(ctx, token, gameID, hash, int64(len(compressed)), task.Timestamp)
	if err != nil {
		return err
	}
	if err := e.client.PutBytes(ctx, uploadURL, compressed); err != nil {
		return err
	}

	e.setStatus(func(s *SyncStatus) { s.TotalSynced++ })
	return nil
}

func (e *Engine) getOrRegisterGame(ctx context.Context, token, name, emulator string) (uuid.UUID, error) {
	key := e.gameCacheKey(name, emulator)

	e.mu.Lock()
	if id, ok := e.gameCache[key]; ok {
		e.mu.Unlock()
		return id, nil
	}
	e.mu.Unlock()

	id, err := e.client.RegisterGame(ctx, token, name, emulator)
	if err != nil {
		return uuid.Nil, err
	}

	e.mu.Lock()
	e.gameCache[key] = id
	e.mu.Unlock()
	return id, nil
}

// reconcileRemote pages through the remote save listing, joins it
// against the local store by game name (the only key both the local
// store and the remote listing agree on — the local store's own IDs
// are generated independently of the server's, and only become the
// same UUID once a game passes through getOrRegisterGame), and
// dispatches any divergence to the conflict analyser — never
// overwriting either side itself.
func (e *Engine) reconcileRemote(ctx context.Context, token string) error {
	remote := map[string]VersionFacet{}

	for page := 1; ; page++ {
		saves, hasMore, err := e.client.ListSaves(ctx, token, page, listPageSize)
		if err != nil {
			return err
		}
		for _, s := range saves {
			f := remote[s.GameName]
			f.Present = true
			f.SaveCount++
			if s.Timestamp.After(f.Timestamp) {
				f.Timestamp = s.Timestamp
				f.Hash = s.Hash
			}
			remote[s.GameName] = f
		}
		if !hasMore {
			break
		}
	}

	local := map[string]VersionFacet{}
	localID := map[string]string{}
	for _, g := range e.store.GetAllGames() {
		saves := e.store.GetSavesForGame(g.ID, 0)
		f := VersionFacet{Present: true, SaveCount: len(saves)}
		if len(saves) > 0 {
			f.Hash = saves[0].Hash
			f.Timestamp = saves[0].Timestamp
		}
		local[g.Name] = f
		localID[g.Name] = g.ID
	}

	names := map[string]struct{}{}
	for name := range remote {
		names[name] = struct{}{}
	}
	for name := range local {
		names[name] = struct{}{}
	}

	var pairs []GamePair
	for name := range names {
		pairs = append(pairs, GamePair{GameID: localID[name], GameName: name, Local: local[name], Cloud: remote[name]})
	}

	conflicts := Analyze(pairs)
	for _, c := range conflicts {
		e.emit(OutEvent{Kind: OutConflict, Conflict: c})
	}
	return nil
}

func (e *Engine) setStatus(mutate func(*SyncStatus)) {
	e.mu.Lock()
	mutate(&e.status)
	s := e.status
	e.mu.Unlock()
	e.emit(OutEvent{Kind: OutStatusChanged, Status: s})
}

// Status returns the current SyncStatus snapshot.
func (e *Engine) Status() SyncStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *Engine) emit(ev OutEvent) {
	if e.out == nil {
		return
	}
	select {
	case e.out <- ev:
	default:
		// A slow or absent consumer must never stall the sync loop;
		// status/conflict events are snapshots, not a reliable log.
	}
}
