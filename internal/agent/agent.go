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
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/c2FmZQ/storage/crypto"

	"github.com/retrosave/agent-core/internal/agenterrors"
	"github.com/retrosave/agent-core/internal/auth"
	"github.com/retrosave/agent-core/internal/backupstore"
	"github.com/retrosave/agent-core/internal/cardtracker"
	"github.com/retrosave/agent-core/internal/detect"
	"github.com/retrosave/agent-core/internal/gameid"
	"github.com/retrosave/agent-core/internal/platform"
	"github.com/retrosave/agent-core/internal/realtime"
	"github.com/retrosave/agent-core/internal/savetype"
	"github.com/retrosave/agent-core/internal/store"
	"github.com/retrosave/agent-core/internal/supervisor"
	"github.com/retrosave/agent-core/internal/sync"
	"github.com/retrosave/agent-core/internal/watch"
)

// Config bundles everything New needs to wire an Agent.
type Config struct {
	DataDir   string // holds retrosave.db's file-backed tables and auth.json
	BackupDir string

	// MasterKey encrypts the local store at rest, exactly as the
	// teacher's own main.go wires a crypto.MasterKey into
	// storage.New. Nil leaves the store unencrypted; cmd/retrosaved
	// passes nil when RETROSAVE_MASTER_KEY is unset and no master key
	// file exists yet.
	MasterKey crypto.MasterKey

	ServerBaseURL string
	RealtimeURL   string
	AuthUsername  string

	SupervisorInterval time.Duration // spec.md default ~5s
	Workers            int           // bounded CPU-bound pool size, default 4
	KeepVersions       int           // local saves/backups retained per game, default 20
}

func (c Config) withDefaults() Config {
	if c.SupervisorInterval <= 0 {
		c.SupervisorInterval = 5 * time.Second
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.KeepVersions <= 0 {
		c.KeepVersions = 20
	}
	return c
}

// Agent owns the full C1–C15 pipeline: the supervisor detects a save,
// a bounded worker pool records and backs it up, and the result is
// handed to the sync engine — the "who calls whom" the teacher leaves
// implicit in a single binary's main(), made explicit here since this
// core is a library an excluded UI process drives (SPEC_FULL.md §2).
type Agent struct {
	cfg Config

	store   *store.Store
	backups *backupstore.Store
	tracker *cardtracker.Tracker

	tokens *tokenProvider

	sup          *supervisor.Supervisor
	watchEvents  chan watch.SaveEvent
	syncEngine   *sync.Engine
	syncOut      chan sync.OutEvent
	settingsSync *sync.SettingsSync
	realtime     *realtime.Client

	jobs chan job
	out  chan<- MonitorEvent
}

// New wires every component per cfg but does not start anything —
// call Run to start the supervisor, worker pool, sync engine, and
// realtime client.
func New(cfg Config) (*Agent, error) {
	cfg = cfg.withDefaults()

	st, err := store.Open(cfg.DataDir, cfg.MasterKey)
	if err != nil {
		return nil, err
	}

	locator, inspector := platform.New()
	resolver := gameid.New()
	detector := detect.New(inspector, resolver)

	authMgr := auth.NewManager(cfg.ServerBaseURL, filepath.Join(cfg.DataDir, "auth.json"), cfg.AuthUsername)
	tokens := newTokenProvider(authMgr)

	syncClient := sync.NewHTTPClient(cfg.ServerBaseURL)
	syncOut := make(chan sync.OutEvent, 64)
	syncEngine := sync.New(syncClient, st, tokens.Token, syncOut)
	settingsSync := sync.NewSettingsSync(syncClient, st, tokens.Token)

	rt := realtime.New(cfg.RealtimeURL, tokens.Token, auth.Fingerprint)

	watchEvents := make(chan watch.SaveEvent, 64)
	sup := supervisor.New(cfg.SupervisorInterval, locator, detector, watchEvents)

	return &Agent{
		cfg:          cfg,
		store:        st,
		backups:      backupstore.New(cfg.BackupDir),
		tracker:      cardtracker.New(resolver),
		tokens:       tokens,
		sup:          sup,
		watchEvents:  watchEvents,
		syncEngine:   syncEngine,
		syncOut:      syncOut,
		settingsSync: settingsSync,
		realtime:     rt,
		jobs:         make(chan job, 64),
	}, nil
}

// Run authenticates, starts every subsystem, and blocks relaying
// events to out and commands from cmds until ctx is cancelled.
func (a *Agent) Run(ctx context.Context, out chan<- MonitorEvent, cmds <-chan MonitorCommand) error {
	a.out = out

	if _, err := a.tokens.ensure(ctx); err != nil {
		log.Printf("agent: startup authentication failed, continuing unauthenticated: %v", err)
	}

	a.realtime.On(realtime.TypeSettingsUpdated, a.onSettingsUpdated)

	a.sup.OnEmulatorDetected = func(name string) {
		a.emit(out, MonitorEvent{Kind: EventEmulatorDetected, Name: name})
	}
	a.sup.OnEmulatorStopped = func(name string) {
		a.emit(out, MonitorEvent{Kind: EventEmulatorStopped, Name: name})
	}
	a.sup.OnGameDetected = func(name string) {
		a.emit(out, MonitorEvent{Kind: EventGameDetected, Name: name})
	}

	go a.sup.Run()
	go a.syncEngine.Run(ctx)
	go func() {
		if err := a.realtime.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("agent: realtime client stopped: %v", err)
		}
	}()

	for i := 0; i < a.cfg.Workers; i++ {
		go a.worker(ctx)
	}
	go a.dispatchWatchEvents(ctx)
	go a.relaySyncEvents(ctx, out)

	for {
		select {
		case <-ctx.Done():
			a.shutdown()
			return ctx.Err()
		case cmd := <-cmds:
			a.handleCommand(cmd, out)
		}
	}
}

func (a *Agent) shutdown() {
	a.sup.Stop()
	a.syncEngine.Stop()
}

// dispatchWatchEvents classifies each incoming watch.SaveEvent and
// hands it to the bounded worker pool, so a slow memory-card parse
// can't starve fs-notify's own channel drain, per SPEC_FULL.md §4.
func (a *Agent) dispatchWatchEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-a.watchEvents:
			if !ok {
				return
			}
			j := job{
				gameName: ev.GameName,
				emulator: ev.Emulator,
				path:     ev.FilePath,
				hash:     ev.FileHash,
				size:     ev.FileSize,
				seenAt:   time.Now(),
			}
			if st, ok := savetype.Classify(ev.FilePath, ev.Emulator, nil); ok && st.Kind == savetype.KindMemoryCard {
				j.kind = jobMemoryCard
			}
			select {
			case a.jobs <- j:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (a *Agent) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-a.jobs:
			if err := a.process(j); err != nil {
				log.Printf("agent: failed to process %s: %v", j.path, err)
			}
		}
	}
}

func (a *Agent) process(j job) error {
	switch j.kind {
	case jobMemoryCard:
		return a.processMemoryCard(j)
	default:
		return a.processPlainSave(j)
	}
}

func (a *Agent) processPlainSave(j job) error {
	g, err := a.store.GetOrCreateGame(j.gameName, j.emulator, "")
	if err != nil {
		return err
	}
	return a.recordAndEnqueue(g.ID, j.gameName, j.emulator, j.path, j.hash, j.size, j.seenAt)
}

// processMemoryCard localizes which save slot changed within the card
// image before deciding whether to record anything, per C12: a whole-
// card hash change is meaningless on its own — only the game whose
// slot actually changed should produce an upload.
func (a *Agent) processMemoryCard(j job) error {
	data, err := os.ReadFile(j.path)
	if err != nil {
		return agenterrors.New("agent.processMemoryCard", agenterrors.KindIO, err)
	}
	change, err := a.tracker.Update(j.path, data)
	if err != nil {
		return err
	}
	if !cardtracker.ShouldUpload(change, j.gameName) {
		return nil
	}

	name := change.GameName
	if name == "" {
		name = j.gameName
	}
	g, err := a.store.GetOrCreateGame(name, j.emulator, change.GameID)
	if err != nil {
		return err
	}
	return a.recordAndEnqueue(g.ID, name, j.emulator, j.path, j.hash, j.size, j.seenAt)
}

func (a *Agent) recordAndEnqueue(gameID, gameName, emulator, path, hash string, size int64, ts time.Time) error {
	version := len(a.store.GetSavesForGame(gameID, 0)) + 1
	backupPath, err := a.backups.Backup(path, gameName, version)
	if err != nil {
		return err
	}
	if _, err := a.store.RecordSave(gameID, path, hash, size, backupPath); err != nil {
		return err
	}
	if _, err := a.store.CleanupOldSaves(gameID, a.cfg.KeepVersions); err != nil {
		log.Printf("agent: cleanup of old saves failed for %s: %v", gameName, err)
	}
	if err := a.backups.CleanupOldBackups(gameName, a.cfg.KeepVersions); err != nil {
		log.Printf("agent: cleanup of old backups failed for %s: %v", gameName, err)
	}

	a.syncEngine.Push(sync.SyncEvent{
		Kind:      sync.EventSaveDetected,
		GameName:  gameName,
		Emulator:  emulator,
		FilePath:  path,
		FileHash:  hash,
		FileSize:  size,
		Timestamp: ts,
	})
	a.emit(a.out, MonitorEvent{Kind: EventSaveDetected, Path: path})
	return nil
}

// relaySyncEvents translates the sync engine's snapshots into the
// outbound MonitorEvent stream.
func (a *Agent) relaySyncEvents(ctx context.Context, out chan<- MonitorEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-a.syncOut:
			if !ok {
				return
			}
			a.emit(out, translateSyncEvent(ev))
		}
	}
}

func translateSyncEvent(ev sync.OutEvent) MonitorEvent {
	switch ev.Kind {
	case sync.OutConflict:
		return MonitorEvent{Kind: EventConflict, Conflict: ev.Conflict}
	default:
		return MonitorEvent{Kind: EventSyncStatusChanged, Status: ev.Status}
	}
}

// emit is a non-blocking send, matching the sync engine's own
// snapshot-not-log emission pattern: a slow or absent UI consumer must
// never stall the agent's own pipeline.
func (a *Agent) emit(out chan<- MonitorEvent, ev MonitorEvent) {
	if out == nil {
		return
	}
	select {
	case out <- ev:
	default:
	}
}

func (a *Agent) handleCommand(cmd MonitorCommand, out chan<- MonitorEvent) {
	switch cmd.Kind {
	case CommandTriggerManualSave:
		a.triggerManualSave(out)
	}
}

// triggerManualSave forces an immediate sync pass instead of waiting
// for the 300s tick. Since the engine drains asynchronously, the
// reported outcome only distinguishes "nothing was queued" from
// "a sync pass was requested" — it does not wait for upload completion.
func (a *Agent) triggerManualSave(out chan<- MonitorEvent) {
	status := a.syncEngine.Status()
	a.syncEngine.Push(sync.SyncEvent{Kind: sync.EventSyncRequested})

	if status.PendingUploads == 0 {
		a.emit(out, MonitorEvent{Kind: EventManualSaveResult, Outcome: ManualSaveNoChanges})
		return
	}
	a.emit(out, MonitorEvent{Kind: EventManualSaveResult, Outcome: ManualSaveSuccess})
}

// onSettingsUpdated applies a server-pushed settings_updated message
// back into the local store, the inbound half of settings_sync.rs.
func (a *Agent) onSettingsUpdated(msg realtime.Message) {
	var payload struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		log.Printf("agent: malformed settings_updated payload: %v", err)
		return
	}
	if err := a.settingsSync.ApplyRemote(payload.Key, payload.Value); err != nil {
		log.Printf("agent: failed to apply remote setting %q: %v", payload.Key, err)
	}
}
