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

// Package watch recursively watches a save directory and emits a
// SaveEvent whenever a tracked file's content actually changes.
// fsnotify itself only watches single directories, so the initial
// scan also registers a watch on every subdirectory found.
package watch

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/retrosave/agent-core/internal/agenterrors"
	"github.com/retrosave/agent-core/internal/hashing"
	syncutil "github.com/retrosave/agent-core/internal/sync"
)

// SaveEvent is emitted whenever a watched file's hash changes.
type SaveEvent struct {
	GameName string // annotated by the supervisor (C9); empty until then
	Emulator string // annotated by the supervisor (C9); empty until then
	FilePath string
	FileHash string
	FileSize int64
}

// defaultSaveExtensions is the PCSX2 save-file set from spec.md §4.8,
// used when New is given a nil set. internal/supervisor passes nil for
// every emulator, so every directory it watches uses this set.
var defaultSaveExtensions = map[string]bool{
	".ps2": true, ".p2s": true, ".mcd": true, ".mcr": true,
}

// Watcher recursively watches root, emitting SaveEvent onto an
// unbounded queue for every Create/Write on a tracked extension whose
// content hash actually changed.
type Watcher struct {
	fsw        *fsnotify.Watcher
	root       string
	extensions map[string]bool
	queue      *syncutil.Queue[SaveEvent]

	mu     sync.Mutex
	hashes map[string]string

	stopOnce sync.Once
	done     chan struct{}
}

// New performs the initial recursive scan of root (seeding the
// path→hash cache) and starts watching it. extensions is the set of
// lowercase, dot-prefixed save-file extensions to track; pass nil to
// use the PCSX2 default set.
func New(root string, extensions map[string]bool) (*Watcher, error) {
	if extensions == nil {
		extensions = defaultSaveExtensions
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, agenterrors.New("watch.New", agenterrors.KindIO, err)
	}

	w := &Watcher{
		fsw:        fsw,
		root:       root,
		extensions: extensions,
		queue:      syncutil.NewQueue[SaveEvent](),
		hashes:     map[string]string{},
		done:       make(chan struct{}),
	}

	if err := w.scanAndWatch(root); err != nil {
		fsw.Close()
		return nil, err
	}

	go w.loop()
	return w, nil
}

// Events returns the channel SaveEvents are delivered on.
func (w *Watcher) Events() <-chan SaveEvent {
	return w.queue.Chan()
}

// Stop unsubscribes and releases resources. Idempotent.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.fsw.Close()
		w.queue.Close()
	})
}

func (w *Watcher) scanAndWatch(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fsw.Add(path)
		}
		if !w.tracked(path) {
			return nil
		}
		if hash, err := hashing.Hash(path); err == nil {
			w.mu.Lock()
			w.hashes[path] = hash
			w.mu.Unlock()
		}
		return nil
	})
}

func (w *Watcher) tracked(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return w.extensions[ext]
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			// fsnotify surfaces watch-level errors (e.g. a removed
			// directory); there is nothing actionable per-event here,
			// so the watcher simply continues observing the rest of
			// the tree.
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if event.Op&fsnotify.Create != 0 {
			w.fsw.Add(event.Name)
		}
		return
	}
	if !w.tracked(event.Name) {
		return
	}

	hash, err := hashing.Hash(event.Name)
	if err != nil {
		return
	}

	w.mu.Lock()
	prev, existed := w.hashes[event.Name]
	changed := !existed || prev != hash
	w.hashes[event.Name] = hash
	w.mu.Unlock()

	if !changed {
		return
	}

	w.queue.Push(SaveEvent{
		FilePath: event.Name,
		FileHash: hash,
		FileSize: info.Size(),
	})
}
