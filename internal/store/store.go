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

// Package store is the local, on-disk record of games, saves, and
// settings (spec.md's C10). Each game and save is one JSON document
// under the data directory, in the shape of the teacher's GameStore;
// the games/saves/timestamp relationship the spec describes as SQL
// tables and indexes is instead two in-memory indices rebuilt from
// those documents at startup.
package store

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/c2FmZQ/storage"
	"github.com/c2FmZQ/storage/crypto"
	"github.com/google/uuid"

	"github.com/retrosave/agent-core/internal/agenterrors"
)

// Game is one tracked title: an emulator plus a name, with rollup
// counters updated on every recorded save.
type Game struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Emulator   string     `json:"emulator"`
	ExternalID string     `json:"externalId,omitempty"`
	LastPlayed *time.Time `json:"lastPlayed,omitempty"`
	TotalSaves int        `json:"totalSaves"`
}

// Save is one recorded version of a game's save data.
type Save struct {
	ID         string    `json:"id"`
	GameID     string    `json:"gameId"`
	Path       string    `json:"path"`
	Hash       string    `json:"hash"`
	Size       int64     `json:"size"`
	BackupPath string    `json:"backupPath,omitempty"`
	Version    int       `json:"version"`
	Timestamp  time.Time `json:"timestamp"`
}

// Stats summarizes the store's size, per spec.md's get_stats.
type Stats struct {
	GameCount int
	SaveCount int
}

// Store is the C10 local store. All operations are serialized through
// mu, matching the "small connection pool" spec.md describes with a
// single in-process mutex instead — there is exactly one writer
// process (the agent), so a pool buys nothing a mutex doesn't already
// give.
type Store struct {
	storage *storage.Storage
	dataDir string

	mu       sync.Mutex
	games    map[string]*Game
	saves    map[string]*Save // save ID -> Save
	byGameID map[string][]string // game ID -> save IDs, insertion order
	settings map[string]string
}

// Open loads (or initializes) the store rooted at dataDir. masterKey
// encrypts every document at rest the same way the teacher's own
// storage.New caller does; a nil masterKey leaves the store
// unencrypted, matching storage.New's own "no key means plaintext"
// contract (see cmd/retrosaved's master-key wiring for when that
// happens).
func Open(dataDir string, masterKey crypto.MasterKey) (*Store, error) {
	s := &Store{
		storage:  storage.New(dataDir, masterKey),
		dataDir:  dataDir,
		games:    map[string]*Game{},
		saves:    map[string]*Save{},
		byGameID: map[string][]string{},
		settings: map[string]string{},
	}
	if err := s.loadGames(); err != nil {
		return nil, agenterrors.New("store.Open", agenterrors.KindDB, err)
	}
	if err := s.loadSaves(); err != nil {
		return nil, agenterrors.New("store.Open", agenterrors.KindDB, err)
	}
	if err := s.loadSettings(); err != nil {
		return nil, agenterrors.New("store.Open", agenterrors.KindDB, err)
	}
	return s, nil
}

func (s *Store) gamePath(id string) string  { return filepath.Join("games", id+".json") }
func (s *Store) savePath(id string) string  { return filepath.Join("saves", id+".json") }
func (s *Store) settingsPath() string       { return "settings.json" }

func (s *Store) loadGames() error {
	var index []string
	if err := s.storage.ReadDataFile("games_index.json", &index); err != nil {
		return nil // no index yet: fresh store
	}
	for _, id := range index {
		var g Game
		if err := s.storage.ReadDataFile(s.gamePath(id), &g); err != nil {
			continue
		}
		s.games[id] = &g
	}
	return nil
}

func (s *Store) loadSaves() error {
	var index []string
	if err := s.storage.ReadDataFile("saves_index.json", &index); err != nil {
		return nil
	}
	for _, id := range index {
		var sv Save
		if err := s.storage.ReadDataFile(s.savePath(id), &sv); err != nil {
			continue
		}
		cp := sv
		s.saves[id] = &cp
		s.byGameID[sv.GameID] = append(s.byGameID[sv.GameID], id)
	}
	for gameID := range s.byGameID {
		s.sortSavesDesc(gameID)
	}
	return nil
}

func (s *Store) loadSettings() error {
	if err := s.storage.ReadDataFile(s.settingsPath(), &s.settings); err != nil {
		s.settings = map[string]string{}
	}
	return nil
}

func (s *Store) persistGamesIndex() error {
	ids := make([]string, 0, len(s.games))
	for id := range s.games {
		ids = append(ids, id)
	}
	return s.storage.SaveDataFile("games_index.json", ids)
}

func (s *Store) persistSavesIndex() error {
	ids := make([]string, 0, len(s.saves))
	for id := range s.saves {
		ids = append(ids, id)
	}
	return s.storage.SaveDataFile("saves_index.json", ids)
}

// removeFile deletes a document from disk directly, mirroring the
// teacher's PurgeGame: the storage package has no delete operation of
// its own, only Save/Read, so permanent removal goes straight through
// os.Remove on the underlying path. A missing file is not an error.
func (s *Store) removeFile(relPath string) error {
	if err := os.Remove(filepath.Join(s.dataDir, relPath)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *Store) sortSavesDesc(gameID string) {
	ids := s.byGameID[gameID]
	sort.SliceStable(ids, func(i, j int) bool {
		return s.saves[ids[i]].Timestamp.After(s.saves[ids[j]].Timestamp)
	})
	s.byGameID[gameID] = ids
}

// GetOrCreateGame implements spec.md's UPSERT on (name, emulator).
func (s *Store) GetOrCreateGame(name, emulator, externalID string) (*Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, g := range s.games {
		if g.Name == name && g.Emulator == emulator {
			return g, nil
		}
	}

	g := &Game{
		ID:         uuid.NewString(),
		Name:       name,
		Emulator:   emulator,
		ExternalID: externalID,
	}
	s.games[g.ID] = g
	if err := s.persistGame(g); err != nil {
		return nil, err
	}
	if err := s.persistGamesIndex(); err != nil {
		return nil, err
	}
	return g, nil
}

func (s *Store) persistGame(g *Game) error {
	if err := s.storage.SaveDataFile(s.gamePath(g.ID), g); err != nil {
		return agenterrors.New("store.persistGame", agenterrors.KindDB, err)
	}
	return nil
}

// RecordSave computes version = COALESCE(MAX(version), 0) + 1 over the
// game's existing saves, appends the new row, and rolls up
// games.last_played / games.total_saves. The mutex below is held across
// the MAX computation and the insert, so concurrent callers in this
// process always receive distinct version numbers; nothing coordinates
// with another process writing the same data directory.
func (s *Store) RecordSave(gameID, path, hash string, size int64, backupPath string) (*Save, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.games[gameID]
	if !ok {
		return nil, agenterrors.Newf("store.RecordSave", agenterrors.KindInvariant, "unknown game %s", gameID)
	}

	maxVersion := 0
	for _, id := range s.byGameID[gameID] {
		if v := s.saves[id].Version; v > maxVersion {
			maxVersion = v
		}
	}

	sv := &Save{
		ID:         uuid.NewString(),
		GameID:     gameID,
		Path:       path,
		Hash:       hash,
		Size:       size,
		BackupPath: backupPath,
		Version:    maxVersion + 1,
		Timestamp:  time.Now(),
	}
	s.saves[sv.ID] = sv
	s.byGameID[gameID] = append(s.byGameID[gameID], sv.ID)
	s.sortSavesDesc(gameID)

	now := sv.Timestamp
	g.LastPlayed = &now
	g.TotalSaves++

	if err := s.storage.SaveDataFile(s.savePath(sv.ID), sv); err != nil {
		return nil, agenterrors.New("store.RecordSave", agenterrors.KindDB, err)
	}
	if err := s.persistSavesIndex(); err != nil {
		return nil, err
	}
	if err := s.persistGame(g); err != nil {
		return nil, err
	}
	if err := s.persistGamesIndex(); err != nil {
		return nil, err
	}
	return sv, nil
}

// GetSavesForGame returns a game's saves ordered by timestamp DESC,
// capped at limit (0 means unlimited).
func (s *Store) GetSavesForGame(gameID string, limit int) []*Save {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.byGameID[gameID]
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}
	out := make([]*Save, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.saves[id])
	}
	return out
}

// CleanupOldSaves deletes every save for gameID past offset keepCount
// in timestamp-DESC order, returning the deleted rows so their backup
// files can be removed by the caller.
func (s *Store) CleanupOldSaves(gameID string, keepCount int) ([]*Save, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.byGameID[gameID]
	if keepCount < 0 || keepCount >= len(ids) {
		return nil, nil
	}
	toDelete := append([]string(nil), ids[keepCount:]...)
	s.byGameID[gameID] = append([]string(nil), ids[:keepCount]...)

	deleted := make([]*Save, 0, len(toDelete))
	for _, id := range toDelete {
		deleted = append(deleted, s.saves[id])
		delete(s.saves, id)
		if err := s.removeFile(s.savePath(id)); err != nil {
			return deleted, agenterrors.New("store.CleanupOldSaves", agenterrors.KindIO, err)
		}
	}
	if err := s.persistSavesIndex(); err != nil {
		return deleted, err
	}
	return deleted, nil
}

// GetAllGames returns every game ordered by last_played DESC, with
// never-played games (nil LastPlayed) last, matching SQL's NULLS LAST.
func (s *Store) GetAllGames() []*Game {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Game, 0, len(s.games))
	for _, g := range s.games {
		out = append(out, g)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].LastPlayed, out[j].LastPlayed
		switch {
		case a == nil && b == nil:
			return strings.Compare(out[i].ID, out[j].ID) < 0
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
	return out
}

// GetSetting and SetSetting are the key/value UPSERT table spec.md
// names; used for things like "last sync cursor" or user preferences
// that don't warrant their own document.
func (s *Store) GetSetting(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.settings[key]
	return v, ok
}

func (s *Store) SetSetting(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	if err := s.storage.SaveDataFile(s.settingsPath(), s.settings); err != nil {
		return agenterrors.New("store.SetSetting", agenterrors.KindDB, err)
	}
	return nil
}

// GetStats returns the total game and save counts.
func (s *Store) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{GameCount: len(s.games), SaveCount: len(s.saves)}
}

// DeleteGame cascades: every save belonging to gameID is deleted too,
// matching spec.md's foreign-key-cascade requirement.
func (s *Store) DeleteGame(gameID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.byGameID[gameID] {
		delete(s.saves, id)
		if err := s.removeFile(s.savePath(id)); err != nil {
			return agenterrors.New("store.DeleteGame", agenterrors.KindIO, err)
		}
	}
	delete(s.byGameID, gameID)
	delete(s.games, gameID)

	if err := s.removeFile(s.gamePath(gameID)); err != nil {
		return agenterrors.New("store.DeleteGame", agenterrors.KindIO, err)
	}
	if err := s.persistSavesIndex(); err != nil {
		return err
	}
	return s.persistGamesIndex()
}
