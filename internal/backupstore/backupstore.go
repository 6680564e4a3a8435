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

// Package backupstore copies save files into a per-game backup
// directory, versioned and timestamped, and prunes the oldest copies
// once a game accumulates more than a configured maximum (C11).
package backupstore

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/retrosave/agent-core/internal/agenterrors"
)

// Store roots every backup under a per-user data directory,
// partitioned by game name.
type Store struct {
	root string
}

// New returns a Store rooted at root. The directory is created lazily,
// per game, on the first Backup call.
func New(root string) *Store {
	return &Store{root: root}
}

// Backup copies src into <root>/<gameName>/<name>_<YYYYMMDD_HHMMSS>_v<version>.bak
// and returns the resulting path.
func (s *Store) Backup(src, gameName string, version int) (string, error) {
	dir := filepath.Join(s.root, gameName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", agenterrors.New("backupstore.Backup", agenterrors.KindIO, err)
	}

	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	name := fmt.Sprintf("%s_%s_v%d.bak", base, time.Now().Format("20060102_150405"), version)
	dst := filepath.Join(dir, name)

	if err := copyFile(src, dst); err != nil {
		return "", agenterrors.New("backupstore.Backup", agenterrors.KindIO, err)
	}
	return dst, nil
}

// CleanupOldBackups deletes every backup for gameName beyond the
// newest max, ordered by mtime ascending (oldest first). Deletion
// failures are logged and otherwise ignored — a stray .bak the OS
// won't let go of is not worth failing the whole cleanup pass over.
func (s *Store) CleanupOldBackups(gameName string, max int) error {
	dir := filepath.Join(s.root, gameName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return agenterrors.New("backupstore.CleanupOldBackups", agenterrors.KindIO, err)
	}

	type backup struct {
		path    string
		modTime time.Time
	}
	backups := make([]backup, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		backups = append(backups, backup{path: filepath.Join(dir, e.Name()), modTime: info.ModTime()})
	}
	if len(backups) <= max {
		return nil
	}

	sort.Slice(backups, func(i, j int) bool { return backups[i].modTime.Before(backups[j].modTime) })

	for _, b := range backups[:len(backups)-max] {
		if err := os.Remove(b.path); err != nil {
			log.Printf("backupstore: failed to remove old backup %s: %v", b.path, err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
