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

package backupstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestBackupCopiesFileWithVersionedName(t *testing.T) {
	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "Mcd001.ps2")
	if err := os.WriteFile(src, []byte("save data"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s := New(t.TempDir())
	path, err := s.Backup(src, "FIFA 05", 3)
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s): %v", path, err)
	}
	if string(data) != "save data" {
		t.Fatalf("copied content = %q, want %q", data, "save data")
	}
	if filepath.Base(filepath.Dir(path)) != "FIFA 05" {
		t.Fatalf("expected backup under a FIFA 05 directory, got %s", path)
	}
	got := filepath.Base(path)
	if !strings.Contains(got, "Mcd001") || !strings.Contains(got, "_v3.bak") {
		t.Fatalf("backup filename %q missing expected components", got)
	}
}

func TestCleanupOldBackupsKeepsNewestByMtime(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	dir := filepath.Join(root, "FIFA 05")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	var names []string
	for i := 0; i < 5; i++ {
		name := filepath.Join(dir, "save_v"+string(rune('0'+i))+".bak")
		if err := os.WriteFile(name, []byte("x"), 0o600); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		mtime := time.Now().Add(time.Duration(i) * time.Minute)
		if err := os.Chtimes(name, mtime, mtime); err != nil {
			t.Fatalf("Chtimes: %v", err)
		}
		names = append(names, name)
	}

	if err := s.CleanupOldBackups("FIFA 05", 2); err != nil {
		t.Fatalf("CleanupOldBackups: %v", err)
	}

	remaining, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("len(remaining) = %d, want 2", len(remaining))
	}
	// The two newest (highest index) files should have survived.
	for _, stale := range names[:3] {
		if _, err := os.Stat(stale); !os.IsNotExist(err) {
			t.Fatalf("expected %s to have been removed", stale)
		}
	}
}

func TestCleanupOldBackupsNoopWhenMissingDirectory(t *testing.T) {
	s := New(t.TempDir())
	if err := s.CleanupOldBackups("never backed up", 3); err != nil {
		t.Fatalf("CleanupOldBackups on missing dir: %v", err)
	}
}

func TestCleanupOldBackupsNoopUnderMax(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	src := filepath.Join(root, "save.ps2")
	if err := os.WriteFile(src, []byte("x"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := s.Backup(src, "FIFA 05", 1); err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if err := s.CleanupOldBackups("FIFA 05", 5); err != nil {
		t.Fatalf("CleanupOldBackups: %v", err)
	}
	entries, _ := os.ReadDir(filepath.Join(root, "FIFA 05"))
	if len(entries) != 1 {
		t.Fatalf("expected the single backup to survive, got %d entries", len(entries))
	}
}
