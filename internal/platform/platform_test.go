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

package platform

import (
	"os"
	"path/filepath"
	"testing"
)

type fakeLocator struct {
	dirs []string
}

func (f fakeLocator) CandidateSaveDirs(string) []string { return f.dirs }

func TestResolveSaveDirFirstExistingWins(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "existing")
	if err := os.MkdirAll(existing, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	missing := filepath.Join(dir, "missing")

	got := ResolveSaveDir(fakeLocator{dirs: []string{missing, existing}}, "pcsx2")
	if got != existing {
		t.Fatalf("ResolveSaveDir = %q, want %q", got, existing)
	}
}

func TestResolveSaveDirNoneExist(t *testing.T) {
	dir := t.TempDir()
	got := ResolveSaveDir(fakeLocator{dirs: []string{
		filepath.Join(dir, "a"), filepath.Join(dir, "b"),
	}}, "pcsx2")
	if got != "" {
		t.Fatalf("ResolveSaveDir = %q, want empty", got)
	}
}

func TestParseRetroArchConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "retroarch.cfg")
	content := "# comment\n" +
		"savefile_directory = \"/home/user/saves\"\n" +
		"savestate_directory = \"/home/user/states\"\n" +
		"\n" +
		"video_fullscreen = \"false\"\n" +
		"malformed line without equals\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	values, err := ParseRetroArchConfig(path)
	if err != nil {
		t.Fatalf("ParseRetroArchConfig: %v", err)
	}
	if values["savefile_directory"] != "/home/user/saves" {
		t.Fatalf("savefile_directory = %q", values["savefile_directory"])
	}
	if values["savestate_directory"] != "/home/user/states" {
		t.Fatalf("savestate_directory = %q", values["savestate_directory"])
	}
	if values["video_fullscreen"] != "false" {
		t.Fatalf("video_fullscreen = %q", values["video_fullscreen"])
	}
}

func TestRetroArchOverrideDirs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "retroarch.cfg")
	content := "savefile_directory = \"/custom/saves\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	saveDir, stateDir, ok := RetroArchOverrideDirs(path)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if saveDir != "/custom/saves" {
		t.Fatalf("saveDir = %q", saveDir)
	}
	if stateDir != "" {
		t.Fatalf("stateDir = %q, want empty", stateDir)
	}
}

func TestRetroArchOverrideDirsMissingFile(t *testing.T) {
	if _, _, ok := RetroArchOverrideDirs("/nonexistent/retroarch.cfg"); ok {
		t.Fatal("expected ok=false for missing file")
	}
}

func TestMachineIDIsDeterministic(t *testing.T) {
	if MachineID() != MachineID() {
		t.Fatal("expected MachineID to be stable across calls")
	}
}
