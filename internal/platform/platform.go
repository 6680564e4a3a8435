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

// Package platform resolves per-emulator save-directory candidates and
// (on platforms that support it) inspects top-level window titles, one
// implementation file per OS behind a shared interface.
package platform

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/retrosave/agent-core/internal/agenterrors"
)

// Locator returns, per supported emulator, an ordered list of
// candidate save directories rooted at the user's home or platform
// app-data directory. The first candidate that exists on disk wins;
// ResolveSaveDir implements that selection.
type Locator interface {
	CandidateSaveDirs(emulator string) []string
}

// WindowInfo is one top-level window observed by a WindowInspector.
type WindowInfo struct {
	Class string
	Title string
}

// WindowInspector enumerates top-level windows for C7's window-title
// tier. Implementations that have no such capability on their OS
// (darwin) return (nil, false) unconditionally — an intentional
// no-op, not a stub, per spec.md §9's design note.
type WindowInspector interface {
	Windows() ([]WindowInfo, bool)
}

// New returns the Locator/WindowInspector pair for the running OS.
// The concrete type is chosen by the build-tagged file compiled for
// GOOS (linux.go / windows.go / darwin.go).
func New() (Locator, WindowInspector) {
	return newPlatform()
}

// MachineID returns a best-effort, stable per-machine identifier used
// by C13's device fingerprint. Implementations are per-OS (machineID);
// an empty string is a valid result when the platform exposes nothing
// suitable, and callers must still produce a deterministic fingerprint
// in that case (hostname and OS name alone).
func MachineID() string {
	return machineID()
}

// ResolveSaveDir returns the first candidate directory for emulator
// that exists on disk, or "" if none do.
func ResolveSaveDir(l Locator, emulator string) string {
	for _, candidate := range l.CandidateSaveDirs(emulator) {
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
	}
	return ""
}

// ParseRetroArchConfig reads a RetroArch config file (key = "value"
// per line; RetroArch's own format, not quite INI since values are
// always double-quoted) and returns the key/value pairs found.
// Malformed lines are skipped, not fatal — RetroArch configs
// frequently carry commented-out or partial lines.
func ParseRetroArchConfig(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, agenterrors.New("platform.ParseRetroArchConfig", agenterrors.KindIO, err)
	}
	defer f.Close()

	values := map[string]string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		if unquoted, err := strconv.Unquote(val); err == nil {
			val = unquoted
		} else {
			val = strings.Trim(val, `"`)
		}
		if key == "" {
			continue
		}
		values[key] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, agenterrors.New("platform.ParseRetroArchConfig", agenterrors.KindIO, err)
	}
	return values, nil
}

// RetroArchOverrideDirs reads savefile_directory/savestate_directory
// from the config at path, returning whichever of the two keys are
// present (absent keys are omitted, not zero-valued).
func RetroArchOverrideDirs(path string) (saveDir, stateDir string, ok bool) {
	values, err := ParseRetroArchConfig(path)
	if err != nil {
		return "", "", false
	}
	saveDir, hasSave := values["savefile_directory"]
	stateDir, hasState := values["savestate_directory"]
	return saveDir, stateDir, hasSave || hasState
}

// supportedEmulators lists the emulator keys CandidateSaveDirs
// implementations key their tables on, lower-cased.
var supportedEmulators = []string{
	"pcsx2", "dolphin", "rpcs3", "citra", "retroarch", "yuzu", "ryujinx", "ppsspp",
}

func normalizeEmulator(emulator string) string {
	return strings.ToLower(emulator)
}
