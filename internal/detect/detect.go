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

// Package detect resolves which game a running emulator is currently
// playing, via the three-tier chain of spec.md §4.7: window title,
// command line, then emulator-specific config/log/recent-file
// fallback. Each tier is tried in order and the chain short-circuits
// on first success.
package detect

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/retrosave/agent-core/internal/gameid"
	"github.com/retrosave/agent-core/internal/platform"
)

// Hint bundles the per-emulator context the detector needs to run its
// three tiers. Any field may be the zero value when unavailable; the
// detector treats an unavailable tier as a miss and falls through.
type Hint struct {
	Emulator string
	Cmdline  []string // process argv, tier 2
	ConfigDir string  // emulator-specific config root, tier 3
	LogPath   string  // emulator-specific log file, tier 3
}

// Detector runs the three-tier chain against a Hint.
type Detector struct {
	inspector platform.WindowInspector
	resolver  *gameid.Resolver
}

// New returns a Detector. inspector may be nil on platforms (or in
// tests) where window inspection is unavailable; the window-title
// tier is then always a miss.
func New(inspector platform.WindowInspector, resolver *gameid.Resolver) *Detector {
	return &Detector{inspector: inspector, resolver: resolver}
}

// Detect runs the three-tier chain for h, returning the resolved game
// title and true on the first tier that succeeds.
func (d *Detector) Detect(h Hint) (string, bool) {
	if title, ok := d.windowTitle(h.Emulator); ok {
		return title, true
	}
	if title, ok := commandLine(h.Emulator, h.Cmdline, d.resolver); ok {
		return title, true
	}
	if title, ok := d.configLogRecent(h); ok {
		return title, true
	}
	return "", false
}

// windowTitle is tier 1. It filters the inspector's window list by
// class containing the emulator name, then applies the emulator's
// title-parsing rule to the first match.
func (d *Detector) windowTitle(emulator string) (string, bool) {
	if d.inspector == nil {
		return "", false
	}
	windows, ok := d.inspector.Windows()
	if !ok {
		return "", false
	}
	needle := strings.ToLower(emulator)
	for _, w := range windows {
		if !strings.Contains(strings.ToLower(w.Class), needle) {
			continue
		}
		if title, ok := parseTitle(emulator, w.Title); ok {
			return title, true
		}
	}
	return "", false
}

// parseTitle applies the per-emulator title-parsing rule from
// spec.md §4.7.
func parseTitle(emulator, title string) (string, bool) {
	switch strings.ToLower(emulator) {
	case "pcsx2":
		if title == "" || strings.HasPrefix(title, "PCSX2") || title == "pcsx2-qt" {
			return "", false
		}
		return title, true

	case "dolphin":
		fields := strings.Split(title, " | ")
		if len(fields) >= 4 {
			return fields[len(fields)-1], true
		}
		if strings.HasPrefix(title, "Dolphin") {
			return "", false
		}
		return title, true

	case "rpcs3":
		if idx := strings.Index(title, " - RPCS3"); idx >= 0 {
			return title[:idx], true
		}
		return "", false

	case "citra", "yuzu":
		fields := strings.Split(title, " | ")
		if len(fields) < 2 {
			return "", false
		}
		return fields[1], true

	case "ryujinx":
		fields := strings.Split(title, " - ")
		if len(fields) < 2 {
			return "", false
		}
		return fields[1], true

	case "retroarch":
		fields := strings.Split(title, " - ")
		for _, f := range fields {
			if !strings.Contains(f, "RetroArch") {
				return f, true
			}
		}
		return "", false

	case "ppsspp":
		fields := strings.Split(title, " - ")
		if len(fields) == 0 {
			return "", false
		}
		return fields[len(fields)-1], true

	default:
		return "", false
	}
}

// extensionsByEmulator lists the ROM/image extensions tier 2 accepts
// per emulator, per spec.md §4.7.
var extensionsByEmulator = map[string][]string{
	"pcsx2":   {".iso", ".elf", ".bin"},
	"dolphin": {".iso", ".gcm", ".wbfs", ".ciso", ".gcz", ".rvz"},
}

// commandLine is tier 2: it accepts the stem of the first argument
// whose extension is a known ROM/image type for emulator.
func commandLine(emulator string, cmdline []string, resolver *gameid.Resolver) (string, bool) {
	exts, ok := extensionsByEmulator[strings.ToLower(emulator)]
	if !ok {
		return "", false
	}
	for _, arg := range cmdline {
		ext := strings.ToLower(filepath.Ext(arg))
		for _, want := range exts {
			if ext != want {
				continue
			}
			stem := strings.TrimSuffix(filepath.Base(arg), filepath.Ext(arg))
			if resolver != nil {
				if name, ok := resolver.Lookup(stem); ok {
					return name, true
				}
			}
			return stem, true
		}
	}
	return "", false
}

// configLogRecent is tier 3, emulator-specific per spec.md §4.7.
func (d *Detector) configLogRecent(h Hint) (string, bool) {
	switch strings.ToLower(h.Emulator) {
	case "pcsx2":
		return d.pcsx2GameSettings(h.ConfigDir)
	case "dolphin":
		return dolphinLastFilename(h.ConfigDir)
	case "rpcs3":
		return rpcs3LastBoot(h.LogPath)
	case "citra", "retroarch":
		return recentFilesTail(h.ConfigDir)
	case "ppsspp":
		return d.ppssppMostRecentSaveData(h.ConfigDir)
	default:
		return "", false
	}
}

// pcsx2GameSettings finds the most recently modified gamesettings/*.ini
// file and resolves its leading game id via C3.
func (d *Detector) pcsx2GameSettings(configDir string) (string, bool) {
	if configDir == "" {
		return "", false
	}
	dir := filepath.Join(configDir, "gamesettings")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	var newest os.DirEntry
	var newestMod int64
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".ini") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if mt := info.ModTime().Unix(); newest == nil || mt > newestMod {
			newest, newestMod = e, mt
		}
	}
	if newest == nil {
		return "", false
	}
	id := leadingGameID(newest.Name())
	if id == "" {
		return "", false
	}
	if d.resolver == nil {
		return "", false
	}
	return d.resolver.Lookup(id)
}

var leadingGameIDRe = regexp.MustCompile(`^[A-Z]{4}-\d{5}`)

func leadingGameID(filename string) string {
	return leadingGameIDRe.FindString(strings.TrimSuffix(filename, ".ini"))
}

// dolphinLastFilename reads the LastFilename key out of Dolphin's main
// config INI and resolves a title from the path's stem.
func dolphinLastFilename(configDir string) (string, bool) {
	if configDir == "" {
		return "", false
	}
	path := filepath.Join(configDir, "Dolphin.ini")
	values, err := platform.ParseRetroArchConfig(path) // same key=value shape, reused
	if err != nil {
		return "", false
	}
	last, ok := values["LastFilename"]
	if !ok || last == "" {
		return "", false
	}
	stem := strings.TrimSuffix(filepath.Base(last), filepath.Ext(last))
	return stem, true
}

var rpcs3BootLineRe = regexp.MustCompile(`(?:Boot successful|Game)[:\s]*(.+)`)

// rpcs3LastBoot scans an RPCS3 log tail for the last "Boot successful"
// or "Game:" line.
func rpcs3LastBoot(logPath string) (string, bool) {
	if logPath == "" {
		return "", false
	}
	f, err := os.Open(logPath)
	if err != nil {
		return "", false
	}
	defer f.Close()

	var last string
	scanner := bufio.NewScanner(f)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		if m := rpcs3BootLineRe.FindStringSubmatch(scanner.Text()); m != nil {
			last = strings.TrimSpace(m[1])
		}
	}
	if last == "" {
		return "", false
	}
	return last, true
}

// recentFilesTail reads a newline-delimited recent-files/content-
// history artifact and returns the stem of its last entry. Covers
// Citra's recent_files and RetroArch's content_history.lpl (both are
// effectively one-path-per-line once unwrapped of their JSON/LPL
// framing, handled by the caller supplying a plain list file).
func recentFilesTail(path string) (string, bool) {
	if path == "" {
		return "", false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) == 0 || lines[len(lines)-1] == "" {
		return "", false
	}
	last := strings.TrimSpace(lines[len(lines)-1])
	stem := strings.TrimSuffix(filepath.Base(last), filepath.Ext(last))
	return stem, true
}

// ppssppMostRecentSaveData falls back to the most-recently-modified
// subdirectory of SAVEDATA, mapped via C3.
func (d *Detector) ppssppMostRecentSaveData(saveDataDir string) (string, bool) {
	if saveDataDir == "" || d.resolver == nil {
		return "", false
	}
	entries, err := os.ReadDir(saveDataDir)
	if err != nil {
		return "", false
	}
	type candidate struct {
		name string
		mod  int64
	}
	var best candidate
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if mt := info.ModTime().Unix(); mt > best.mod {
			best = candidate{name: e.Name(), mod: mt}
		}
	}
	if best.name == "" {
		return "", false
	}
	return d.resolver.LookupPSP(best.name)
}
