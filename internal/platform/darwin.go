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

//go:build darwin

package platform

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

type darwinPlatform struct {
	appSupport string
}

func newPlatform() (Locator, WindowInspector) {
	home, _ := os.UserHomeDir()
	p := &darwinPlatform{appSupport: filepath.Join(home, "Library", "Application Support")}
	return p, p
}

func (p *darwinPlatform) CandidateSaveDirs(emulator string) []string {
	switch normalizeEmulator(emulator) {
	case "pcsx2":
		return []string{filepath.Join(p.appSupport, "PCSX2", "memcards")}
	case "dolphin":
		return []string{filepath.Join(p.appSupport, "Dolphin", "GC")}
	case "rpcs3":
		return []string{filepath.Join(p.appSupport, "rpcs3", "dev_hdd0", "home", "00000001", "savedata")}
	case "citra":
		return []string{filepath.Join(p.appSupport, "citra-emu", "sdmc", "Nintendo 3DS")}
	case "retroarch":
		return []string{filepath.Join(p.appSupport, "RetroArch", "saves")}
	case "yuzu":
		return []string{filepath.Join(p.appSupport, "yuzu", "nand", "user", "save")}
	case "ryujinx":
		return []string{filepath.Join(p.appSupport, "Ryujinx", "bis", "user", "save")}
	case "ppsspp":
		return []string{filepath.Join(p.appSupport, "PPSSPP", "PSP", "SAVEDATA")}
	default:
		return nil
	}
}

// Windows has no window-title path on macOS: spec.md §9 notes there is
// no portable, permission-free way to read another app's window title
// on macOS without Accessibility entitlements this agent does not
// request. This is an intentional no-op, not a stub — C7's detector
// falls straight through to the command-line tier on darwin.
func (p *darwinPlatform) Windows() ([]WindowInfo, bool) {
	return nil, false
}

// machineID shells out to ioreg for the IOPlatformUUID, the closest
// macOS equivalent of Linux's /etc/machine-id; there is no sandboxed,
// entitlement-free syscall for it.
func machineID() string {
	out, err := exec.Command("ioreg", "-rd1", "-c", "IOPlatformExpertDevice").Output()
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(out), "\n") {
		if !strings.Contains(line, "IOPlatformUUID") {
			continue
		}
		parts := strings.Split(line, "\"")
		if len(parts) >= 4 {
			return parts[3]
		}
	}
	return ""
}
