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

//go:build linux

package platform

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
	"github.com/jezek/xgbutil"
	"github.com/jezek/xgbutil/ewmh"
	"github.com/jezek/xgbutil/xwindow"
)

type linuxPlatform struct {
	home string
}

func newPlatform() (Locator, WindowInspector) {
	home, _ := os.UserHomeDir()
	p := &linuxPlatform{home: home}
	return p, p
}

func (p *linuxPlatform) CandidateSaveDirs(emulator string) []string {
	home := p.home
	config := filepath.Join(home, ".config")
	flatpakData := filepath.Join(home, ".var", "app")

	switch normalizeEmulator(emulator) {
	case "pcsx2":
		return []string{
			filepath.Join(home, ".config", "PCSX2", "memcards"),
			filepath.Join(flatpakData, "net.pcsx2.PCSX2", "config", "PCSX2", "memcards"),
		}
	case "dolphin":
		return []string{
			filepath.Join(config, "dolphin-emu", "GC"),
			filepath.Join(home, ".local", "share", "dolphin-emu", "GC"),
			filepath.Join(flatpakData, "org.DolphinEmu.dolphin-emu", "data", "dolphin-emu", "GC"),
		}
	case "rpcs3":
		return []string{
			filepath.Join(home, "RPCS3", "dev_hdd0", "home", "00000001", "savedata"),
			filepath.Join(flatpakData, "net.rpcs3.RPCS3", "data", "RPCS3", "dev_hdd0", "home", "00000001", "savedata"),
		}
	case "citra":
		return []string{
			filepath.Join(home, ".local", "share", "citra-emu", "sdmc", "Nintendo 3DS"),
			filepath.Join(flatpakData, "org.citra_emu.citra", "data", "citra-emu", "sdmc", "Nintendo 3DS"),
		}
	case "retroarch":
		return []string{
			filepath.Join(config, "retroarch", "saves"),
			filepath.Join(flatpakData, "org.libretro.RetroArch", "config", "retroarch", "saves"),
		}
	case "yuzu":
		return []string{
			filepath.Join(home, ".local", "share", "yuzu", "nand", "user", "save"),
			filepath.Join(flatpakData, "org.yuzu_emu.yuzu", "data", "yuzu", "nand", "user", "save"),
		}
	case "ryujinx":
		return []string{
			filepath.Join(config, "Ryujinx", "bis", "user", "save"),
			filepath.Join(flatpakData, "org.ryujinx.Ryujinx", "config", "Ryujinx", "bis", "user", "save"),
		}
	case "ppsspp":
		return []string{
			filepath.Join(config, "ppsspp", "PSP", "SAVEDATA"),
			filepath.Join(flatpakData, "org.ppsspp.PPSSPP", "config", "ppsspp", "PSP", "SAVEDATA"),
		}
	default:
		return nil
	}
}

// Windows enumerates top-level windows via the X11 protocol and returns
// all of them, without filtering by window class. It reads the window title
// from _NET_WM_NAME, falling back to WM_NAME. Every X11 connection
// acquired here is released via defer on entry, so every early-return
// path (including parse errors partway through the window list)
// releases it — spec.md §4.7's "released on every exit path"
// requirement falls out of that structure rather than needing manual
// bookkeeping per branch.
func (p *linuxPlatform) Windows() ([]WindowInfo, bool) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, false
	}
	defer conn.Close()

	xu, err := xgbutil.NewConnXgb(conn)
	if err != nil {
		return nil, false
	}

	clientIDs, err := ewmh.ClientListGet(xu)
	if err != nil {
		// Some window managers only populate _NET_CLIENT_LIST_STACKING.
		clientIDs, err = ewmh.ClientListStackingGet(xu)
		if err != nil {
			return nil, false
		}
	}

	var windows []WindowInfo
	for _, id := range clientIDs {
		win := xwindow.New(xu, id)
		cls, clsErr := ewmh.WmClassGet(xu, win.Id)
		title, titleErr := ewmh.WmNameGet(xu, win.Id)
		if titleErr != nil {
			title, titleErr = icccmWMName(xu, win.Id)
		}
		if clsErr != nil || titleErr != nil {
			continue
		}
		className := ""
		if cls != nil {
			className = cls.Class
		}
		windows = append(windows, WindowInfo{Class: className, Title: title})
	}
	return windows, true
}

func icccmWMName(xu *xgbutil.XUtil, win xproto.Window) (string, error) {
	reply, err := xproto.GetProperty(xu.Conn(), false, win, xproto.AtomWmName,
		xproto.GetPropertyTypeAny, 0, (1<<32)-1).Reply()
	if err != nil {
		return "", err
	}
	return string(reply.Value), nil
}

// WindowsByClass filters Windows() results to those whose class
// contains emulatorName case-insensitively — the first step of
// spec.md §4.7's window-inspection tier.
func WindowsByClass(windows []WindowInfo, emulatorName string) []WindowInfo {
	needle := strings.ToLower(emulatorName)
	var out []WindowInfo
	for _, w := range windows {
		if strings.Contains(strings.ToLower(w.Class), needle) {
			out = append(out, w)
		}
	}
	return out
}

// machineID reads the kernel/D-Bus machine ID, which is generated
// once at install time and stable across reboots.
func machineID() string {
	for _, path := range []string{"/etc/machine-id", "/var/lib/dbus/machine-id"} {
		if b, err := os.ReadFile(path); err == nil {
			return strings.TrimSpace(string(b))
		}
	}
	return ""
}
