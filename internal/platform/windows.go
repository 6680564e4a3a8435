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

//go:build windows

package platform

import (
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"
)

type windowsPlatform struct {
	appData     string
	localApp    string
	userProfile string
}

func newPlatform() (Locator, WindowInspector) {
	p := &windowsPlatform{
		appData:     os.Getenv("APPDATA"),
		localApp:    os.Getenv("LOCALAPPDATA"),
		userProfile: os.Getenv("USERPROFILE"),
	}
	return p, p
}

func (p *windowsPlatform) CandidateSaveDirs(emulator string) []string {
	switch normalizeEmulator(emulator) {
	case "pcsx2":
		return []string{
			filepath.Join(p.appData, "PCSX2", "memcards"),
			filepath.Join(p.userProfile, "Documents", "PCSX2", "memcards"),
		}
	case "dolphin":
		return []string{
			filepath.Join(p.userProfile, "Documents", "Dolphin Emulator", "GC"),
		}
	case "rpcs3":
		return []string{
			filepath.Join(p.userProfile, "RPCS3", "dev_hdd0", "home", "00000001", "savedata"),
		}
	case "citra":
		return []string{
			filepath.Join(p.appData, "Citra", "sdmc", "Nintendo 3DS"),
		}
	case "retroarch":
		return []string{
			filepath.Join(p.userProfile, "RetroArch", "saves"),
		}
	case "yuzu":
		return []string{
			filepath.Join(p.appData, "yuzu", "nand", "user", "save"),
		}
	case "ryujinx":
		return []string{
			filepath.Join(p.appData, "Ryujinx", "bis", "user", "save"),
		}
	case "ppsspp":
		return []string{
			filepath.Join(p.localApp, "PPSSPP", "PSP", "SAVEDATA"),
			filepath.Join(p.userProfile, "Documents", "PPSSPP", "PSP", "SAVEDATA"),
		}
	default:
		return nil
	}
}

var (
	user32                   = windows.NewLazySystemDLL("user32.dll")
	procEnumWindows          = user32.NewProc("EnumWindows")
	procGetClassNameW        = user32.NewProc("GetClassNameW")
	procGetWindowTextW       = user32.NewProc("GetWindowTextW")
	procGetWindowTextLengthW = user32.NewProc("GetWindowTextLengthW")
)

// Windows enumerates top-level windows via EnumWindows, reading each
// window's class name and title.
func (p *windowsPlatform) Windows() ([]WindowInfo, bool) {
	var windows []WindowInfo
	cb := syscall.NewCallback(func(hwnd syscall.Handle, _ uintptr) uintptr {
		class := make([]uint16, 256)
		n, _, _ := procGetClassNameW.Call(uintptr(hwnd), uintptr(unsafe.Pointer(&class[0])), uintptr(len(class)))
		className := syscall.UTF16ToString(class[:n])

		length, _, _ := procGetWindowTextLengthW.Call(uintptr(hwnd))
		title := ""
		if length > 0 {
			buf := make([]uint16, length+1)
			tn, _, _ := procGetWindowTextW.Call(uintptr(hwnd), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
			title = syscall.UTF16ToString(buf[:tn])
		}

		windows = append(windows, WindowInfo{Class: className, Title: title})
		return 1 // continue enumeration
	})

	ret, _, _ := procEnumWindows.Call(cb, 0)
	if ret == 0 {
		return nil, false
	}
	return windows, true
}

// WindowsByClass filters Windows() results to those whose class
// contains emulatorName case-insensitively.
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

// machineID reads the per-install MachineGuid Windows generates under
// HKLM\SOFTWARE\Microsoft\Cryptography.
func machineID() string {
	k, err := registry.OpenKey(registry.LOCAL_MACHINE, `SOFTWARE\Microsoft\Cryptography`, registry.QUERY_VALUE|registry.WOW64_64KEY)
	if err != nil {
		return ""
	}
	defer k.Close()

	guid, _, err := k.GetStringValue("MachineGuid")
	if err != nil {
		return ""
	}
	return guid
}
