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

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/c2FmZQ/storage/crypto"

	"github.com/retrosave/agent-core/internal/agent"
)

var (
	dataDir            = flag.String("data-dir", defaultDataDir(), "Directory for the local store, backups, and auth vault")
	backupDir          = flag.String("backup-dir", "", "Directory for versioned backup files (default: <data-dir>/backups)")
	serverBaseURL      = flag.String("server-url", "https://api.retrosave.example.com", "Base URL of the cloud sync backend")
	realtimeURL        = flag.String("realtime-url", "wss://api.retrosave.example.com/ws", "URL of the realtime event stream")
	authUsername       = flag.String("user", "", "Account username used for the device login flow")
	supervisorInterval = flag.Duration("scan-interval", 5*time.Second, "How often to rescan the process table for known emulators")
	workers            = flag.Int("workers", 4, "Size of the bounded worker pool processing detected saves")
	keepVersions       = flag.Int("keep-versions", 20, "Number of local save/backup versions retained per game")
	debugMode          = flag.Bool("debug", false, "Enable verbose logging of every MonitorEvent")
)

// loadMasterKey reads, or creates on first run, the key that encrypts
// the local store at rest. The passphrase comes from
// RETROSAVE_MASTER_KEY; an already-existing key file with no
// passphrase set is refused rather than silently run unencrypted.
func loadMasterKey(dataDir string) crypto.MasterKey {
	keyFile := filepath.Join(dataDir, "master.key")
	passphrase := os.Getenv("RETROSAVE_MASTER_KEY")
	if passphrase == "" {
		if _, err := os.Stat(keyFile); err == nil {
			log.Fatalf("%s exists but RETROSAVE_MASTER_KEY is not set; refusing to start unencrypted", keyFile)
		}
		log.Println("Warning: RETROSAVE_MASTER_KEY not set. The local store will be unencrypted.")
		return nil
	}

	masterKey, err := crypto.ReadMasterKey([]byte(passphrase), keyFile)
	if err == nil {
		return masterKey
	}
	if !os.IsNotExist(err) {
		log.Fatalf("Failed to read master key: %v", err)
	}

	log.Println("Initializing new master encryption key...")
	masterKey, err = crypto.CreateMasterKey()
	if err != nil {
		log.Fatalf("Failed to create master key: %v", err)
	}
	if err := masterKey.Save([]byte(passphrase), keyFile); err != nil {
		log.Fatalf("Failed to save master key: %v", err)
	}
	return masterKey
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "data"
	}
	return filepath.Join(home, ".retrosave")
}

// main starts the agent and logs every MonitorEvent it emits until an
// interrupt or SIGTERM asks it to shut down.
func main() {
	flag.Parse()

	cfg := agent.Config{
		DataDir:            *dataDir,
		BackupDir:          *backupDir,
		ServerBaseURL:      *serverBaseURL,
		RealtimeURL:        *realtimeURL,
		AuthUsername:       *authUsername,
		SupervisorInterval: *supervisorInterval,
		Workers:            *workers,
		KeepVersions:       *keepVersions,
	}
	if cfg.BackupDir == "" {
		cfg.BackupDir = filepath.Join(cfg.DataDir, "backups")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}
	if err := os.MkdirAll(cfg.BackupDir, 0o755); err != nil {
		log.Fatalf("Failed to create backup directory: %v", err)
	}
	cfg.MasterKey = loadMasterKey(cfg.DataDir)

	a, err := agent.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize agent: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan agent.MonitorEvent, 64)
	commands := make(chan agent.MonitorCommand)

	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(ctx, events, commands) }()
	go logEvents(events, *debugMode)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
	cancel()

	select {
	case err := <-runErr:
		if err != nil && err != context.Canceled {
			log.Printf("Agent stopped with error: %v", err)
			return
		}
		log.Println("Gracefully stopped.")
	case <-time.After(10 * time.Second):
		log.Println("Timed out waiting for agent shutdown.")
	}
}

func logEvents(events <-chan agent.MonitorEvent, debug bool) {
	for ev := range events {
		switch ev.Kind {
		case agent.EventEmulatorDetected:
			log.Printf("emulator detected: %s", ev.Name)
		case agent.EventEmulatorStopped:
			log.Printf("emulator stopped: %s", ev.Name)
		case agent.EventGameDetected:
			log.Printf("game detected: %s", ev.Name)
		case agent.EventSaveDetected:
			log.Printf("save recorded: %s", ev.Path)
		case agent.EventManualSaveResult:
			log.Printf("manual save result: %d", ev.Outcome)
		case agent.EventConflict:
			log.Printf("sync conflict: %+v", ev.Conflict)
		case agent.EventSyncStatusChanged:
			if debug {
				log.Printf("sync status: %+v", ev.Status)
			}
		}
	}
}
