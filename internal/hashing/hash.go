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

// Package hashing streams files through SHA-256 for change detection.
// Callers own caching; this package never caches.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/retrosave/agent-core/internal/agenterrors"
)

// blockSize is the read buffer used while streaming a file through
// the hasher. Must be >= 4 KiB per spec.
const blockSize = 32 * 1024

// Hash returns the lowercase hex SHA-256 digest of the file at path.
func Hash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", agenterrors.New("hashing.Hash", agenterrors.KindIO, err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, blockSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", agenterrors.New("hashing.Hash", agenterrors.KindIO, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes returns the lowercase hex SHA-256 digest of b, for
// in-memory buffers (e.g. the compressed payload before upload).
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Size returns the size in bytes of the file at path.
func Size(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, agenterrors.New("hashing.Size", agenterrors.KindIO, err)
	}
	return info.Size(), nil
}
