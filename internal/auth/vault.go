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

package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"os"
	"time"

	"golang.org/x/crypto/argon2"

	"github.com/retrosave/agent-core/internal/agenterrors"
)

const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	keyLen       = 32
	saltLen      = 32
)

// persistedToken is the plaintext the vault file's ciphertext decrypts to.
type persistedToken struct {
	AccessToken  string `json:"access"`
	RefreshToken string `json:"refresh"`
	ExpiresIn    int    `json:"expires_in"`
}

// vaultFile is the on-disk JSON shape: everything needed to re-derive
// the key and decrypt, but never the key itself.
type vaultFile struct {
	Ciphertext []byte    `json:"ciphertext"`
	Nonce      []byte    `json:"nonce"`
	Salt       []byte    `json:"salt"`
	StoredAt   time.Time `json:"stored_at"`
}

// Vault persists a TokenSet encrypted at rest with AES-256-GCM, keyed
// by an Argon2id-derived secret unique to this user and machine.
type Vault struct {
	path     string
	username string
	hostname string
}

// NewVault returns a Vault backed by the file at path, deriving its
// key from username and the local hostname.
func NewVault(path, username string) *Vault {
	hostname, _ := os.Hostname()
	return &Vault{path: path, username: username, hostname: hostname}
}

func (v *Vault) deriveKey(salt []byte) []byte {
	passphrase := []byte(v.username + v.hostname + "retrosave-auth-v1")
	return argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonThreads, keyLen)
}

// Save encrypts and writes ts to disk, replacing any existing file.
func (v *Vault) Save(ts *TokenSet) error {
	plain, err := json.Marshal(persistedToken{
		AccessToken:  ts.AccessToken,
		RefreshToken: ts.RefreshToken,
		ExpiresIn:    ts.ExpiresIn,
	})
	if err != nil {
		return agenterrors.New("auth.Vault.Save", agenterrors.KindCodec, err)
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return agenterrors.New("auth.Vault.Save", agenterrors.KindAuth, err)
	}
	key := v.deriveKey(salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return agenterrors.New("auth.Vault.Save", agenterrors.KindAuth, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return agenterrors.New("auth.Vault.Save", agenterrors.KindAuth, err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return agenterrors.New("auth.Vault.Save", agenterrors.KindAuth, err)
	}

	vf := vaultFile{
		Ciphertext: gcm.Seal(nil, nonce, plain, nil),
		Nonce:      nonce,
		Salt:       salt,
		StoredAt:   time.Now(),
	}
	b, err := json.Marshal(vf)
	if err != nil {
		return agenterrors.New("auth.Vault.Save", agenterrors.KindCodec, err)
	}
	// 0600 is honored on Unix; Windows ignores the POSIX bits and
	// relies on the per-user profile directory's own ACLs instead.
	if err := os.WriteFile(v.path, b, 0o600); err != nil {
		return agenterrors.New("auth.Vault.Save", agenterrors.KindIO, err)
	}
	return nil
}

// Load decrypts the stored TokenSet. Any failure — a missing file, a
// corrupt document, or a decryption error (e.g. the vault was written
// on a different machine or by a different user) — is treated as
// "not authenticated": the file is deleted and a nil TokenSet
// returned with no error, per spec.md's C13 failure handling.
func (v *Vault) Load() (*TokenSet, error) {
	b, err := os.ReadFile(v.path)
	if err != nil {
		return nil, nil
	}

	var vf vaultFile
	if err := json.Unmarshal(b, &vf); err != nil {
		v.clear()
		return nil, nil
	}

	key := v.deriveKey(vf.Salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		v.clear()
		return nil, nil
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		v.clear()
		return nil, nil
	}
	plain, err := gcm.Open(nil, vf.Nonce, vf.Ciphertext, nil)
	if err != nil {
		v.clear()
		return nil, nil
	}

	var pt persistedToken
	if err := json.Unmarshal(plain, &pt); err != nil {
		v.clear()
		return nil, nil
	}

	return &TokenSet{
		AccessToken:  pt.AccessToken,
		RefreshToken: pt.RefreshToken,
		ExpiresIn:    pt.ExpiresIn,
		ExpiresAt:    vf.StoredAt.Add(time.Duration(pt.ExpiresIn) * time.Second),
	}, nil
}

// Clear deletes the vault file, if present.
func (v *Vault) Clear() {
	v.clear()
}

func (v *Vault) clear() {
	os.Remove(v.path)
}
