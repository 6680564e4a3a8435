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
	"context"
	"time"
)

// claimsLeeway is the remaining validity a locally-decoded expiry must
// exceed for the stored token to be returned without a network call,
// to absorb clock skew between this machine and the backend. A token
// inside this margin goes straight to a refresh.
const claimsLeeway = 2 * time.Minute

// Manager is the entry point the agent wires into its startup path:
// it resolves a usable TokenSet from the vault, a refresh, or a fresh
// interactive login, in that order of preference.
type Manager struct {
	flow  *Flow
	vault *Vault
}

// NewManager returns a Manager logging into baseURL and caching tokens
// at vaultPath under username's key.
func NewManager(baseURL, vaultPath, username string) *Manager {
	return &Manager{
		flow:  NewFlow(baseURL),
		vault: NewVault(vaultPath, username),
	}
}

// Authenticate returns a usable TokenSet: the stored one if its
// claims say it's still comfortably valid or (when its claims can't be
// read) its profile still resolves, a refreshed one if the stored refresh token still works,
// or a brand new interactive login as the last resort.
func (m *Manager) Authenticate(ctx context.Context) (*TokenSet, error) {
	if ts, _ := m.vault.Load(); ts != nil {
		claims, claimsErr := decodeAccessClaims(ts.AccessToken)
		stillFresh := claimsErr == nil && claims.ExpiresAt != nil && time.Until(claims.ExpiresAt.Time) > claimsLeeway
		if stillFresh {
			return ts, nil
		}
		if claimsErr != nil || claims.ExpiresAt == nil {
			// Claims didn't decode or carried no expiry; fall back to
			// the network check instead of guessing.
			if _, err := m.flow.FetchProfile(ctx, ts.AccessToken); err == nil {
				return ts, nil
			}
		}
		if ts.RefreshToken != "" {
			if refreshed, err := m.flow.Refresh(ctx, ts.RefreshToken); err == nil {
				if err := m.vault.Save(refreshed); err != nil {
					return nil, err
				}
				return refreshed, nil
			}
		}
		m.vault.Clear()
	}

	ts, err := m.flow.Login(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.vault.Save(ts); err != nil {
		return nil, err
	}
	return ts, nil
}

// Logout clears any stored credentials.
func (m *Manager) Logout() {
	m.vault.Clear()
}
