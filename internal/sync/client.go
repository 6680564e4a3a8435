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

package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/retrosave/agent-core/internal/agenterrors"
)

// RemoteSave is one entry of a paged save listing, used by perform_sync
// to compare against the local snapshot.
type RemoteSave struct {
	GameID    string
	GameName  string
	Hash      string
	Timestamp time.Time
}

// Client is everything the sync engine needs from the backend. It is
// an interface so the engine's tests can swap in a fake without
// spinning up an httptest server for every case.
type Client interface {
	RegisterGame(ctx context.Context, token, name, emulator string) (uuid.UUID, error)
	InitUpload(ctx context.Context, token string, gameID uuid.UUID, hash string, size int64, ts time.Time) (uploadURL string, saveID string, err error)
	PutBytes(ctx context.Context, uploadURL string, data []byte) error
	ListSaves(ctx context.Context, token string, page, perPage int) (saves []RemoteSave, hasMore bool, err error)
	PushSetting(ctx context.Context, token, key, value string) error
}

// httpClient is the Client talking to the real backend over plain
// JSON HTTP, in the same style the teacher's own test helpers use
// (stdlib net/http, http.NewRequestWithContext, json.NewDecoder) —
// the production backend has no Go SDK of its own to reuse.
type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient returns a Client against baseURL.
func NewHTTPClient(baseURL string) Client {
	return &httpClient{baseURL: baseURL, http: &http.Client{Timeout: 30 * time.Second}}
}

func (c *httpClient) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return agenterrors.New("sync.Client", agenterrors.KindCodec, err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return agenterrors.New("sync.Client", agenterrors.KindNetwork, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return agenterrors.New("sync.Client", agenterrors.KindNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return agenterrors.Newf("sync.Client", agenterrors.KindNetwork, "%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return agenterrors.New("sync.Client", agenterrors.KindCodec, err)
	}
	return nil
}

func (c *httpClient) RegisterGame(ctx context.Context, token, name, emulator string) (uuid.UUID, error) {
	var resp struct {
		ID uuid.UUID `json:"id"`
	}
	body := map[string]string{"name": name, "emulator": emulator}
	if err := c.do(ctx, http.MethodPost, "/api/saves/games/register", token, body, &resp); err != nil {
		return uuid.Nil, err
	}
	return resp.ID, nil
}

func (c *httpClient) InitUpload(ctx context.Context, token string, gameID uuid.UUID, hash string, size int64, ts time.Time) (string, string, error) {
	var resp struct {
		SaveID    string `json:"save_id"`
		UploadURL string `json:"upload_url"`
		ExpiresIn int    `json:"expires_in"`
	}
	body := map[string]any{
		"game_id":          gameID,
		"file_hash":        hash,
		"file_size":        size,
		"client_timestamp": ts,
	}
	if err := c.do(ctx, http.MethodPost, "/api/saves/upload", token, body, &resp); err != nil {
		return "", "", err
	}
	return resp.UploadURL, resp.SaveID, nil
}

func (c *httpClient) PutBytes(ctx context.Context, uploadURL string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return agenterrors.New("sync.Client.PutBytes", agenterrors.KindNetwork, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return agenterrors.New("sync.Client.PutBytes", agenterrors.KindNetwork, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return agenterrors.Newf("sync.Client.PutBytes", agenterrors.KindNetwork, "PUT upload_url: status %d", resp.StatusCode)
	}
	return nil
}

func (c *httpClient) ListSaves(ctx context.Context, token string, page, perPage int) ([]RemoteSave, bool, error) {
	var resp struct {
		Saves []struct {
			GameID    string    `json:"game_id"`
			GameName  string    `json:"game_name"`
			Hash      string    `json:"hash"`
			Timestamp time.Time `json:"timestamp"`
		} `json:"saves"`
		HasMore bool `json:"has_more"`
	}
	path := fmt.Sprintf("/api/saves/list?page=%d&per_page=%d", page, perPage)
	if err := c.do(ctx, http.MethodGet, path, "", nil, &resp); err != nil {
		return nil, false, err
	}
	out := make([]RemoteSave, 0, len(resp.Saves))
	for _, s := range resp.Saves {
		out = append(out, RemoteSave{GameID: s.GameID, GameName: s.GameName, Hash: s.Hash, Timestamp: s.Timestamp})
	}
	return out, resp.HasMore, nil
}

// PushSetting uploads one local setting change to the account-wide
// settings collaborator endpoint, per SPEC_FULL.md's settings-sync
// supplement (the Rust original's settings_sync.rs).
func (c *httpClient) PushSetting(ctx context.Context, token, key, value string) error {
	body := map[string]string{"key": key, "value": value}
	return c.do(ctx, http.MethodPost, "/api/settings", token, body, nil)
}
