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

// Package auth implements the desktop PKCE-loopback login flow (C13):
// a local listener receives the authorization redirect, a device
// fingerprint identifies the machine, and the resulting tokens are
// kept at rest in an Argon2id+AES-256-GCM vault (vault.go).
package auth

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/retrosave/agent-core/internal/agenterrors"
	"github.com/retrosave/agent-core/internal/platform"
)

const callbackTimeout = 300 * time.Second

// TokenSet is the credential pair a successful login or refresh
// yields, plus the server-reported profile payload.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
	ExpiresAt    time.Time
	User         json.RawMessage
}

// DeviceInfo accompanies the initiate request so the server can
// recognize returning machines.
type DeviceInfo struct {
	Fingerprint string `json:"fingerprint"`
	Hostname    string `json:"hostname"`
	OS          string `json:"os"`
}

// Fingerprint is the first 16 bytes of
// sha256(hostname ‖ os_name ‖ platform_machine_id), hex-encoded and
// prefixed "desktop-". It is deterministic per machine: the same
// inputs always hash to the same fingerprint.
func Fingerprint() string {
	hostname, _ := os.Hostname()
	sum := sha256.Sum256([]byte(hostname + runtime.GOOS + platform.MachineID()))
	return "desktop-" + hex.EncodeToString(sum[:16])
}

// decodeAccessClaims reads the expiry and subject out of an access
// token's claims without verifying its signature. The token already
// reached us over TLS straight from the backend that issued it, so
// there's nothing to verify locally; this only lets Manager.Authenticate
// skip a FetchProfile round trip when the token plainly still has time
// left.
func decodeAccessClaims(accessToken string) (*jwt.RegisteredClaims, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return nil, agenterrors.New("auth.decodeAccessClaims", agenterrors.KindCodec, err)
	}
	return &claims, nil
}

func currentDeviceInfo() DeviceInfo {
	hostname, _ := os.Hostname()
	return DeviceInfo{Fingerprint: Fingerprint(), Hostname: hostname, OS: runtime.GOOS}
}

type initiateRequest struct {
	CodeChallenge       string     `json:"code_challenge"`
	CodeChallengeMethod string     `json:"code_challenge_method"`
	RedirectPort        int        `json:"redirect_port"`
	DeviceInfo          DeviceInfo `json:"device_info"`
}

type initiateResponse struct {
	AuthURL string `json:"auth_url"`
	State   string `json:"state"`
}

type exchangeRequest struct {
	Code         string `json:"code"`
	State        string `json:"state"`
	CodeVerifier string `json:"code_verifier"`
}

type exchangeResponse struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	ExpiresIn    int             `json:"expires_in"`
	User         json.RawMessage `json:"user"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Flow drives one PKCE-loopback login against a RetroSave backend.
type Flow struct {
	BaseURL     string
	HTTPClient  *http.Client
	OpenBrowser func(url string) error
}

// NewFlow returns a Flow targeting baseURL with production defaults:
// a 30s HTTP client and the OS's native URL opener.
func NewFlow(baseURL string) *Flow {
	return &Flow{
		BaseURL:     baseURL,
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
		OpenBrowser: defaultOpenBrowser,
	}
}

// Login runs the full flow: bind a loopback listener, generate a PKCE
// pair, call initiate, open the browser, wait for exactly one
// redirect, verify state, and exchange the code for tokens.
func (f *Flow) Login(ctx context.Context) (*TokenSet, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, agenterrors.New("auth.Login", agenterrors.KindNetwork, err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	verifier := oauth2.GenerateVerifier()
	challenge := oauth2.S256ChallengeFromVerifier(verifier)

	initResp, err := f.initiate(ctx, challenge, port)
	if err != nil {
		ln.Close()
		return nil, err
	}

	if err := f.OpenBrowser(initResp.AuthURL); err != nil {
		ln.Close()
		return nil, agenterrors.NewAuth("auth.Login", agenterrors.AuthSubBrowser, err.Error(), err)
	}

	code, state, err := acceptCallback(ctx, ln, callbackTimeout)
	if err != nil {
		return nil, err
	}
	if state != initResp.State {
		return nil, agenterrors.NewAuth("auth.Login", agenterrors.AuthSubState, "redirect state did not match the initiate response", nil)
	}

	exResp, err := f.exchange(ctx, code, state, verifier)
	if err != nil {
		return nil, err
	}

	return &TokenSet{
		AccessToken:  exResp.AccessToken,
		RefreshToken: exResp.RefreshToken,
		ExpiresIn:    exResp.ExpiresIn,
		ExpiresAt:    time.Now().Add(time.Duration(exResp.ExpiresIn) * time.Second),
		User:         exResp.User,
	}, nil
}

func (f *Flow) initiate(ctx context.Context, codeChallenge string, port int) (*initiateResponse, error) {
	req := initiateRequest{
		CodeChallenge:       codeChallenge,
		CodeChallengeMethod: "S256",
		RedirectPort:        port,
		DeviceInfo:          currentDeviceInfo(),
	}
	var resp initiateResponse
	if err := f.postJSON(ctx, "/auth/initiate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (f *Flow) exchange(ctx context.Context, code, state, verifier string) (*exchangeResponse, error) {
	req := exchangeRequest{Code: code, State: state, CodeVerifier: verifier}
	var resp exchangeResponse
	if err := f.postJSON(ctx, "/auth/exchange", req, &resp); err != nil {
		return nil, agenterrors.NewAuth("auth.exchange", agenterrors.AuthSubExchange, err.Error(), err)
	}
	return &resp, nil
}

// Refresh exchanges a stored refresh token for a new token pair.
func (f *Flow) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	var resp exchangeResponse
	if err := f.postJSON(ctx, "/auth/refresh", refreshRequest{RefreshToken: refreshToken}, &resp); err != nil {
		return nil, agenterrors.New("auth.Refresh", agenterrors.KindNetwork, err)
	}
	return &TokenSet{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresIn:    resp.ExpiresIn,
		ExpiresAt:    time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
		User:         resp.User,
	}, nil
}

// FetchProfile confirms accessToken is still good by asking the server
// who it belongs to.
func (f *Flow) FetchProfile(ctx context.Context, accessToken string) (json.RawMessage, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, f.BaseURL+"/auth/profile", nil)
	if err != nil {
		return nil, agenterrors.New("auth.FetchProfile", agenterrors.KindNetwork, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := f.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, agenterrors.New("auth.FetchProfile", agenterrors.KindNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, agenterrors.Newf("auth.FetchProfile", agenterrors.KindNetwork, "unexpected status %d", resp.StatusCode)
	}
	var profile json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, agenterrors.New("auth.FetchProfile", agenterrors.KindNetwork, err)
	}
	return profile, nil
}

func (f *Flow) postJSON(ctx context.Context, path string, reqBody, respBody any) error {
	b, err := json.Marshal(reqBody)
	if err != nil {
		return agenterrors.New("auth.postJSON", agenterrors.KindCodec, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return agenterrors.New("auth.postJSON", agenterrors.KindNetwork, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := f.HTTPClient.Do(httpReq)
	if err != nil {
		return agenterrors.New("auth.postJSON", agenterrors.KindNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return agenterrors.Newf("auth.postJSON", agenterrors.KindNetwork, "%s: unexpected status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(respBody)
}

const successPage = `<!DOCTYPE html><html><head><title>RetroSave</title></head>` +
	`<body><h1>You're all set.</h1><p>You can close this tab and return to RetroSave.</p></body></html>`

// acceptCallback serves exactly one request on ln and returns its
// code/state query parameters, or a TimeoutError after timeout.
func acceptCallback(ctx context.Context, ln net.Listener, timeout time.Duration) (code, state string, err error) {
	type result struct{ code, state string }
	resultCh := make(chan result, 1)

	srv := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			select {
			case resultCh <- result{q.Get("code"), q.Get("state")}:
			default:
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, successPage)
		}),
	}
	go srv.Serve(ln)

	select {
	case r := <-resultCh:
		go srv.Shutdown(context.Background())
		return r.code, r.state, nil
	case <-time.After(timeout):
		srv.Close()
		return "", "", agenterrors.NewAuth("auth.acceptCallback", agenterrors.AuthSubTimeout, "timed out waiting for the browser redirect", nil)
	case <-ctx.Done():
		srv.Close()
		return "", "", ctx.Err()
	}
}

// defaultOpenBrowser launches the platform's native URL handler. It
// never needs build tags — only the executable name varies per OS.
func defaultOpenBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
