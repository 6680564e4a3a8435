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

package agent

import (
	"context"
	"sync"

	"github.com/retrosave/agent-core/internal/auth"
)

// tokenProvider is the single place the agent keeps its current
// access token, shared by the sync engine's and realtime client's
// token func() (string, bool) callbacks.
type tokenProvider struct {
	mgr *auth.Manager

	mu      sync.Mutex
	current *auth.TokenSet
}

func newTokenProvider(mgr *auth.Manager) *tokenProvider {
	return &tokenProvider{mgr: mgr}
}

// Token returns the current access token, if any. It never blocks on
// network I/O — that only happens in ensure.
func (p *tokenProvider) Token() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return "", false
	}
	return p.current.AccessToken, true
}

// ensure runs the stored→refresh→fresh-login chain (auth.Manager.
// Authenticate) and stores the result for Token to serve.
func (p *tokenProvider) ensure(ctx context.Context) (*auth.TokenSet, error) {
	ts, err := p.mgr.Authenticate(ctx)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.current = ts
	p.mu.Unlock()
	return ts, nil
}
