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

// Package realtime maintains a persistent client connection to the
// server-initiated event stream: connect, authenticate, dispatch
// inbound messages to per-type callbacks, and reconnect with capped
// backoff on failure.
package realtime

import "encoding/json"

// Message types, matching the wire "type" field.
const (
	TypeAuth                = "auth"
	TypePing                = "ping"
	TypePong                = "pong"
	TypeSubscriptionUpdated = "subscription_updated"
	TypeUsageUpdated        = "usage_updated"
	TypeDeviceAdded         = "device_added"
	TypeDeviceRemoved       = "device_removed"
	TypeStorageLimitWarning = "storage_limit_warning"
	TypeSaveLimitWarning    = "save_limit_warning"
	TypeSettingsUpdated     = "settings_updated"
	TypeError               = "error"
)

// priorityTypes bypass throttling entirely and clear the throttle for
// subsequent events of that type, per spec.md §4.15.
var priorityTypes = map[string]bool{
	TypeSubscriptionUpdated: true,
	TypeError:               true,
	TypeAuth:                true,
	TypeStorageLimitWarning: true,
	TypeSaveLimitWarning:    true,
}

// IsPriority reports whether typ bypasses UI-update throttling.
func IsPriority(typ string) bool { return priorityTypes[typ] }

// Message is the flat wire shape all server-initiated events share,
// one field set per Type — the same shape the teacher's own
// websocket.Message uses for its (much smaller) variant set.
type Message struct {
	Type string `json:"type"`

	// auth
	Token string `json:"token,omitempty"`

	// subscription_updated / usage_updated / settings_updated: opaque
	// to this package, forwarded to the caller's callback as-is.
	Data json.RawMessage `json:"data,omitempty"`

	// device_added / device_removed; also sent on an outgoing auth
	// frame, reusing C13's device fingerprint as the realtime session
	// id instead of inventing a second identifier.
	DeviceID string `json:"device_id,omitempty"`

	// storage_limit_warning / save_limit_warning
	Percentage float64 `json:"percentage,omitempty"`
	Warning    string  `json:"message,omitempty"`

	// error
	Error string `json:"error,omitempty"`
}
