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

// Package lockmap hands out one mutex per key, lazily, so callers can
// serialize work on the same key without serializing work on
// different keys.
package lockmap

import "sync"

// Map is a set of per-key mutexes, backed by sync.Map's LoadOrStore
// the same way the teacher's GameStore and UserIndexStore allocate one
// mutex per game/user ID. The zero value is ready to use.
type Map struct {
	locks sync.Map // key -> *sync.Mutex
}

// Lock blocks until the mutex for key is held, returning an unlock
// function the caller must call exactly once (typically via defer).
func (m *Map) Lock(key string) func() {
	v, _ := m.locks.LoadOrStore(key, &sync.Mutex{})
	l := v.(*sync.Mutex)
	l.Lock()
	return l.Unlock
}
