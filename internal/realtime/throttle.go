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

package realtime

import (
	"crypto/sha256"
	"encoding/json"
	"sync"
	"time"
)

const (
	dedupWindow       = 500 * time.Millisecond
	defaultUIInterval = 100 * time.Millisecond
	batchSize         = 10
	batchTimeout      = 50 * time.Millisecond
)

// deduplicator drops a message whose hash matches one seen within the
// last dedupWindow.
type deduplicator struct {
	mu   sync.Mutex
	seen map[[32]byte]time.Time
}

func newDeduplicator() *deduplicator {
	return &deduplicator{seen: map[[32]byte]time.Time{}}
}

func (d *deduplicator) shouldProcess(msg Message) bool {
	b, err := json.Marshal(msg)
	if err != nil {
		return true
	}
	hash := sha256.Sum256(b)
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	for h, ts := range d.seen {
		if now.Sub(ts) >= dedupWindow {
			delete(d.seen, h)
		}
	}

	if ts, ok := d.seen[hash]; ok && now.Sub(ts) < dedupWindow {
		return false
	}
	d.seen[hash] = now
	return true
}

// uiThrottler suppresses UI-facing emissions of the same event type
// within interval, unless the type is a priority type.
type uiThrottler struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[string]time.Time
}

func newUIThrottler(interval time.Duration) *uiThrottler {
	if interval <= 0 {
		interval = defaultUIInterval
	}
	return &uiThrottler{interval: interval, last: map[string]time.Time{}}
}

func (u *uiThrottler) shouldUpdate(eventType string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	now := time.Now()
	if last, ok := u.last[eventType]; ok && now.Sub(last) < u.interval {
		return false
	}
	u.last[eventType] = now
	return true
}

// forceUpdate clears the throttle for eventType, used by priority
// types so the NEXT event of that type is never suppressed either.
func (u *uiThrottler) forceUpdate(eventType string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.last, eventType)
}

// Disposition is the result of running a message through dedup +
// throttle, mirroring the original implementation's ProcessResult.
type Disposition int

const (
	DispositionImmediate Disposition = iota
	DispositionNormal
	DispositionThrottled
	DispositionDuplicate
)

// process passes a priority-type msg straight through as Immediate,
// skipping both deduplication and UI-update throttling; any other msg
// runs through deduplication, then UI-update throttling.
func process(dedup *deduplicator, ui *uiThrottler, msg Message) Disposition {
	if IsPriority(msg.Type) {
		ui.forceUpdate(msg.Type)
		return DispositionImmediate
	}
	if !dedup.shouldProcess(msg) {
		return DispositionDuplicate
	}
	if !ui.shouldUpdate(msg.Type) {
		return DispositionThrottled
	}
	return DispositionNormal
}

// batch accumulates one event type's outgoing messages until batchSize
// is reached or batchTimeout elapses since the first unflushed message.
type batch struct {
	messages  []Message
	createdAt time.Time
}

// batcher groups outgoing messages per event type for bulk send.
type batcher struct {
	mu      sync.Mutex
	batches map[string]*batch
}

func newBatcher() *batcher {
	return &batcher{batches: map[string]*batch{}}
}

// add appends msg to its type's batch, returning the batch's contents
// (and resetting it) if it should flush now.
func (b *batcher) add(eventType string, msg Message) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	bt, ok := b.batches[eventType]
	if !ok {
		bt = &batch{createdAt: time.Now()}
		b.batches[eventType] = bt
	}
	bt.messages = append(bt.messages, msg)

	if len(bt.messages) >= batchSize || time.Since(bt.createdAt) > batchTimeout {
		out := bt.messages
		bt.messages = nil
		bt.createdAt = time.Now()
		return out
	}
	return nil
}

// checkTimeouts flushes every batch that has aged past batchTimeout,
// even though it hasn't reached batchSize yet.
func (b *batcher) checkTimeouts() map[string][]Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := map[string][]Message{}
	for typ, bt := range b.batches {
		if len(bt.messages) > 0 && time.Since(bt.createdAt) > batchTimeout {
			out[typ] = bt.messages
			bt.messages = nil
			bt.createdAt = time.Now()
		}
	}
	return out
}

// flushAll force-flushes every non-empty batch.
func (b *batcher) flushAll() map[string][]Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := map[string][]Message{}
	for typ, bt := range b.batches {
		if len(bt.messages) > 0 {
			out[typ] = bt.messages
			bt.messages = nil
			bt.createdAt = time.Now()
		}
	}
	return out
}
