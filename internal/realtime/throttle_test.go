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
	"testing"
	"time"
)

func TestDeduplicatorDropsRepeatWithinWindow(t *testing.T) {
	d := newDeduplicator()
	msg := Message{Type: "usage_updated", Data: []byte(`{"x":1}`)}

	if !d.shouldProcess(msg) {
		t.Fatal("first occurrence should process")
	}
	if d.shouldProcess(msg) {
		t.Fatal("duplicate within window should be dropped")
	}
}

func TestDeduplicatorAllowsAfterWindowElapses(t *testing.T) {
	d := &deduplicator{seen: map[[32]byte]time.Time{}}
	msg := Message{Type: "usage_updated"}
	if !d.shouldProcess(msg) {
		t.Fatal("first occurrence should process")
	}
	// Simulate elapsed time by back-dating the recorded timestamp.
	for h := range d.seen {
		d.seen[h] = time.Now().Add(-dedupWindow - time.Millisecond)
	}
	if !d.shouldProcess(msg) {
		t.Fatal("expected the message to process again after the window elapsed")
	}
}

func TestDeduplicatorDistinguishesDifferentMessages(t *testing.T) {
	d := newDeduplicator()
	a := Message{Type: "usage_updated", Data: []byte(`{"x":1}`)}
	b := Message{Type: "usage_updated", Data: []byte(`{"x":2}`)}
	if !d.shouldProcess(a) || !d.shouldProcess(b) {
		t.Fatal("distinct messages should both process")
	}
}

func TestUIThrottlerSuppressesRapidRepeat(t *testing.T) {
	u := newUIThrottler(100 * time.Millisecond)
	if !u.shouldUpdate("usage_updated") {
		t.Fatal("first update should pass")
	}
	if u.shouldUpdate("usage_updated") {
		t.Fatal("rapid repeat should be throttled")
	}
	if !u.shouldUpdate("other_type") {
		t.Fatal("a different event type should not be throttled")
	}
}

func TestUIThrottlerForceUpdateClearsThrottle(t *testing.T) {
	u := newUIThrottler(time.Hour)
	u.shouldUpdate("error")
	u.forceUpdate("error")
	if !u.shouldUpdate("error") {
		t.Fatal("forceUpdate should clear the throttle for the next call")
	}
}

func TestProcessPriorityTypeIsImmediateAndBypassesThrottle(t *testing.T) {
	d := newDeduplicator()
	u := newUIThrottler(time.Hour)
	msg := Message{Type: TypeSubscriptionUpdated}

	if got := process(d, u, msg); got != DispositionImmediate {
		t.Fatalf("process = %v, want DispositionImmediate", got)
	}
	// A second, rapid priority message must also be immediate.
	if got := process(d, u, msg); got != DispositionImmediate {
		t.Fatalf("second process = %v, want DispositionImmediate", got)
	}
}

func TestProcessNonPriorityThrottledAfterFirst(t *testing.T) {
	d := newDeduplicator()
	u := newUIThrottler(time.Hour)
	first := Message{Type: TypeUsageUpdated, Data: []byte(`{"n":1}`)}
	second := Message{Type: TypeUsageUpdated, Data: []byte(`{"n":2}`)}

	if got := process(d, u, first); got != DispositionNormal {
		t.Fatalf("first = %v, want Normal", got)
	}
	if got := process(d, u, second); got != DispositionThrottled {
		t.Fatalf("second = %v, want Throttled (same type, within interval)", got)
	}
}

func TestBatcherFlushesAtBatchSize(t *testing.T) {
	b := newBatcher()
	for i := 0; i < batchSize-1; i++ {
		if flushed := b.add("t", Message{Type: "t"}); flushed != nil {
			t.Fatalf("unexpected early flush at i=%d", i)
		}
	}
	flushed := b.add("t", Message{Type: "t"})
	if len(flushed) != batchSize {
		t.Fatalf("flushed = %d, want %d", len(flushed), batchSize)
	}
}

func TestBatcherCheckTimeoutsFlushesAgedBatch(t *testing.T) {
	b := newBatcher()
	b.add("t", Message{Type: "t"})
	b.batches["t"].createdAt = time.Now().Add(-batchTimeout - time.Millisecond)

	out := b.checkTimeouts()
	if len(out["t"]) != 1 {
		t.Fatalf("expected the aged batch to flush, got %+v", out)
	}
}

func TestBatcherFlushAllReturnsEveryPendingType(t *testing.T) {
	b := newBatcher()
	b.add("a", Message{Type: "a"})
	b.add("b", Message{Type: "b"})

	out := b.flushAll()
	if len(out["a"]) != 1 || len(out["b"]) != 1 {
		t.Fatalf("unexpected flushAll result: %+v", out)
	}
}
