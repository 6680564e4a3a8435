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
	"testing"
	"time"
)

func TestQueuePreservesPushOrder(t *testing.T) {
	q := NewQueue[int]()
	defer q.Close()

	for i := 0; i < 5; i++ {
		q.Push(i)
	}
	for i := 0; i < 5; i++ {
		select {
		case got := <-q.Chan():
			if got != i {
				t.Fatalf("item %d: got %d", i, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("item %d: timed out waiting for delivery", i)
		}
	}
}

func TestQueuePushNeverBlocksWithoutConsumer(t *testing.T) {
	q := NewQueue[string]()
	defer q.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			q.Push("item")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Push blocked with no consumer draining the queue")
	}
}

func TestQueueCloseIsIdempotent(t *testing.T) {
	q := NewQueue[int]()
	q.Close()
	q.Close()
}
