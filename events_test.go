package meshload

import (
	"testing"
	"time"

	"github.com/gogpu/meshload/meshcore"
)

func TestEventQueueOrderAndClose(t *testing.T) {
	q := newEventQueue()
	for i := 0; i < 5; i++ {
		q.push(Event{Kind: EventGeometry, Geometry: &meshcore.GeometryBuffer{ChunkID: i}})
	}
	q.push(Event{Kind: EventCompleted})
	// Pushes after the terminal event are dropped.
	q.push(Event{Kind: EventGeometry, Geometry: &meshcore.GeometryBuffer{ChunkID: 99}})

	var got []Event
	for ev := range q.channel() {
		got = append(got, ev)
	}
	if len(got) != 6 {
		t.Fatalf("received %d events, want 6", len(got))
	}
	for i := 0; i < 5; i++ {
		if got[i].Kind != EventGeometry || got[i].Geometry.ChunkID != i {
			t.Errorf("event %d = %v chunk %d, want geometry chunk %d",
				i, got[i].Kind, got[i].Geometry.ChunkID, i)
		}
	}
	if !got[5].Terminal() {
		t.Errorf("last event %v is not terminal", got[5].Kind)
	}
}

func TestEventQueueSubscriberAfterPushes(t *testing.T) {
	// Subscribing late still sees the full stream from the start.
	q := newEventQueue()
	q.push(Event{Kind: EventGeometry, Geometry: &meshcore.GeometryBuffer{ChunkID: 0}})
	q.push(Event{Kind: EventCancelled})

	var kinds []EventKind
	for ev := range q.channel() {
		kinds = append(kinds, ev.Kind)
	}
	if len(kinds) != 2 || kinds[0] != EventGeometry || kinds[1] != EventCancelled {
		t.Errorf("kinds = %v, want [geometry cancelled]", kinds)
	}
}

func TestEventQueuePushNeverBlocks(t *testing.T) {
	// No subscriber at all: a large number of pushes must return.
	q := newEventQueue()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			q.push(Event{Kind: EventGeometry})
		}
		q.push(Event{Kind: EventCompleted})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("push blocked without a subscriber")
	}
}

func TestProgressFeedConflation(t *testing.T) {
	f := newProgressFeed()
	for i := 1; i <= 100; i++ {
		f.publish(meshcore.ProgressReport{BytesProcessed: int64(i)})
	}

	// The consumer sees the latest report, not a backlog of 100.
	rep := <-f.ch
	if rep.BytesProcessed != 100 {
		t.Errorf("conflated report = %d, want 100 (latest wins)", rep.BytesProcessed)
	}
	if got := f.Latest(); got.BytesProcessed != 100 {
		t.Errorf("Latest() = %d, want 100", got.BytesProcessed)
	}

	f.close()
	if _, ok := <-f.ch; ok {
		t.Error("channel open after close")
	}

	// Publishing after close is a no-op, not a panic.
	f.publish(meshcore.ProgressReport{BytesProcessed: 200})
	if got := f.Latest(); got.BytesProcessed != 100 {
		t.Errorf("Latest() after close = %d, want 100", got.BytesProcessed)
	}
}
