package meshload

import (
	"sync"

	"github.com/gogpu/meshload/meshcore"
)

// EventKind discriminates job output events.
type EventKind int

const (
	// EventGeometry carries one chunk's processed geometry, delivered
	// strictly in file (chunk ID) order.
	EventGeometry EventKind = iota

	// EventLOD carries an upgraded level-of-detail tier.
	EventLOD

	// EventCompleted terminates the stream on success. Bounds holds the
	// final global bounding box.
	EventCompleted

	// EventFailed terminates the stream on failure. Err holds the cause.
	EventFailed

	// EventCancelled terminates the stream after a cancellation.
	EventCancelled
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventGeometry:
		return "geometry"
	case EventLOD:
		return "lod"
	case EventCompleted:
		return "completed"
	case EventFailed:
		return "failed"
	case EventCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Event is one element of a job's output stream: ordered geometry
// buffers, periodic LOD upgrades, and exactly one terminal event.
type Event struct {
	Kind     EventKind
	Job      meshcore.JobID
	Geometry *meshcore.GeometryBuffer
	LOD      *meshcore.LODLevel
	Bounds   meshcore.Bounds
	Err      error
}

// Terminal reports whether the event closes the stream.
func (e Event) Terminal() bool {
	return e.Kind == EventCompleted || e.Kind == EventFailed || e.Kind == EventCancelled
}

// eventQueue decouples the merge loop from the consumer: pushes never
// block, order is preserved, and the subscriber channel is closed after
// the terminal event. The queue is bounded in practice by the job's
// chunk count.
type eventQueue struct {
	mu      sync.Mutex
	items   []Event
	notify  chan struct{}
	out     chan Event
	started bool
	done    bool
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		notify: make(chan struct{}, 1),
		out:    make(chan Event, 16),
	}
}

// push appends an event. Pushes after the terminal event are dropped.
func (q *eventQueue) push(ev Event) {
	q.mu.Lock()
	if q.done {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, ev)
	if ev.Terminal() {
		q.done = true
	}
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// channel returns the subscriber channel, starting the pump on first use.
func (q *eventQueue) channel() <-chan Event {
	q.mu.Lock()
	if !q.started {
		q.started = true
		go q.pump()
	}
	q.mu.Unlock()
	return q.out
}

func (q *eventQueue) pump() {
	for {
		q.mu.Lock()
		var batch []Event
		batch, q.items = q.items, nil
		done := q.done
		q.mu.Unlock()

		for _, ev := range batch {
			q.out <- ev
		}
		if done && len(batch) > 0 && batch[len(batch)-1].Terminal() {
			close(q.out)
			return
		}
		if done {
			// Terminal already forwarded in an earlier batch.
			q.mu.Lock()
			empty := len(q.items) == 0
			q.mu.Unlock()
			if empty {
				close(q.out)
				return
			}
			continue
		}
		<-q.notify
	}
}

// progressFeed is a conflated, push-based progress stream: the latest
// report wins and sends never block the coordinator. Consumers must
// tolerate reports with unchanged percent.
type progressFeed struct {
	ch     chan meshcore.ProgressReport
	mu     sync.Mutex
	latest meshcore.ProgressReport
	closed bool
}

func newProgressFeed() *progressFeed {
	return &progressFeed{ch: make(chan meshcore.ProgressReport, 1)}
}

func (f *progressFeed) publish(rep meshcore.ProgressReport) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.latest = rep

	// Non-blocking, latest-wins: drop the stale report if the consumer
	// has not drained it yet.
	select {
	case f.ch <- rep:
	default:
		select {
		case <-f.ch:
		default:
		}
		select {
		case f.ch <- rep:
		default:
		}
	}
}

func (f *progressFeed) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	close(f.ch)
}

// Latest returns the most recent report.
func (f *progressFeed) Latest() meshcore.ProgressReport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest
}
