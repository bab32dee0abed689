// Package sse implements a Server-Sent Events broker for live index updates.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/gitnote/internal/index"
)

// Event types emitted by the broker.
const (
	TypeIndexUpdated = "index.updated"
	TypeNoteCreated  = "note.created"
	TypeNoteUpdated  = "note.updated"
	TypeNoteDeleted  = "note.deleted"
)

// Event is a single SSE message.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// IndexUpdate is the payload of an index.updated event.
type IndexUpdate struct {
	Version uint64 `json:"version"`
	Notes   int    `json:"notes"`
	Folders int    `json:"folders"`
}

// Broker fans events out to connected SSE clients.
//
// A single event loop owns the client set; public methods talk to it over
// channels. Slow clients miss messages instead of stalling the loop.
type Broker struct {
	minInterval time.Duration
	logger      *slog.Logger

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker. minInterval bounds how often index.updated is
// emitted by Forward; intermediate snapshots are coalesced.
func NewBroker(minInterval time.Duration, logger *slog.Logger) *Broker {
	if minInterval <= 0 {
		minInterval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}

	b := &Broker{
		minInterval:   minInterval,
		logger:        logger,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			b.logger.Warn("sse: encode failed",
				slog.String("type", event.Type),
				slog.String("error", err.Error()))
			return
		}
		raw := fmt.Appendf(nil, "event: %s\ndata: %s\n\n", event.Type, payload)
		for ch := range clients {
			select {
			case ch <- raw:
			default:
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the event loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishNoteEvent announces a note change. kind is "created", "updated"
// or "deleted"; anything else is ignored.
func (b *Broker) PublishNoteEvent(kind, path string) {
	var typ string
	switch kind {
	case "created":
		typ = TypeNoteCreated
	case "updated":
		typ = TypeNoteUpdated
	case "deleted":
		typ = TypeNoteDeleted
	default:
		return
	}
	b.Publish(Event{Type: typ, Data: map[string]string{"path": path}})
}

// Forward publishes an index.updated event for every snapshot ix swaps in,
// at most once per minInterval. It returns when ctx is cancelled or the
// index is closed.
func (b *Broker) Forward(ctx context.Context, ix *index.Index) {
	snaps := ix.Subscribe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopped:
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			b.Publish(Event{Type: TypeIndexUpdated, Data: IndexUpdate{
				Version: snap.Version,
				Notes:   snap.NoteCount(),
				Folders: snap.FolderCount(),
			}})
		}

		// snapshots arriving meanwhile collapse into the latest one
		select {
		case <-ctx.Done():
			return
		case <-b.stopped:
			return
		case <-time.After(b.minInterval):
		}
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
