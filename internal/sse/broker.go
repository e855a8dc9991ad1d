// Package sse fans canvas and session events out to Server-Sent Events
// subscribers.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// Event is one message on the stream.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// CanvasChange is the payload of canvas.* events.
type CanvasChange struct {
	ID int64 `json:"id"`
}

type publishReq struct {
	event   Event
	gallery bool
}

type client struct {
	ch       chan []byte
	prefixes []string
}

func (c *client) wants(eventType string) bool {
	if len(c.prefixes) == 0 {
		return true
	}
	for _, p := range c.prefixes {
		if strings.HasPrefix(eventType, p) {
			return true
		}
	}
	return false
}

// Broker owns its subscriber table from a single goroutine. Callers talk to
// it over channels.
type Broker struct {
	galleryEvery time.Duration
	heartbeat    time.Duration

	subscribeCh   chan *client
	unsubscribeCh chan chan []byte
	publishCh     chan publishReq
	countCh       chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// Option configures a Broker.
type Option func(*Broker)

// WithHeartbeat sets the interval of keep-alive comments written to idle
// streams. Zero disables them.
func WithHeartbeat(d time.Duration) Option {
	return func(b *Broker) { b.heartbeat = d }
}

// NewBroker starts a broker. galleryThrottle bounds how often gallery.updated
// follows a canvas change.
func NewBroker(galleryThrottle time.Duration, opts ...Option) *Broker {
	if galleryThrottle <= 0 {
		galleryThrottle = 2 * time.Second
	}
	b := &Broker{
		galleryEvery:  galleryThrottle,
		heartbeat:     15 * time.Second,
		subscribeCh:   make(chan *client),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan publishReq, 256),
		countCh:       make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]*client)
	var (
		seq         uint64
		lastGallery time.Time
	)

	send := func(ev Event) {
		payload, err := json.Marshal(ev.Data)
		if err != nil {
			return
		}
		seq++
		raw := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, ev.Type, payload))
		for ch, c := range clients {
			if !c.wants(ev.Type) {
				continue
			}
			select {
			case ch <- raw:
			default:
				// slow reader, drop
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

		case c := <-b.subscribeCh:
			clients[c.ch] = c

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case req := <-b.publishCh:
			send(req.event)
			if req.gallery {
				if now := time.Now(); now.Sub(lastGallery) >= b.galleryEvery {
					lastGallery = now
					send(Event{Type: "gallery.updated", Data: struct{}{}})
				}
			}

		case resp := <-b.countCh:
			resp <- len(clients)
		}
	}
}

// Close stops the loop and closes every subscriber channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client. When prefixes are given only events whose
// type starts with one of them are delivered.
func (b *Broker) Subscribe(prefixes ...string) chan []byte {
	c := &client{ch: make(chan []byte, 64), prefixes: prefixes}
	if b.closed.Load() {
		close(c.ch)
		return c.ch
	}
	select {
	case b.subscribeCh <- c:
	case <-b.stopped:
		close(c.ch)
	}
	return c.ch
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
	case b.countCh <- resp:
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

func (b *Broker) enqueue(req publishReq) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- req:
	case <-b.stopped:
	}
}

// Publish sends an event to every interested client.
func (b *Broker) Publish(ev Event) {
	b.enqueue(publishReq{event: ev})
}

// PublishCanvasEvent announces canvas.<kind> for a record and, at most once
// per throttle window, gallery.updated.
func (b *Broker) PublishCanvasEvent(kind string, id int64) {
	switch kind {
	case "created", "updated", "deleted":
	default:
		return
	}
	b.enqueue(publishReq{
		event:   Event{Type: "canvas." + kind, Data: CanvasChange{ID: id}},
		gallery: true,
	})
}

// ServeHTTP streams events (GET /api/events). The optional "types" query
// parameter is a comma separated list of event type prefixes.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	var prefixes []string
	for _, p := range strings.Split(r.URL.Query().Get("types"), ",") {
		if p = strings.TrimSpace(p); p != "" {
			prefixes = append(prefixes, p)
		}
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, "retry: 3000\n\n")
	flusher.Flush()

	ch := b.Subscribe(prefixes...)
	defer b.Unsubscribe(ch)

	var tick <-chan time.Time
	if b.heartbeat > 0 {
		t := time.NewTicker(b.heartbeat)
		defer t.Stop()
		tick = t.C
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
