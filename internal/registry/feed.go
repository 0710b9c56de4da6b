package registry

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// DiscoveryEvent is broadcast over Feed when a new, not-yet-adopted printer
// polls for the first time. It lets an operator settings UI watch printers
// show up live instead of polling the discovery list.
type DiscoveryEvent struct {
	MAC        string `json:"mac"`
	ClientType string `json:"client_type"`
}

// Feed is an in-process broadcast hub for discovery events, adapted from
// the teacher's common/ws.Hub: a channel-registered set of subscribers fed
// by a single broadcast goroutine, independent of the websocket transport
// itself so it can be unit tested without a real connection.
type Feed struct {
	mu         sync.RWMutex
	clients    map[string]chan DiscoveryEvent
	register   chan registration
	unregister chan string
	broadcast  chan DiscoveryEvent
	shutdown   chan struct{}
}

type registration struct {
	id string
	ch chan DiscoveryEvent
}

// NewFeed creates and starts a Feed.
func NewFeed() *Feed {
	f := &Feed{
		clients:    make(map[string]chan DiscoveryEvent),
		register:   make(chan registration),
		unregister: make(chan string),
		broadcast:  make(chan DiscoveryEvent, 64),
		shutdown:   make(chan struct{}),
	}
	go f.run()
	return f
}

func (f *Feed) run() {
	for {
		select {
		case reg := <-f.register:
			f.mu.Lock()
			f.clients[reg.id] = reg.ch
			f.mu.Unlock()
		case id := <-f.unregister:
			f.mu.Lock()
			if ch, ok := f.clients[id]; ok {
				close(ch)
				delete(f.clients, id)
			}
			f.mu.Unlock()
		case ev := <-f.broadcast:
			f.mu.RLock()
			for _, ch := range f.clients {
				select {
				case ch <- ev:
				default:
					// Subscriber too slow; drop rather than block the hub.
				}
			}
			f.mu.RUnlock()
		case <-f.shutdown:
			f.mu.Lock()
			for id, ch := range f.clients {
				close(ch)
				delete(f.clients, id)
			}
			f.mu.Unlock()
			return
		}
	}
}

// Notify broadcasts a discovery event to every subscriber. Non-blocking:
// if the broadcast queue is full, the event is dropped.
func (f *Feed) Notify(ev DiscoveryEvent) {
	select {
	case f.broadcast <- ev:
	default:
	}
}

// Subscribe registers a new listener under the caller-chosen id (the same
// id is later passed to Unsubscribe) and returns the channel events arrive
// on. Used directly by tests and by
// ServeHTTP for websocket clients.
func (f *Feed) Subscribe(id string) <-chan DiscoveryEvent {
	ch := make(chan DiscoveryEvent, 16)
	f.register <- registration{id: id, ch: ch}
	return ch
}

// Unsubscribe removes a listener registered with Subscribe, closing its
// channel.
func (f *Feed) Unsubscribe(id string) {
	f.unregister <- id
}

// Stop shuts down the feed and closes every subscriber channel.
func (f *Feed) Stop() {
	close(f.shutdown)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeHTTP upgrades the request to a websocket and streams DiscoveryEvents
// to it as JSON until the client disconnects.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	id := r.RemoteAddr
	ch := f.Subscribe(id)
	defer f.Unsubscribe(id)

	for ev := range ch {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}
