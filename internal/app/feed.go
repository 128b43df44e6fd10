package app

import (
	"sync"

	"github.com/dkeye/Lobby/internal/app/admission"
	"github.com/rs/zerolog/log"
)

const feedBuffer = 32

const (
	MessageStatus   = "status"
	MessageNavigate = "navigate"
)

// Message is what a status feed watcher receives.
type Message struct {
	Type  string               `json:"type"`
	View  *admission.ViewModel `json:"view,omitempty"`
	Route string               `json:"route,omitempty"`
}

// Feed fans one controller's view updates and navigation requests out to
// watchers. Publishing never blocks; a watcher that falls behind loses
// messages rather than stalling the controller.
type Feed struct {
	mu   sync.Mutex
	subs map[int]chan Message
	next int
	last *admission.ViewModel
}

func NewFeed() *Feed {
	return &Feed{subs: make(map[int]chan Message)}
}

func (f *Feed) PublishView(v admission.ViewModel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = &v
	f.broadcastLocked(Message{Type: MessageStatus, View: &v})
}

// Navigate implements admission.Navigator.
func (f *Feed) Navigate(route string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcastLocked(Message{Type: MessageNavigate, Route: route})
}

func (f *Feed) broadcastLocked(m Message) {
	for id, ch := range f.subs {
		select {
		case ch <- m:
		default:
			log.Warn().Str("module", "app.feed").Int("watcher", id).Str("type", m.Type).Msg("watcher backpressure, message dropped")
		}
	}
}

// Subscribe returns a watcher channel primed with the latest view, if any.
func (f *Feed) Subscribe() (<-chan Message, func()) {
	ch := make(chan Message, feedBuffer)
	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = ch
	if f.last != nil {
		v := *f.last
		ch <- Message{Type: MessageStatus, View: &v}
	}
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if _, ok := f.subs[id]; ok {
				delete(f.subs, id)
				close(ch)
			}
		})
	}
}

// Watchers is the number of open watcher channels.
func (f *Feed) Watchers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Close ends every watcher.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, ch := range f.subs {
		close(ch)
		delete(f.subs, id)
	}
}
