package settings

import (
	"context"
	"sort"
	"sync"

	"github.com/Cyvadra/marketminds/internal/storage"
)

// Listener is called after key changed, with the updated projection
type Listener func(key string, current Settings)

// Watcher keeps a live projection of the settings. It reconciles with the
// store once when created and then applies every change set the area
// publishes, so any context that writes a key is reflected here.
type Watcher struct {
	store *Store
	sub   *storage.Subscription

	mu        sync.RWMutex
	current   Settings
	listeners map[int]Listener
	nextID    int

	done chan struct{}
}

// Watch starts a watcher over the store's area
func (s *Store) Watch(ctx context.Context) *Watcher {
	// Subscribe before reading so no write between the two is missed.
	sub := s.area.Subscribe()
	w := &Watcher{
		store:     s,
		sub:       sub,
		current:   s.GetAll(ctx),
		listeners: make(map[int]Listener),
		done:      make(chan struct{}),
	}
	go w.run()
	return w
}

// Current returns the latest projection
func (w *Watcher) Current() Settings {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange registers fn and returns a function removing it
func (w *Watcher) OnChange(fn Listener) func() {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.listeners[id] = fn
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		delete(w.listeners, id)
		w.mu.Unlock()
	}
}

// Close stops applying changes
func (w *Watcher) Close() {
	w.sub.Close()
	<-w.done
}

// Done is closed once the watcher stops
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

func (w *Watcher) run() {
	defer close(w.done)
	for cs := range w.sub.C {
		w.apply(cs)
	}
}

func (w *Watcher) apply(cs storage.ChangeSet) {
	keys := make([]string, 0, len(cs.Changes))
	for key := range cs.Changes {
		if isKey(key) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		w.mu.Lock()
		if err := w.current.apply(key, cs.Changes[key].NewValue, w.store.defaults); err != nil {
			w.store.logger.Printf("Ignoring change: %v", err)
		}
		current := w.current
		listeners := make([]Listener, 0, len(w.listeners))
		for _, fn := range w.listeners {
			listeners = append(listeners, fn)
		}
		w.mu.Unlock()

		for _, fn := range listeners {
			fn(key, current)
		}
	}
}

func isKey(key string) bool {
	for _, k := range Keys {
		if k == key {
			return true
		}
	}
	return false
}
