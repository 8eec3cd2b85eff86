package storage

import "sync"

// Feed fans change sets out to subscriptions. Every subscription receives
// every change set in publish order; slow readers queue, they never drop.
type Feed struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

// Subscribe registers a new subscription
func (f *Feed) Subscribe() *Subscription {
	s := &Subscription{
		c:    make(chan ChangeSet),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		feed: f,
	}
	s.C = s.c

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		s.stop()
		close(s.c)
		return s
	}
	if f.subs == nil {
		f.subs = make(map[*Subscription]struct{})
	}
	f.subs[s] = struct{}{}
	f.mu.Unlock()

	go s.pump()
	return s
}

// Publish queues cs on every live subscription
func (f *Feed) Publish(cs ChangeSet) {
	if len(cs.Changes) == 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for s := range f.subs {
		s.enqueue(cs)
	}
}

// Close ends every subscription
func (f *Feed) Close() {
	f.mu.Lock()
	subs := f.subs
	f.subs = nil
	f.closed = true
	f.mu.Unlock()

	for s := range subs {
		s.stop()
	}
}

func (f *Feed) remove(s *Subscription) {
	f.mu.Lock()
	delete(f.subs, s)
	f.mu.Unlock()
}

// Subscription delivers change sets on C until closed
type Subscription struct {
	C <-chan ChangeSet

	c     chan ChangeSet
	mu    sync.Mutex
	queue []ChangeSet
	wake  chan struct{}
	done  chan struct{}
	once  sync.Once
	feed  *Feed
}

// Close stops delivery and closes C
func (s *Subscription) Close() {
	if s.feed != nil {
		s.feed.remove(s)
	}
	s.stop()
}

func (s *Subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *Subscription) enqueue(cs ChangeSet) {
	s.mu.Lock()
	s.queue = append(s.queue, cs)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.c)
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			next := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			select {
			case s.c <- next:
			case <-s.done:
				return
			}
		}
	}
}
