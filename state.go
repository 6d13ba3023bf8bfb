package authsession

import "sync"

// Listener receives the current access token; "" means unauthenticated.
type Listener func(token string)

// TokenState is a single-slot observable value holding the current access
// token. Subscribers are called in subscription order, never while an
// internal lock is held.
//
// Only one goroutine delivers at a time. A publish that arrives while another
// goroutine is delivering is handed to that goroutine, and listeners always
// receive the value current at delivery time, so the last value a listener
// sees is the last value published.
type TokenState struct {
	mu         sync.RWMutex
	token      string
	version    uint64
	delivering bool
	nextID     int
	listeners  map[int]*subscription
	order      []int
}

type subscription struct {
	fn   Listener
	seen uint64
}

// NewTokenState creates an unauthenticated state
func NewTokenState() *TokenState {
	return &TokenState{
		version:   1,
		listeners: make(map[int]*subscription),
	}
}

// Get returns the current token
func (s *TokenState) Get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Subscribe registers fn and delivers the current value to it.
// The returned function removes the subscription; calling it twice is safe.
func (s *TokenState) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = &subscription{fn: fn}
	s.order = append(s.order, id)
	s.mu.Unlock()

	s.deliver()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.listeners, id)
			for i, v := range s.order {
				if v == id {
					s.order = append(s.order[:i], s.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish sets the token and notifies all listeners
func (s *TokenState) Publish(token string) {
	s.set(token)()
}

// set stores the token and returns a function that performs the notification.
// Callers holding their own locks run it after releasing them.
func (s *TokenState) set(token string) (notify func()) {
	s.mu.Lock()
	s.token = token
	s.version++
	s.mu.Unlock()
	return s.deliver
}

// deliver calls every listener that has not yet seen the current version.
// It returns at once if another goroutine is already delivering; that
// goroutine keeps going until no listener is behind.
func (s *TokenState) deliver() {
	s.mu.Lock()
	if s.delivering {
		s.mu.Unlock()
		return
	}
	s.delivering = true
	defer func() {
		s.mu.Lock()
		s.delivering = false
		s.mu.Unlock()
	}()

	for {
		sub := s.nextBehindLocked()
		if sub == nil {
			s.mu.Unlock()
			return
		}
		sub.seen = s.version
		token := s.token
		s.mu.Unlock()
		sub.fn(token)
		s.mu.Lock()
	}
}

func (s *TokenState) nextBehindLocked() *subscription {
	for _, id := range s.order {
		if sub := s.listeners[id]; sub.seen != s.version {
			return sub
		}
	}
	return nil
}
