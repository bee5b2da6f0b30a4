package app

import (
	"sync"

	"codetrivia-performance/internal/domain"
)

// Feed fans out per-user summary snapshots to live subscribers.
type Feed struct {
	mu          sync.Mutex
	subscribers map[string]map[chan []domain.CategoryPerformance]struct{}
}

func NewFeed() *Feed {
	return &Feed{subscribers: make(map[string]map[chan []domain.CategoryPerformance]struct{})}
}

// HasSubscribers reports whether anyone is listening for userID.
func (f *Feed) HasSubscribers(userID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers[userID]) > 0
}

// Subscribe registers a listener for userID. Snapshots published from now on are delivered
// to the returned channel until cancel is called.
func (f *Feed) Subscribe(userID string) (<-chan []domain.CategoryPerformance, func()) {
	return f.subscribe(userID)
}

func (f *Feed) subscribe(userID string) (chan []domain.CategoryPerformance, func()) {
	ch := make(chan []domain.CategoryPerformance, 8)

	f.mu.Lock()
	subs, ok := f.subscribers[userID]
	if !ok {
		subs = make(map[chan []domain.CategoryPerformance]struct{})
		f.subscribers[userID] = subs
	}
	subs[ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		subs := f.subscribers[userID]
		if _, ok := subs[ch]; !ok {
			return
		}
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(f.subscribers, userID)
		}
	}
	return ch, cancel
}

// prime hands a freshly read snapshot to a new subscriber unless a publish already reached it.
func (f *Feed) prime(userID string, ch chan []domain.CategoryPerformance, rows []domain.CategoryPerformance) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subscribers[userID][ch]; !ok || len(ch) > 0 {
		return
	}
	ch <- rows
}

// Publish delivers rows to every subscriber of userID without blocking.
func (f *Feed) Publish(userID string, rows []domain.CategoryPerformance) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subscribers[userID] {
		select {
		case ch <- rows:
		default:
			// Slow subscriber: drop its oldest snapshot so the latest always lands.
			select {
			case <-ch:
			default:
			}
			ch <- rows
		}
	}
}
