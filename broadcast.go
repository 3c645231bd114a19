package pagevirt

import "sync"

// broadcaster fans a change out to its subscribers.
type broadcaster[T any] struct {
	subscribers map[int]func(Change[T])
	mu          sync.Mutex
	next        int
}

func (b *broadcaster[T]) subscribe(fn func(Change[T])) (unsubscribe func()) {
	b.mu.Lock()
	if b.subscribers == nil {
		b.subscribers = make(map[int]func(Change[T]))
	}
	id := b.next
	b.next++
	b.subscribers[id] = fn
	b.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, id)
			b.mu.Unlock()
		})
	}
}

func (b *broadcaster[T]) publish(change Change[T]) {
	b.mu.Lock()
	subscribers := make([]func(Change[T]), 0, len(b.subscribers))
	for _, fn := range b.subscribers {
		subscribers = append(subscribers, fn)
	}
	b.mu.Unlock()
	for _, fn := range subscribers {
		fn(change)
	}
}
