package memory

import "sync"

const maxQueued = 256

// queue serializes callbacks onto one goroutine per transport.
type queue struct {
	mu     sync.Mutex
	items  []func()
	notify chan struct{}
	done   chan struct{}
	closed bool
}

func newQueue() *queue {
	return &queue{notify: make(chan struct{}, 1), done: make(chan struct{})}
}

func (q *queue) push(fn func()) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, fn)
	q.mu.Unlock()
	q.wake()
}

// tryPush drops fn when the backlog is full.
func (q *queue) tryPush(fn func()) bool {
	q.mu.Lock()
	if q.closed || len(q.items) >= maxQueued {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, fn)
	q.mu.Unlock()
	q.wake()
	return true
}

func (q *queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *queue) close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		q.items = nil
		close(q.done)
	}
	q.mu.Unlock()
}

func (q *queue) run() {
	for {
		select {
		case <-q.done:
			return
		case <-q.notify:
		}
		for {
			q.mu.Lock()
			if q.closed || len(q.items) == 0 {
				q.mu.Unlock()
				break
			}
			fn := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			fn()
		}
	}
}
