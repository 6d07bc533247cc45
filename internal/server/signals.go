package server

import "sync"

// signalQueue holds per-user pending signals until the next heartbeat
// drains them. Signals are advisory nudges ("thread.deleted:bob"), so
// a queue lost on restart is harmless: the poller notices on its own
// within one interval.
type signalQueue struct {
	mu      sync.Mutex
	pending map[string][]string
}

func newSignalQueue() *signalQueue {
	return &signalQueue{pending: make(map[string][]string)}
}

func (q *signalQueue) push(uid, signal string) {
	q.mu.Lock()
	q.pending[uid] = append(q.pending[uid], signal)
	q.mu.Unlock()
}

func (q *signalQueue) drain(uid string) []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending[uid]
	delete(q.pending, uid)
	return out
}
