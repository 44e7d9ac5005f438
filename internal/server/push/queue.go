package push

import (
	"sync"

	"github.com/gidence/scm/internal/server/store"
)

// Queue buffers persisted evidence between the intake handler and the
// dispatcher tick.
type Queue struct {
	mu    sync.Mutex
	items []store.Evidence
}

// Push appends one record.
func (q *Queue) Push(e store.Evidence) {
	q.mu.Lock()
	q.items = append(q.items, e)
	q.mu.Unlock()
}

// Drain takes everything queued so far.
func (q *Queue) Drain() []store.Evidence {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()
	return items
}

// Len reports the queued count.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
