// Package receiver accepts detection envelopes from the local inference
// subprocess over a unix-domain socket. One connection carries exactly one
// JSON envelope, terminated by end-of-stream.
package receiver

import (
	"io"
	"log"
	"net"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/gidence/scm/internal/edge/device"
	"github.com/gidence/scm/internal/envelope"
	"github.com/gidence/scm/internal/metrics"
)

// SocketPath is the well-known ingress socket of the edge agent.
const SocketPath = "/tmp/gidence-scm_uds.sock"

// Queue is the in-process FIFO between the receiver and the dedup worker.
type Queue struct {
	mu    sync.Mutex
	items []*envelope.Envelope
}

// Push appends one envelope.
func (q *Queue) Push(e *envelope.Envelope) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, e)
}

// TryPop removes and returns the oldest envelope, or nil when empty.
func (q *Queue) TryPop() *envelope.Envelope {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	e := q.items[0]
	q.items = q.items[1:]
	return e
}

// Len returns the number of queued envelopes.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Receiver owns the ingress socket. Every decoded envelope gets a fresh id,
// is queued for the dedup worker, and refreshes the reading snapshot.
type Receiver struct {
	path    string
	queue   *Queue
	reading *device.Reading
	logger  *log.Logger
}

// New builds a receiver bound to path.
func New(path string, queue *Queue, reading *device.Reading) *Receiver {
	return &Receiver{
		path:    path,
		queue:   queue,
		reading: reading,
		logger:  log.New(log.Writer(), "[UDS] ", log.LstdFlags),
	}
}

// Listen removes any stale socket file and binds a fresh listener.
func (r *Receiver) Listen() (net.Listener, error) {
	if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return net.Listen("unix", r.path)
}

// Serve accepts connections until the listener closes. Malformed payloads
// and read failures are logged and the connection dropped; accepting
// continues.
func (r *Receiver) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go r.handle(conn)
	}
}

func (r *Receiver) handle(conn net.Conn) {
	defer conn.Close()

	data, err := io.ReadAll(conn)
	if err != nil {
		r.logger.Printf("read failed: %v", err)
		return
	}

	env, err := envelope.Decode(data)
	if err != nil {
		r.logger.Printf("dropping payload: %v", err)
		return
	}
	env.ID = uuid.NewString()

	r.queue.Push(env)
	r.reading.Update(env)
	metrics.EnvelopesReceived.Inc()
}
