package receiver

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gidence/scm/internal/edge/device"
	"github.com/gidence/scm/internal/envelope"
)

func TestQueueFIFO(t *testing.T) {
	q := &Queue{}
	assert.Nil(t, q.TryPop())

	q.Push(&envelope.Envelope{ID: "1"})
	q.Push(&envelope.Envelope{ID: "2"})
	assert.Equal(t, 2, q.Len())

	assert.Equal(t, "1", q.TryPop().ID)
	assert.Equal(t, "2", q.TryPop().ID)
	assert.Nil(t, q.TryPop())
}

func serveOne(t *testing.T) (string, *Queue, *device.Reading) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ingress.sock")
	queue := &Queue{}
	reading := device.NewReading(nil)

	r := New(path, queue, reading)
	ln, err := r.Listen()
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go r.Serve(ln)
	return path, queue, reading
}

func send(t *testing.T, path string, payload []byte) {
	t.Helper()
	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	_, err = conn.Write(payload)
	require.NoError(t, err)
	require.NoError(t, conn.Close())
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never met")
}

func TestReceiverAssignsIDAndQueues(t *testing.T) {
	path, queue, reading := serveOne(t)

	send(t, path, []byte(`{"camera_id":"cam-1","frame_id":"f","timestamp":1700000000000,"person":[]}`))

	waitFor(t, func() bool { return queue.Len() == 1 })
	env := queue.TryPop()
	require.NotNil(t, env)
	assert.NotEmpty(t, env.ID)
	assert.Equal(t, "cam-1", env.CameraID)

	_, ok := reading.Latest("cam-1")
	assert.True(t, ok)
}

func TestReceiverDropsMalformedPayload(t *testing.T) {
	path, queue, _ := serveOne(t)

	send(t, path, []byte(`not json at all`))
	send(t, path, []byte(`{"camera_id":"","timestamp":0}`))
	// A valid envelope after the garbage still gets through.
	send(t, path, []byte(`{"camera_id":"cam-2","timestamp":5,"person":[]}`))

	waitFor(t, func() bool { return queue.Len() == 1 })
	assert.Equal(t, "cam-2", queue.TryPop().CameraID)
}

func TestListenReplacesStaleSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ingress.sock")

	stale, err := net.Listen("unix", path)
	require.NoError(t, err)
	stale.Close() // leaves the file behind on some platforms

	r := New(path, &Queue{}, device.NewReading(nil))
	ln, err := r.Listen()
	require.NoError(t, err)
	ln.Close()
}
