package push

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gidence/scm/internal/metrics"
	"github.com/gidence/scm/internal/server/hub"
	"github.com/gidence/scm/internal/server/store"
)

const (
	// TickInterval is the drain cadence.
	TickInterval = 5 * time.Second
	// DigestCooldown bounds how often one operator's sockets get a digest.
	DigestCooldown = 60 * time.Second
	// refreshTicks rebuilds the provider client roughly every 20 minutes of
	// non-idle ticks, well inside the APNs token lifetime.
	refreshTicks = 240
)

// Directory is the slice of the store the dispatcher resolves audiences
// through.
type Directory interface {
	UserByID(ctx context.Context, id string) (*store.User, error)
	ClusterAudience(ctx context.Context, clusterID string) ([]store.User, error)
	SubscribersByUser(ctx context.Context, userID string) ([]store.Subscriber, error)
	DeleteSubscriber(ctx context.Context, id string) error
	ProcessorByID(ctx context.Context, id string) (*store.Processor, error)
	View(ctx context.Context, e store.Evidence) store.EvidenceView
}

// Feed is the socket side of delivery.
type Feed interface {
	ConnectedUsers() map[string]bool
	SendToUser(userID string, msg []byte) bool
}

type userState struct {
	clusters []string
	lastSent time.Time
}

// Dispatcher drains the evidence queue on a fixed tick: connected operators
// get a batched socket digest under a per-user cooldown, and every audience
// subscriber gets a device push.
type Dispatcher struct {
	queue    *Queue
	dir      Directory
	feed     Feed
	provider Provider

	users   map[string]*userState
	counter int
	logger  *log.Logger
}

// NewDispatcher wires the dispatcher over its collaborators.
func NewDispatcher(q *Queue, dir Directory, feed Feed, provider Provider) *Dispatcher {
	return &Dispatcher{
		queue:    q,
		dir:      dir,
		feed:     feed,
		provider: provider,
		users:    make(map[string]*userState),
		logger:   log.New(log.Writer(), "[PUSH] ", log.LstdFlags),
	}
}

// Run ticks until the context ends.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			d.RunOnce(ctx, now)
		}
	}
}

// RunOnce processes one tick. Idle ticks do not count toward the provider
// refresh cadence.
func (d *Dispatcher) RunOnce(ctx context.Context, now time.Time) {
	batch := d.queue.Drain()
	if len(batch) == 0 {
		return
	}

	d.digest(ctx, batch, now)
	for _, e := range batch {
		d.notify(ctx, e)
	}

	d.counter++
	if d.counter >= refreshTicks {
		if err := d.provider.Refresh(); err != nil {
			d.logger.Printf("provider refresh failed: %v", err)
		}
		d.counter = 0
	}
}

// digest sends each connected operator the slice of the batch visible to
// their clusters, at most once per cooldown window.
func (d *Dispatcher) digest(ctx context.Context, batch []store.Evidence, now time.Time) {
	for userID := range d.feed.ConnectedUsers() {
		state, ok := d.users[userID]
		if !ok {
			user, err := d.dir.UserByID(ctx, userID)
			if err != nil {
				continue
			}
			state = &userState{clusters: user.ClusterID}
			d.users[userID] = state
		}
		if now.Sub(state.lastSent) < DigestCooldown {
			continue
		}

		var views []store.EvidenceView
		for _, e := range batch {
			if contains(state.clusters, e.ClusterID) {
				views = append(views, d.dir.View(ctx, e))
			}
		}
		if len(views) == 0 {
			continue
		}
		d.feed.SendToUser(userID, hub.DigestMessage(views))
		state.lastSent = now
	}
}

// notify pushes one record to every device of its cluster audience. Terminal
// provider codes prune the subscriber.
func (d *Dispatcher) notify(ctx context.Context, e store.Evidence) {
	audience, err := d.dir.ClusterAudience(ctx, e.ClusterID)
	if err != nil {
		d.logger.Printf("audience lookup failed for cluster %s: %v", e.ClusterID, err)
		return
	}

	title := fmt.Sprintf("Terjadi %d Pelanggaran Baru!", e.ViolationCount())
	subtitle := "Cek sekarang!"
	if p, err := d.dir.ProcessorByID(ctx, e.ProcessorID); err == nil {
		subtitle = fmt.Sprintf("Tertangkap kamera %s", p.Name)
	}

	for _, user := range audience {
		subs, err := d.dir.SubscribersByUser(ctx, user.ID)
		if err != nil {
			continue
		}
		for _, sub := range subs {
			if sub.Kind.Apple == "" {
				continue
			}
			err := d.provider.Push(ctx, Notification{
				Token:    sub.Kind.Apple,
				Title:    title,
				Subtitle: subtitle,
			})
			switch {
			case err == nil:
				metrics.PushSent.Inc()
			case IsTerminal(err):
				d.logger.Printf("pruning subscriber %s: %v", sub.ID, err)
				if derr := d.dir.DeleteSubscriber(ctx, sub.ID); derr == nil {
					metrics.SubscribersPruned.Inc()
				}
			default:
				d.logger.Printf("push to subscriber %s failed: %v", sub.ID, err)
			}
		}
	}
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
