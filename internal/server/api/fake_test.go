package api

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/gidence/scm/internal/fleet"
	"github.com/gidence/scm/internal/server/auth"
	"github.com/gidence/scm/internal/server/config"
	"github.com/gidence/scm/internal/server/liveness"
	"github.com/gidence/scm/internal/server/push"
	"github.com/gidence/scm/internal/server/store"
)

// fakeStore is an in-memory Store for handler tests.
type fakeStore struct {
	users       map[string]store.User
	clusters    map[string]store.Cluster
	uniforms    map[string]store.Uniform
	processors  map[string]store.Processor
	cameras     map[string]store.Camera
	evidences   map[string]store.Evidence
	subscribers map[string]store.Subscriber
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:       make(map[string]store.User),
		clusters:    make(map[string]store.Cluster),
		uniforms:    make(map[string]store.Uniform),
		processors:  make(map[string]store.Processor),
		cameras:     make(map[string]store.Camera),
		evidences:   make(map[string]store.Evidence),
		subscribers: make(map[string]store.Subscriber),
	}
}

func (f *fakeStore) InsertUser(_ context.Context, u store.User) (*store.User, error) {
	hash, _ := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.MinCost)
	u.ID = uuid.NewString()
	u.Password = string(hash)
	f.users[u.ID] = u
	return &u, nil
}

func (f *fakeStore) UpdateUser(_ context.Context, u store.User, password string) (*store.User, error) {
	existing, ok := f.users[u.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if password != "" {
		hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		u.Password = string(hash)
	} else {
		u.Password = existing.Password
	}
	f.users[u.ID] = u
	return &u, nil
}

func (f *fakeStore) DeleteUser(_ context.Context, id string) error {
	if _, ok := f.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.users, id)
	for sid, sub := range f.subscribers {
		if sub.UserID == id {
			delete(f.subscribers, sid)
		}
	}
	return nil
}

func (f *fakeStore) UserByID(_ context.Context, id string) (*store.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (f *fakeStore) Users(_ context.Context, _ store.UserQuery) ([]store.User, error) {
	var out []store.User
	for _, u := range f.users {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeStore) Authenticate(_ context.Context, number, password string) (*store.User, error) {
	for _, u := range f.users {
		if u.Number == number {
			if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) != nil {
				return nil, store.ErrInvalidCombination
			}
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) InsertCluster(_ context.Context, c store.Cluster) (*store.Cluster, error) {
	c.ID = uuid.NewString()
	f.clusters[c.ID] = c
	return &c, nil
}

func (f *fakeStore) UpdateCluster(_ context.Context, c store.Cluster) (*store.Cluster, error) {
	if _, ok := f.clusters[c.ID]; !ok {
		return nil, store.ErrNotFound
	}
	f.clusters[c.ID] = c
	return &c, nil
}

func (f *fakeStore) DeleteCluster(_ context.Context, id string) error {
	if _, ok := f.clusters[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.clusters, id)
	return nil
}

func (f *fakeStore) ClusterByID(_ context.Context, id string) (*store.Cluster, error) {
	c, ok := f.clusters[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (f *fakeStore) Clusters(_ context.Context, ids []string) ([]store.Cluster, error) {
	var out []store.Cluster
	for _, c := range f.clusters {
		if ids == nil || containsStr(ids, c.ID) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) InsertUniform(_ context.Context, u store.Uniform) (*store.Uniform, error) {
	u.ID = uuid.NewString()
	f.uniforms[u.ID] = u
	return &u, nil
}

func (f *fakeStore) UpdateUniform(_ context.Context, u store.Uniform) (*store.Uniform, error) {
	if _, ok := f.uniforms[u.ID]; !ok {
		return nil, store.ErrNotFound
	}
	f.uniforms[u.ID] = u
	return &u, nil
}

func (f *fakeStore) DeleteUniform(_ context.Context, id string) error {
	if _, ok := f.uniforms[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.uniforms, id)
	return nil
}

func (f *fakeStore) UniformByID(_ context.Context, id string) (*store.Uniform, error) {
	u, ok := f.uniforms[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (f *fakeStore) Uniforms(_ context.Context, ids []string) ([]store.Uniform, error) {
	var out []store.Uniform
	for _, u := range f.uniforms {
		if ids == nil || containsStr(ids, u.ID) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) InsertProcessor(_ context.Context, clusterID string, desc fleet.Processor) (*store.Processor, error) {
	p := store.Processor{
		ID:        desc.ID,
		ClusterID: clusterID,
		Name:      desc.Name,
		Model:     desc.Model,
		Address:   desc.Address,
		Version:   desc.Version,
	}
	f.processors[p.ID] = p
	return &p, nil
}

func (f *fakeStore) UpdateProcessor(_ context.Context, desc fleet.Processor) (*store.Processor, error) {
	p, ok := f.processors[desc.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	p.Name = desc.Name
	p.Model = desc.Model
	p.Address = desc.Address
	p.Version = desc.Version
	f.processors[p.ID] = p
	return &p, nil
}

func (f *fakeStore) AssignProcessor(_ context.Context, id, clusterID string) (*store.Processor, error) {
	p, ok := f.processors[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	p.ClusterID = clusterID
	f.processors[id] = p
	return &p, nil
}

func (f *fakeStore) DeleteProcessor(_ context.Context, id string) error {
	if _, ok := f.processors[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.processors, id)
	for cid, c := range f.cameras {
		if c.ProcessorID == id {
			delete(f.cameras, cid)
		}
	}
	for eid, e := range f.evidences {
		if e.ProcessorID == id {
			delete(f.evidences, eid)
		}
	}
	return nil
}

func (f *fakeStore) ProcessorByID(_ context.Context, id string) (*store.Processor, error) {
	p, ok := f.processors[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (f *fakeStore) Processors(_ context.Context, clusterID string) ([]store.Processor, error) {
	var out []store.Processor
	for _, p := range f.processors {
		if clusterID == "" || p.ClusterID == clusterID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) ReplaceProcessorCameras(_ context.Context, p *store.Processor, cams []fleet.Camera) error {
	reported := make(map[string]bool, len(cams))
	for _, c := range cams {
		reported[c.ID] = true
		f.cameras[c.ID] = store.Camera{
			ID:          c.ID,
			ClusterID:   p.ClusterID,
			ProcessorID: p.ID,
			Name:        c.Name,
			Address:     c.Address,
		}
	}
	for id, c := range f.cameras {
		if c.ProcessorID == p.ID && !reported[id] {
			delete(f.cameras, id)
			for eid, e := range f.evidences {
				if e.CameraID == id {
					delete(f.evidences, eid)
				}
			}
		}
	}
	return nil
}

func (f *fakeStore) CameraByID(_ context.Context, id string) (*store.Camera, error) {
	c, ok := f.cameras[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (f *fakeStore) Cameras(_ context.Context, q store.CameraQuery) ([]store.Camera, error) {
	var out []store.Camera
	for _, c := range f.cameras {
		if q.ClusterID != "" && c.ClusterID != q.ClusterID {
			continue
		}
		if q.ProcessorID != "" && c.ProcessorID != q.ProcessorID {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeStore) InsertEvidence(_ context.Context, e store.Evidence) (*store.Evidence, bool, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if existing, ok := f.evidences[e.ID]; ok {
		return &existing, false, nil
	}
	f.evidences[e.ID] = e
	return &e, true, nil
}

func (f *fakeStore) Evidences(_ context.Context, q store.EvidenceQuery) ([]store.Evidence, error) {
	var out []store.Evidence
	for _, e := range f.evidences {
		if len(q.ClusterID) > 0 && !containsStr(q.ClusterID, e.ClusterID) {
			continue
		}
		if q.ProcessorID != "" && e.ProcessorID != q.ProcessorID {
			continue
		}
		if q.CameraID != "" && e.CameraID != q.CameraID {
			continue
		}
		if q.Since > 0 && e.Timestamp < q.Since {
			continue
		}
		if q.Until > 0 && e.Timestamp > q.Until {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Resolved != out[j].Resolved {
			return !out[i].Resolved
		}
		return out[i].Timestamp > out[j].Timestamp
	})
	return out, nil
}

func (f *fakeStore) EvidenceByID(_ context.Context, id string) (*store.Evidence, error) {
	e, ok := f.evidences[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &e, nil
}

func (f *fakeStore) UpdateEvidenceResolved(_ context.Context, id string, resolved bool) (*store.Evidence, error) {
	e, ok := f.evidences[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	e.Resolved = resolved
	f.evidences[id] = e
	return &e, nil
}

func (f *fakeStore) View(_ context.Context, e store.Evidence) store.EvidenceView {
	v := store.EvidenceView{
		ID:        e.ID,
		Cluster:   e.ClusterID,
		Processor: e.ProcessorID,
		Camera:    e.CameraID,
		FrameID:   e.FrameID,
		Timestamp: e.Timestamp,
		Person:    e.Person,
		Path:      e.Path,
		Resolved:  e.Resolved,
	}
	if c, ok := f.clusters[e.ClusterID]; ok {
		v.Cluster = c.Name
	}
	if p, ok := f.processors[e.ProcessorID]; ok {
		v.Processor = p.Name
	}
	if c, ok := f.cameras[e.CameraID]; ok {
		v.Camera = c.Name
	}
	return v
}

func (f *fakeStore) InsertSubscriber(_ context.Context, sub store.Subscriber) (*store.Subscriber, error) {
	sub.ID = uuid.NewString()
	f.subscribers[sub.ID] = sub
	return &sub, nil
}

func (f *fakeStore) DeleteSubscriber(_ context.Context, id string) error {
	if _, ok := f.subscribers[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.subscribers, id)
	return nil
}

func (f *fakeStore) SubscribersByUser(_ context.Context, userID string) ([]store.Subscriber, error) {
	var out []store.Subscriber
	for _, sub := range f.subscribers {
		if sub.UserID == userID {
			out = append(out, sub)
		}
	}
	return out, nil
}

func containsStr(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// fakeHub records broadcast frames.
type fakeHub struct {
	frames [][]byte
}

func (f *fakeHub) Broadcast(msg []byte) { f.frames = append(f.frames, msg) }

func (f *fakeHub) ServeWS(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNotImplemented)
}

func writeKeyPair(t *testing.T, dir, privateName, publicName string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	require.NoError(t, os.WriteFile(filepath.Join(dir, privateName), privPEM, 0o600))

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	require.NoError(t, os.WriteFile(filepath.Join(dir, publicName), pubPEM, 0o644))
}

type testServer struct {
	srv     *Server
	store   *fakeStore
	hub     *fakeHub
	tracker *liveness.Tracker
	queue   *push.Queue
	keys    *auth.Keys
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	keyDir := t.TempDir()
	writeKeyPair(t, keyDir, "private_access.key", "public_access.pem")
	writeKeyPair(t, keyDir, "private_refresh.key", "public_refresh.pem")
	keys, err := auth.LoadKeys(keyDir)
	require.NoError(t, err)

	cfg := &config.Config{
		BaseURL:     "http://localhost:8000",
		EvidenceDir: t.TempDir(),
	}
	st := newFakeStore()
	h := &fakeHub{}
	tracker := liveness.NewTracker()
	queue := &push.Queue{}

	return &testServer{
		srv:     New(cfg, st, keys, h, tracker, queue),
		store:   st,
		hub:     h,
		tracker: tracker,
		queue:   queue,
		keys:    keys,
	}
}

// tokenFor issues an access token for a user already present in the fake
// store.
func (ts *testServer) tokenFor(t *testing.T, user *store.User) string {
	t.Helper()
	pair, err := ts.keys.IssuePair(user, "http://localhost:8000", time.Now())
	require.NoError(t, err)
	return pair.Access
}
