// Package api is the coordination server's HTTP surface: the edge-facing
// sync and evidence intake endpoints, the operator resource API, and the
// websocket upgrade.
package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/gidence/scm/internal/fleet"
	"github.com/gidence/scm/internal/metrics"
	"github.com/gidence/scm/internal/server/auth"
	"github.com/gidence/scm/internal/server/config"
	"github.com/gidence/scm/internal/server/liveness"
	"github.com/gidence/scm/internal/server/push"
	"github.com/gidence/scm/internal/server/store"
)

// Store is the persistence surface the handlers run against. *store.Store
// implements it; tests swap in an in-memory fake.
type Store interface {
	InsertUser(ctx context.Context, u store.User) (*store.User, error)
	UpdateUser(ctx context.Context, u store.User, password string) (*store.User, error)
	DeleteUser(ctx context.Context, id string) error
	UserByID(ctx context.Context, id string) (*store.User, error)
	Users(ctx context.Context, q store.UserQuery) ([]store.User, error)
	Authenticate(ctx context.Context, number, password string) (*store.User, error)

	InsertCluster(ctx context.Context, c store.Cluster) (*store.Cluster, error)
	UpdateCluster(ctx context.Context, c store.Cluster) (*store.Cluster, error)
	DeleteCluster(ctx context.Context, id string) error
	ClusterByID(ctx context.Context, id string) (*store.Cluster, error)
	Clusters(ctx context.Context, ids []string) ([]store.Cluster, error)

	InsertUniform(ctx context.Context, u store.Uniform) (*store.Uniform, error)
	UpdateUniform(ctx context.Context, u store.Uniform) (*store.Uniform, error)
	DeleteUniform(ctx context.Context, id string) error
	UniformByID(ctx context.Context, id string) (*store.Uniform, error)
	Uniforms(ctx context.Context, ids []string) ([]store.Uniform, error)

	InsertProcessor(ctx context.Context, clusterID string, desc fleet.Processor) (*store.Processor, error)
	UpdateProcessor(ctx context.Context, desc fleet.Processor) (*store.Processor, error)
	AssignProcessor(ctx context.Context, id, clusterID string) (*store.Processor, error)
	DeleteProcessor(ctx context.Context, id string) error
	ProcessorByID(ctx context.Context, id string) (*store.Processor, error)
	Processors(ctx context.Context, clusterID string) ([]store.Processor, error)
	ReplaceProcessorCameras(ctx context.Context, p *store.Processor, cams []fleet.Camera) error

	CameraByID(ctx context.Context, id string) (*store.Camera, error)
	Cameras(ctx context.Context, q store.CameraQuery) ([]store.Camera, error)

	InsertEvidence(ctx context.Context, e store.Evidence) (*store.Evidence, bool, error)
	Evidences(ctx context.Context, q store.EvidenceQuery) ([]store.Evidence, error)
	EvidenceByID(ctx context.Context, id string) (*store.Evidence, error)
	UpdateEvidenceResolved(ctx context.Context, id string, resolved bool) (*store.Evidence, error)
	View(ctx context.Context, e store.Evidence) store.EvidenceView

	InsertSubscriber(ctx context.Context, sub store.Subscriber) (*store.Subscriber, error)
	DeleteSubscriber(ctx context.Context, id string) error
	SubscribersByUser(ctx context.Context, userID string) ([]store.Subscriber, error)
}

// Hub is the fan-out surface the handlers publish to.
type Hub interface {
	Broadcast(msg []byte)
	ServeWS(w http.ResponseWriter, r *http.Request)
}

// Server holds the handler dependencies.
type Server struct {
	store       Store
	keys        *auth.Keys
	hub         Hub
	tracker     *liveness.Tracker
	queue       *push.Queue
	baseURL     string
	evidenceDir string
	logger      *log.Logger
}

// New wires the server.
func New(cfg *config.Config, st Store, keys *auth.Keys, h Hub, tracker *liveness.Tracker, queue *push.Queue) *Server {
	return &Server{
		store:       st,
		keys:        keys,
		hub:         h,
		tracker:     tracker,
		queue:       queue,
		baseURL:     cfg.BaseURL,
		evidenceDir: cfg.EvidenceDir,
		logger:      log.New(log.Writer(), "[API] ", log.LstdFlags),
	}
}

// Router builds the full route table under the configured base path.
func (s *Server) Router(basePath string) *mux.Router {
	root := mux.NewRouter()
	root.Use(cors)

	r := root
	if basePath != "" {
		r = root.PathPrefix(basePath).Subrouter()
	}

	r.HandleFunc("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("pong"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.hub.ServeWS)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.PathPrefix("/evidence/").Handler(http.StripPrefix(pathJoin(basePath, "/evidence/"),
		http.FileServer(http.Dir(s.evidenceDir))))

	// Edge-facing endpoints; the edge holds no tokens.
	r.HandleFunc("/processors/{cluster_id}", s.handleSync).Methods(http.MethodPost)
	r.HandleFunc("/evidences/{processor_id}", s.handleEvidenceIntake).Methods(http.MethodPost)

	r.HandleFunc("/users/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/users/refresh", s.handleRefresh).Methods(http.MethodPost)

	// Operator resource API behind the bearer middleware.
	p := r.NewRoute().Subrouter()
	p.Use(s.bearer)

	p.HandleFunc("/users", s.handleListUsers).Methods(http.MethodGet)
	p.HandleFunc("/users", s.handleCreateUser).Methods(http.MethodPost)
	p.HandleFunc("/users/{id}", s.handleGetUser).Methods(http.MethodGet)
	p.HandleFunc("/users/{id}", s.handleUpdateUser).Methods(http.MethodPut)
	p.HandleFunc("/users/{id}", s.handleDeleteUser).Methods(http.MethodDelete)

	p.HandleFunc("/clusters", s.handleListClusters).Methods(http.MethodGet)
	p.HandleFunc("/clusters", s.handleCreateCluster).Methods(http.MethodPost)
	p.HandleFunc("/clusters/{id}", s.handleGetCluster).Methods(http.MethodGet)
	p.HandleFunc("/clusters/{id}", s.handleUpdateCluster).Methods(http.MethodPut)
	p.HandleFunc("/clusters/{id}", s.handleDeleteCluster).Methods(http.MethodDelete)

	p.HandleFunc("/uniforms", s.handleListUniforms).Methods(http.MethodGet)
	p.HandleFunc("/uniforms", s.handleCreateUniform).Methods(http.MethodPost)
	p.HandleFunc("/uniforms/{id}", s.handleGetUniform).Methods(http.MethodGet)
	p.HandleFunc("/uniforms/{id}", s.handleUpdateUniform).Methods(http.MethodPut)
	p.HandleFunc("/uniforms/{id}", s.handleDeleteUniform).Methods(http.MethodDelete)

	p.HandleFunc("/processors", s.handleListProcessors).Methods(http.MethodGet)
	p.HandleFunc("/processors/{id}", s.handleGetProcessor).Methods(http.MethodGet)
	p.HandleFunc("/processors/{id}", s.handleUpdateProcessor).Methods(http.MethodPut)
	p.HandleFunc("/processors/{id}", s.handleDeleteProcessor).Methods(http.MethodDelete)

	p.HandleFunc("/cameras", s.handleListCameras).Methods(http.MethodGet)
	p.HandleFunc("/cameras/{id}", s.handleGetCamera).Methods(http.MethodGet)

	p.HandleFunc("/evidences", s.handleListEvidences).Methods(http.MethodGet)
	p.HandleFunc("/evidences/{id}", s.handleGetEvidence).Methods(http.MethodGet)
	p.HandleFunc("/evidences/{id}", s.handleResolveEvidence).Methods(http.MethodPut)

	p.HandleFunc("/subscribers", s.handleListSubscribers).Methods(http.MethodGet)
	p.HandleFunc("/subscribers", s.handleCreateSubscriber).Methods(http.MethodPost)
	p.HandleFunc("/subscribers/{id}", s.handleDeleteSubscriber).Methods(http.MethodDelete)

	return root
}

// HTTPServer wraps the router in a server with the standard timeouts. Read
// and write stay generous because of the websocket upgrade path.
func (s *Server) HTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func pathJoin(base, p string) string {
	if base == "" {
		return p
	}
	return base + p
}
