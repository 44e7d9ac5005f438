// Package api is the edge control surface: processor config, camera roster,
// live readings, and raw frame access. Every successful write persists to
// disk and bumps the descriptor version.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/mux"

	"github.com/gidence/scm/internal/edge/device"
	"github.com/gidence/scm/internal/fleet"
	"github.com/gidence/scm/internal/metrics"
)

// API serves the edge HTTP surface.
type API struct {
	device      *device.Device
	reading     *device.Reading
	frameDir    string
	evidenceDir string
	logger      *log.Logger
}

// New builds the edge API. frameDir is where the inference engine drops the
// latest JPEG per camera.
func New(dev *device.Device, reading *device.Reading, frameDir, evidenceDir string) *API {
	return &API{
		device:      dev,
		reading:     reading,
		frameDir:    frameDir,
		evidenceDir: evidenceDir,
		logger:      log.New(log.Writer(), "[API] ", log.LstdFlags),
	}
}

// Router assembles the control routes with permissive CORS.
func (a *API) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(cors)

	r.HandleFunc("/ping", a.handlePing).Methods(http.MethodGet)
	r.HandleFunc("/reading", a.handleReading).Methods(http.MethodGet)
	r.HandleFunc("/device", a.handleDevice).Methods(http.MethodGet)
	r.HandleFunc("/frame/{camera_id}", a.handleFrame).Methods(http.MethodGet)

	r.HandleFunc("/processor", a.handleGetProcessor).Methods(http.MethodGet)
	r.HandleFunc("/processor", a.handlePutProcessor).Methods(http.MethodPut)

	r.HandleFunc("/camera", a.handleListCameras).Methods(http.MethodGet)
	r.HandleFunc("/camera", a.handleCreateCamera).Methods(http.MethodPost)
	r.HandleFunc("/camera", a.handleUpdateCamera).Methods(http.MethodPut)
	r.HandleFunc("/camera/{id}", a.handleDeleteCamera).Methods(http.MethodDelete)

	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.PathPrefix("/evidence/").Handler(
		http.StripPrefix("/evidence/", http.FileServer(http.Dir(a.evidenceDir))))

	return r
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (a *API) handlePing(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte("pong"))
}

func (a *API) handleReading(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, map[string]any{"camera": a.reading.Snapshot()})
}

func (a *API) handleDevice(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, map[string]any{
		"processor": a.device.Processor(),
		"camera":    a.device.Cameras(),
	})
}

func (a *API) handleFrame(w http.ResponseWriter, r *http.Request) {
	cameraID := mux.Vars(r)["camera_id"]
	path := filepath.Join(a.frameDir, cameraID+".jpg")
	if _, err := os.Stat(path); err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, path)
}

func (a *API) handleGetProcessor(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, a.device.Processor())
}

func (a *API) handlePutProcessor(w http.ResponseWriter, r *http.Request) {
	var p fleet.Processor
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "INVALID_BODY", http.StatusBadRequest)
		return
	}
	updated, err := a.device.SetProcessor(p)
	if err != nil {
		a.logger.Printf("update processor: %v", err)
		http.Error(w, "SAVING_FAILED", http.StatusInternalServerError)
		return
	}
	respond(w, http.StatusOK, updated)
}

func (a *API) handleListCameras(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, a.device.Cameras())
}

func (a *API) handleCreateCamera(w http.ResponseWriter, r *http.Request) {
	var c fleet.Camera
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		http.Error(w, "INVALID_BODY", http.StatusBadRequest)
		return
	}
	created, err := a.device.InsertCamera(c)
	if err != nil {
		a.logger.Printf("create camera: %v", err)
		http.Error(w, "SAVING_FAILED", http.StatusInternalServerError)
		return
	}
	respond(w, http.StatusOK, created)
}

func (a *API) handleUpdateCamera(w http.ResponseWriter, r *http.Request) {
	var c fleet.Camera
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		http.Error(w, "INVALID_BODY", http.StatusBadRequest)
		return
	}
	updated, err := a.device.UpdateCamera(c)
	if os.IsNotExist(err) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		a.logger.Printf("update camera: %v", err)
		http.Error(w, "UPDATING_FAILED", http.StatusInternalServerError)
		return
	}
	respond(w, http.StatusOK, updated)
}

func (a *API) handleDeleteCamera(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	err := a.device.DeleteCamera(id)
	if os.IsNotExist(err) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		a.logger.Printf("delete camera: %v", err)
		http.Error(w, "DELETING_FAILED", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
