// Package device owns the on-disk state of an edge processor: the
// processor.json descriptor and the camera.json roster. All writes go through
// a single-writer discipline and bump the descriptor version.
package device

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gidence/scm/internal/fleet"
)

const (
	processorFile = "processor.json"
	cameraFile    = "camera.json"

	defaultModel = "yolov8n.hef"
	defaultPort  = 8000
)

// Device is the in-memory snapshot of the processor descriptor and camera
// roster. The files under dir are the single source of truth for the edge;
// the snapshot mirrors them.
type Device struct {
	mu      sync.RWMutex
	dir     string
	proc    fleet.Processor
	cameras map[string]fleet.Camera
	logger  *log.Logger
}

// Load reads processor.json and camera.json from dir, creating both with
// first-run defaults when absent.
func Load(dir string) (*Device, error) {
	d := &Device{
		dir:     dir,
		cameras: make(map[string]fleet.Camera),
		logger:  log.New(log.Writer(), "[DEVICE] ", log.LstdFlags),
	}

	if err := d.loadProcessor(); err != nil {
		return nil, err
	}
	if err := d.loadCameras(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Device) loadProcessor() error {
	path := filepath.Join(d.dir, processorFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		id := uuid.NewString()
		d.proc = fleet.Processor{
			ID:      id,
			Name:    id,
			Model:   defaultModel,
			Address: fleet.Address{Host: localHost(), Port: defaultPort},
			Version: time.Now().UnixMilli(),
		}
		d.logger.Printf("no %s found, generated processor %s", processorFile, id)
		return d.writeProcessorLocked()
	}
	if err != nil {
		return fmt.Errorf("device: read %s: %w", processorFile, err)
	}
	if err := json.Unmarshal(data, &d.proc); err != nil {
		return fmt.Errorf("device: parse %s: %w", processorFile, err)
	}
	return nil
}

func (d *Device) loadCameras() error {
	path := filepath.Join(d.dir, cameraFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return os.WriteFile(path, []byte("[]"), 0o644)
	}
	if err != nil {
		return fmt.Errorf("device: read %s: %w", cameraFile, err)
	}
	var cameras []fleet.Camera
	if err := json.Unmarshal(data, &cameras); err != nil {
		return fmt.Errorf("device: parse %s: %w", cameraFile, err)
	}
	for _, c := range cameras {
		d.cameras[c.ID] = c
	}
	return nil
}

// localHost picks the first non-loopback IPv4 of the machine, falling back
// to 127.0.0.1.
func localHost() [4]uint8 {
	host := [4]uint8{127, 0, 0, 1}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return host
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil {
			copy(host[:], ip4)
		}
	}
	return host
}

// Processor returns a copy of the current descriptor.
func (d *Device) Processor() fleet.Processor {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.proc
}

// Version returns the current descriptor version.
func (d *Device) Version() int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.proc.Version
}

// Cameras returns a copy of the roster.
func (d *Device) Cameras() []fleet.Camera {
	d.mu.RLock()
	defer d.mu.RUnlock()
	cameras := make([]fleet.Camera, 0, len(d.cameras))
	for _, c := range d.cameras {
		cameras = append(cameras, c)
	}
	return cameras
}

// Camera returns one roster entry.
func (d *Device) Camera(id string) (fleet.Camera, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.cameras[id]
	return c, ok
}

// SetProcessor replaces the descriptor, persists it, and bumps the version.
// The processor id is never changed by an edit.
func (d *Device) SetProcessor(p fleet.Processor) (fleet.Processor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p.ID = d.proc.ID
	p.Version = d.proc.Version
	d.proc = p
	if err := d.bumpVersionLocked(); err != nil {
		return fleet.Processor{}, err
	}
	return d.proc, nil
}

// InsertCamera assigns a fresh id, persists the roster, and bumps the
// descriptor version.
func (d *Device) InsertCamera(c fleet.Camera) (fleet.Camera, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c.ID = uuid.NewString()
	d.cameras[c.ID] = c
	if err := d.writeCamerasLocked(); err != nil {
		return fleet.Camera{}, err
	}
	if err := d.bumpVersionLocked(); err != nil {
		return fleet.Camera{}, err
	}
	return c, nil
}

// UpdateCamera replaces an existing roster entry.
func (d *Device) UpdateCamera(c fleet.Camera) (fleet.Camera, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.cameras[c.ID]; !ok {
		return fleet.Camera{}, os.ErrNotExist
	}
	d.cameras[c.ID] = c
	if err := d.writeCamerasLocked(); err != nil {
		return fleet.Camera{}, err
	}
	if err := d.bumpVersionLocked(); err != nil {
		return fleet.Camera{}, err
	}
	return c, nil
}

// DeleteCamera removes a roster entry.
func (d *Device) DeleteCamera(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.cameras[id]; !ok {
		return os.ErrNotExist
	}
	delete(d.cameras, id)
	if err := d.writeCamerasLocked(); err != nil {
		return err
	}
	return d.bumpVersionLocked()
}

// bumpVersionLocked advances the version to the current millisecond clock,
// with a +1 tiebreak so two edits can never share a version.
func (d *Device) bumpVersionLocked() error {
	now := time.Now().UnixMilli()
	if now <= d.proc.Version {
		now = d.proc.Version + 1
	}
	d.proc.Version = now
	return d.writeProcessorLocked()
}

func (d *Device) writeProcessorLocked() error {
	data, err := json.Marshal(d.proc)
	if err != nil {
		return fmt.Errorf("device: encode processor: %w", err)
	}
	return os.WriteFile(filepath.Join(d.dir, processorFile), data, 0o644)
}

func (d *Device) writeCamerasLocked() error {
	cameras := make([]fleet.Camera, 0, len(d.cameras))
	for _, c := range d.cameras {
		cameras = append(cameras, c)
	}
	data, err := json.Marshal(cameras)
	if err != nil {
		return fmt.Errorf("device: encode cameras: %w", err)
	}
	return os.WriteFile(filepath.Join(d.dir, cameraFile), data, 0o644)
}
