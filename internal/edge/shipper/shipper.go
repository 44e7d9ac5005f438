// Package shipper uploads evidence pairs to the configured server webhook
// with at-least-once semantics, and carries the periodic sync beat that
// reports the processor descriptor and camera roster.
package shipper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gidence/scm/internal/edge/device"
	"github.com/gidence/scm/internal/fleet"
	"github.com/gidence/scm/internal/metrics"
)

const (
	scanPause    = 100 * time.Millisecond
	BeatInterval = 10 * time.Second
)

// Shipper scans the evidence directory for unsent pairs and posts each as a
// multipart form. A 2xx response commits the pair by renaming both files to
// uploaded.<id>.*; any failure leaves both untouched for the next pass.
type Shipper struct {
	device      *device.Device
	evidenceDir string
	client      *http.Client
	logger      *log.Logger
}

// New builds a shipper with the default 30 s client timeout.
func New(dev *device.Device, evidenceDir string) *Shipper {
	return &Shipper{
		device:      dev,
		evidenceDir: evidenceDir,
		client:      &http.Client{Timeout: 30 * time.Second},
		logger:      log.New(log.Writer(), "[SHIPPER] ", log.LstdFlags),
	}
}

// Run sweeps the evidence directory until ctx is cancelled. Without a
// configured webhook the loop idles.
func (s *Shipper) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(scanPause):
		}

		webhook := s.device.Processor().Webhook
		if webhook == nil {
			continue
		}
		s.Sweep(ctx, *webhook)
	}
}

// Sweep uploads every pending pair once.
func (s *Shipper) Sweep(ctx context.Context, webhook fleet.Webhook) {
	entries, err := os.ReadDir(s.evidenceDir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, "uploaded.") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		if err := s.upload(ctx, webhook, id); err != nil {
			s.logger.Printf("upload %s: %v", id, err)
			continue
		}
		s.commit(id)
	}
}

func (s *Shipper) upload(ctx context.Context, webhook fleet.Webhook, id string) error {
	data, err := os.ReadFile(filepath.Join(s.evidenceDir, id+".json"))
	if err != nil {
		return err
	}
	image, err := os.ReadFile(filepath.Join(s.evidenceDir, id+".jpg"))
	if err != nil {
		return err
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if err := form.WriteField("data", string(data)); err != nil {
		return err
	}
	part, err := form.CreateFormFile("image", id+".jpg")
	if err != nil {
		return err
	}
	if _, err := part.Write(image); err != nil {
		return err
	}
	if err := form.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook.EvidenceURL(), &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

// commit renames the pair to its uploaded.* tombstones. The JSON goes first:
// once it is renamed the scanner stops offering the id, so a crash in between
// cannot cause a second upload.
func (s *Shipper) commit(id string) {
	if err := os.Rename(
		filepath.Join(s.evidenceDir, id+".json"),
		filepath.Join(s.evidenceDir, "uploaded."+id+".json"),
	); err != nil {
		s.logger.Printf("rename %s.json: %v", id, err)
		return
	}
	if err := os.Rename(
		filepath.Join(s.evidenceDir, id+".jpg"),
		filepath.Join(s.evidenceDir, "uploaded."+id+".jpg"),
	); err != nil {
		s.logger.Printf("rename %s.jpg: %v", id, err)
		return
	}
	metrics.EvidenceUploaded.Inc()
	s.logger.Printf("uploaded %s", id)
}
