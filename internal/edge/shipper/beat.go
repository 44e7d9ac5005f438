package shipper

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gidence/scm/internal/fleet"
)

// beatPayload is the edge half of the sync protocol: the full descriptor and
// camera roster, posted to the update webhook.
type beatPayload struct {
	Processor fleet.Processor `json:"processor"`
	Camera    []fleet.Camera  `json:"camera"`
}

// syncResponse is the server's canonical view on an accepted sync. The edge
// stays authoritative for its own config, so only the assigned uniform set is
// of interest here.
type syncResponse struct {
	Uniform []json.RawMessage `json:"uniform"`
}

// RunBeat posts the sync beat every BeatInterval until ctx is cancelled.
// A failed beat is retried silently on the next tick.
func (s *Shipper) RunBeat(ctx context.Context) {
	ticker := time.NewTicker(BeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		webhook := s.device.Processor().Webhook
		if webhook == nil {
			continue
		}
		s.Beat(ctx, *webhook)
	}
}

// Beat sends one sync beat.
func (s *Shipper) Beat(ctx context.Context, webhook fleet.Webhook) {
	payload := beatPayload{
		Processor: s.device.Processor(),
		Camera:    s.device.Cameras(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Printf("beat encode: %v", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook.UpdateURL(), bytes.NewReader(body))
	if err != nil {
		s.logger.Printf("beat request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		// Versions matched; the lease was refreshed.
	case http.StatusOK:
		var view syncResponse
		if err := json.NewDecoder(resp.Body).Decode(&view); err == nil {
			s.logger.Printf("sync accepted, %d uniforms assigned", len(view.Uniform))
		}
	default:
		io.Copy(io.Discard, resp.Body)
		s.logger.Printf("beat returned %d", resp.StatusCode)
	}
}
