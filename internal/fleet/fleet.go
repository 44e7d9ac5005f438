// Package fleet holds the wire model shared between the edge agent and the
// coordination server: the processor descriptor, its webhook configuration,
// and the camera inventory.
package fleet

import (
	"encoding/json"
	"fmt"
)

// Address is the bind address of the edge control API.
type Address struct {
	Host [4]uint8 `json:"host" bson:"host"`
	Port uint16   `json:"port" bson:"port"`
}

func (a Address) String() string {
	return fmt.Sprintf("%d.%d.%d.%d:%d", a.Host[0], a.Host[1], a.Host[2], a.Host[3], a.Port)
}

// WebhookHost is either a domain name or a raw IPv4 address. It serializes
// as a bare string or a four-element array, matching the operator config.
type WebhookHost struct {
	Domain string
	IP     *[4]uint8
}

func (h WebhookHost) String() string {
	if h.IP != nil {
		return fmt.Sprintf("%d.%d.%d.%d", h.IP[0], h.IP[1], h.IP[2], h.IP[3])
	}
	return h.Domain
}

func (h WebhookHost) MarshalJSON() ([]byte, error) {
	if h.IP != nil {
		return json.Marshal(*h.IP)
	}
	return json.Marshal(h.Domain)
}

func (h *WebhookHost) UnmarshalJSON(data []byte) error {
	var domain string
	if err := json.Unmarshal(data, &domain); err == nil {
		h.Domain = domain
		h.IP = nil
		return nil
	}
	var ip [4]uint8
	if err := json.Unmarshal(data, &ip); err != nil {
		return fmt.Errorf("fleet: webhook host is neither a domain nor an IPv4 quad: %w", err)
	}
	h.Domain = ""
	h.IP = &ip
	return nil
}

// WebhookPath names the two server endpoints a processor reports to.
type WebhookPath struct {
	Evidence string `json:"evidence"`
	Update   string `json:"update"`
}

// Webhook describes where a processor ships evidence and sync beats.
type Webhook struct {
	Host   WebhookHost `json:"host"`
	Port   *uint16     `json:"port"`
	Secure bool        `json:"secure"`
	Path   WebhookPath `json:"path"`
}

func (w Webhook) base() string {
	scheme := "http"
	if w.Secure {
		scheme = "https"
	}
	url := fmt.Sprintf("%s://%s", scheme, w.Host.String())
	if w.Port != nil {
		url = fmt.Sprintf("%s:%d", url, *w.Port)
	}
	return url
}

// EvidenceURL is the full evidence upload endpoint.
func (w Webhook) EvidenceURL() string {
	return w.base() + "/" + trimLeadingSlash(w.Path.Evidence)
}

// UpdateURL is the full sync-beat endpoint.
func (w Webhook) UpdateURL() string {
	return w.base() + "/" + trimLeadingSlash(w.Path.Update)
}

func trimLeadingSlash(p string) string {
	for len(p) > 0 && p[0] == '/' {
		p = p[1:]
	}
	return p
}

// Processor is the edge node descriptor. Version is a monotonic millisecond
// clock bumped on every configuration write through the control API.
type Processor struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Model   string   `json:"model"`
	Address Address  `json:"address"`
	Webhook *Webhook `json:"webhook"`
	Version int64    `json:"version"`
}

// CameraAddress locates one camera feed.
type CameraAddress struct {
	Host           [4]uint8   `json:"host" bson:"host"`
	Port           uint16     `json:"port" bson:"port"`
	Path           *string    `json:"path" bson:"path,omitempty"`
	Authentication *[2]string `json:"authentication" bson:"authentication,omitempty"`
}

// Camera is one feed supervised by a processor. The edge is authoritative
// for the address and human name.
type Camera struct {
	ID      string        `json:"id" bson:"id"`
	Address CameraAddress `json:"address" bson:"address"`
	Name    string        `json:"name" bson:"name"`
}
