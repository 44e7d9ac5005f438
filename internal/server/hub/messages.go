package hub

import (
	"encoding/json"

	"github.com/gidence/scm/internal/server/store"
)

// The socket protocol is externally tagged: every frame is a one-key JSON
// object whose key names the event.

// control is what clients send: a connect carrying the user id, or a
// disconnect. Some clients send the bare word "disconnect" instead of a JSON
// frame; the read pump accepts both.
type control struct {
	Connect    *string         `json:"connect"`
	Disconnect json.RawMessage `json:"disconnect"`
}

// ProcessorMessage is the presence snapshot frame: live processor ids mapped
// to their lease expiry in unix ms.
func ProcessorMessage(leases map[string]int64) []byte {
	b, _ := json.Marshal(map[string]map[string]int64{"processor": leases})
	return b
}

// EvidenceMessage is the new-evidence frame.
func EvidenceMessage(view store.EvidenceView) []byte {
	b, _ := json.Marshal(map[string]store.EvidenceView{"evidence": view})
	return b
}

// LeftMessage is the departure frame for an expired processor lease.
func LeftMessage(id string) []byte {
	b, _ := json.Marshal(map[string]string{"left": id})
	return b
}

// DigestMessage is the batched per-user frame the push dispatcher sends on
// its cooldown cadence.
func DigestMessage(views []store.EvidenceView) []byte {
	b, _ := json.Marshal(map[string][]store.EvidenceView{"digest": views})
	return b
}
