package store

import (
	"github.com/gidence/scm/internal/envelope"
	"github.com/gidence/scm/internal/fleet"
)

// Role gates access to the resource API.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleManager    Role = "manager"
	RoleOfficer    Role = "officer"
)

// Valid reports whether the role is known.
func (r Role) Valid() bool {
	return r == RoleSuperAdmin || r == RoleManager || r == RoleOfficer
}

// User is an operator account. Password holds the bcrypt hash and never
// leaves the server.
type User struct {
	ID        string   `bson:"id" json:"id"`
	ClusterID []string `bson:"cluster_id" json:"cluster_id"`
	Number    string   `bson:"number" json:"number"`
	Name      string   `bson:"name" json:"name"`
	Password  string   `bson:"password" json:"-"`
	Role      Role     `bson:"role" json:"role"`
}

// Cluster is a tenancy unit grouping processors, cameras, and the uniform
// policy they enforce.
type Cluster struct {
	ID        string   `bson:"id" json:"id"`
	Name      string   `bson:"name" json:"name"`
	UniformID []string `bson:"uniform_id" json:"uniform_id"`
}

// Uniform is a named required-equipment bundle.
type Uniform struct {
	ID        string                    `bson:"id" json:"id"`
	Name      string                    `bson:"name" json:"name"`
	Attribute []envelope.EquipmentLabel `bson:"attribute" json:"attribute"`
}

// Processor is the server-side row for an edge node. The server is
// authoritative for the cluster assignment; the descriptor fields mirror the
// edge on every accepted sync.
type Processor struct {
	ID        string        `bson:"id" json:"id"`
	ClusterID string        `bson:"cluster_id" json:"cluster_id"`
	Name      string        `bson:"name" json:"name"`
	Model     string        `bson:"model" json:"model"`
	Address   fleet.Address `bson:"address" json:"address"`
	Version   int64         `bson:"version" json:"version"`
}

// Camera is the server-side row for one feed, carrying its ownership edges.
type Camera struct {
	ID          string              `bson:"id" json:"id"`
	ClusterID   string              `bson:"cluster_id" json:"cluster_id"`
	ProcessorID string              `bson:"processor_id" json:"processor_id"`
	Name        string              `bson:"name" json:"name"`
	Address     fleet.CameraAddress `bson:"address" json:"address"`
}

// Evidence is one persisted envelope, keyed by the envelope id so shipper
// retries stay idempotent.
type Evidence struct {
	ID          string            `bson:"id" json:"id"`
	ClusterID   string            `bson:"cluster_id" json:"cluster_id"`
	ProcessorID string            `bson:"processor_id" json:"processor_id"`
	CameraID    string            `bson:"camera_id" json:"camera_id"`
	FrameID     string            `bson:"frame_id" json:"frame_id"`
	Timestamp   int64             `bson:"timestamp" json:"timestamp"`
	Person      []envelope.Person `bson:"person" json:"person"`
	Path        string            `bson:"path" json:"path"`
	Resolved    bool              `bson:"resolved" json:"resolved"`
}

// ViolationCount totals the violations across every person in the record.
func (e Evidence) ViolationCount() int {
	n := 0
	for _, p := range e.Person {
		n += len(p.Violation)
	}
	return n
}

// EvidenceView is the projection broadcast to operator sockets: ownership
// ids replaced with human names.
type EvidenceView struct {
	ID        string            `json:"id"`
	Cluster   string            `json:"cluster"`
	Processor string            `json:"processor"`
	Camera    string            `json:"camera"`
	FrameID   string            `json:"frame_id"`
	Timestamp int64             `json:"timestamp"`
	Person    []envelope.Person `json:"person"`
	Path      string            `json:"path"`
	Resolved  bool              `json:"resolved"`
}

// SubscriberKind tags the push channel. Apple carries the APNs device token.
type SubscriberKind struct {
	Apple string `bson:"apple,omitempty" json:"apple,omitempty"`
}

// Subscriber is one push registration owned by a user. Terminal delivery
// errors delete the record.
type Subscriber struct {
	ID     string         `bson:"id" json:"id"`
	UserID string         `bson:"user_id" json:"user_id"`
	Kind   SubscriberKind `bson:"kind" json:"kind"`
}
