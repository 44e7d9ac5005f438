// Package envelope defines the per-frame detection record emitted by the
// inference engine. An envelope is immutable once its id is assigned.
package envelope

import (
	"encoding/json"
	"fmt"
	"math"
)

// PartLabel identifies a detected body part.
type PartLabel string

const (
	PartHead PartLabel = "head"
	PartHand PartLabel = "hand"
	PartFace PartLabel = "face"
	PartFoot PartLabel = "foot"
	PartEar  PartLabel = "ear"
)

// EquipmentLabel identifies a detected piece of safety equipment.
type EquipmentLabel string

const (
	EquipmentHardhat    EquipmentLabel = "hardhat"
	EquipmentGloves     EquipmentLabel = "gloves"
	EquipmentShoes      EquipmentLabel = "shoes"
	EquipmentSafetyvest EquipmentLabel = "safetyvest"
	EquipmentSafetysuit EquipmentLabel = "safetysuit"
	EquipmentFacemask   EquipmentLabel = "facemask"
	EquipmentFaceguard  EquipmentLabel = "faceguard"
	EquipmentEarmuffs   EquipmentLabel = "earmuffs"
	EquipmentGlasses    EquipmentLabel = "glasses"
)

// Violation is the closed set of compliance failures a person can carry.
type Violation string

const (
	MissingHardhat         Violation = "missing_hardhat"
	MissingGloves          Violation = "missing_gloves"
	MissingShoes           Violation = "missing_shoes"
	MissingFacemask        Violation = "missing_facemask"
	MissingEarmuffs        Violation = "missing_earmuffs"
	MissingSafetyvest      Violation = "missing_safetyvest"
	ImproperlyWornGloves   Violation = "improperly_worn_gloves"
	ImproperlyWornShoes    Violation = "improperly_worn_shoes"
	ImproperlyWornFacemask Violation = "improperly_worn_facemask"
	ImproperlyWornEarmuffs Violation = "improperly_worn_earmuffs"
)

var partLabels = map[PartLabel]bool{
	PartHead: true, PartHand: true, PartFace: true, PartFoot: true, PartEar: true,
}

var equipmentLabels = map[EquipmentLabel]bool{
	EquipmentHardhat: true, EquipmentGloves: true, EquipmentShoes: true,
	EquipmentSafetyvest: true, EquipmentSafetysuit: true, EquipmentFacemask: true,
	EquipmentFaceguard: true, EquipmentEarmuffs: true, EquipmentGlasses: true,
}

var violations = map[Violation]bool{
	MissingHardhat: true, MissingGloves: true, MissingShoes: true,
	MissingFacemask: true, MissingEarmuffs: true, MissingSafetyvest: true,
	ImproperlyWornGloves: true, ImproperlyWornShoes: true,
	ImproperlyWornFacemask: true, ImproperlyWornEarmuffs: true,
}

// Valid reports whether the label is a member of the closed part set.
func (l PartLabel) Valid() bool { return partLabels[l] }

// Valid reports whether the label is a member of the closed equipment set.
func (l EquipmentLabel) Valid() bool { return equipmentLabels[l] }

// Valid reports whether the value is a member of the closed violation set.
func (v Violation) Valid() bool { return violations[v] }

// BBox is an axis-aligned bounding box, [x1, y1, x2, y2].
type BBox [4]float64

// Finite reports whether every coordinate is a finite number.
func (b BBox) Finite() bool {
	for _, c := range b {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// Part is one body-part detection attached to a person.
type Part struct {
	Label      PartLabel `json:"label"`
	BBox       BBox      `json:"bbox"`
	Confidence float64   `json:"confidence"`
}

// Equipment is one safety-equipment detection attached to a person.
type Equipment struct {
	Label      EquipmentLabel `json:"label"`
	BBox       BBox           `json:"bbox"`
	Confidence float64        `json:"confidence"`
}

// Person is one detected person within a frame. The id is stable within the
// frame and, combined with the camera id, keys the deduplication window.
type Person struct {
	ID         string      `json:"id"`
	BBox       BBox        `json:"bbox"`
	Confidence float64     `json:"confidence"`
	Part       []Part      `json:"part"`
	Equipment  []Equipment `json:"equipment"`
	Violation  []Violation `json:"violation"`
}

// Envelope is one frame's worth of detections from one camera. The id is
// empty on the wire and assigned at ingress; it never mutates afterwards.
type Envelope struct {
	ID        string   `json:"id"`
	CameraID  string   `json:"camera_id"`
	FrameID   string   `json:"frame_id"`
	Timestamp int64    `json:"timestamp"`
	Person    []Person `json:"person"`
}

// Validate checks the structural invariants: positive timestamp, finite
// bounding boxes, and closed-enum membership for every label.
func (e *Envelope) Validate() error {
	if e.Timestamp <= 0 {
		return fmt.Errorf("envelope: timestamp %d is not positive", e.Timestamp)
	}
	if e.CameraID == "" {
		return fmt.Errorf("envelope: missing camera id")
	}
	for _, p := range e.Person {
		if !p.BBox.Finite() {
			return fmt.Errorf("envelope: person %q has a non-finite bbox", p.ID)
		}
		for _, part := range p.Part {
			if !part.Label.Valid() {
				return fmt.Errorf("envelope: unknown part label %q", part.Label)
			}
			if !part.BBox.Finite() {
				return fmt.Errorf("envelope: part %q has a non-finite bbox", part.Label)
			}
		}
		for _, eq := range p.Equipment {
			if !eq.Label.Valid() {
				return fmt.Errorf("envelope: unknown equipment label %q", eq.Label)
			}
			if !eq.BBox.Finite() {
				return fmt.Errorf("envelope: equipment %q has a non-finite bbox", eq.Label)
			}
		}
		for _, v := range p.Violation {
			if !v.Valid() {
				return fmt.Errorf("envelope: unknown violation %q", v)
			}
		}
	}
	return nil
}

// ViolationCount returns the total number of violations across all persons.
func (e *Envelope) ViolationCount() int {
	n := 0
	for _, p := range e.Person {
		n += len(p.Violation)
	}
	return n
}

// Decode parses and validates one wire envelope.
func Decode(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("envelope: decode: %w", err)
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}
