package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// EvidenceQuery filters the evidence listing.
type EvidenceQuery struct {
	ClusterID   []string
	ProcessorID string
	CameraID    string
	Resolved    *bool
	Since       int64
	Until       int64
	Limit       int64
	Skip        int64
}

// evidenceFilter builds the bson filter for a query.
func evidenceFilter(q EvidenceQuery) bson.M {
	filter := bson.M{}
	if len(q.ClusterID) > 0 {
		filter["cluster_id"] = bson.M{"$in": q.ClusterID}
	}
	if q.ProcessorID != "" {
		filter["processor_id"] = q.ProcessorID
	}
	if q.CameraID != "" {
		filter["camera_id"] = q.CameraID
	}
	if q.Resolved != nil {
		filter["resolved"] = *q.Resolved
	}
	span := bson.M{}
	if q.Since > 0 {
		span["$gte"] = q.Since
	}
	if q.Until > 0 {
		span["$lte"] = q.Until
	}
	if len(span) > 0 {
		filter["timestamp"] = span
	}
	return filter
}

// InsertEvidence persists one record keyed by the envelope id. A record that
// already exists is returned as-is with inserted=false, which is how shipper
// retries of an already-committed upload stay idempotent.
func (s *Store) InsertEvidence(ctx context.Context, e Evidence) (*Evidence, bool, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if _, err := s.col(colEvidences).InsertOne(ctx, e); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			existing, ferr := one[Evidence](s.col(colEvidences).FindOne(ctx, bson.M{"id": e.ID}))
			if ferr != nil {
				return nil, false, ferr
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("%w: %v", ErrSavingFailed, err)
	}
	return &e, true, nil
}

// DeleteEvidence removes one record.
func (s *Store) DeleteEvidence(ctx context.Context, id string) error {
	res, err := s.col(colEvidences).DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeletingFailed, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// EvidenceByID fetches one record.
func (s *Store) EvidenceByID(ctx context.Context, id string) (*Evidence, error) {
	return one[Evidence](s.col(colEvidences).FindOne(ctx, bson.M{"id": id}))
}

// Evidences lists records matching the query, unresolved first, newest first
// within each group.
func (s *Store) Evidences(ctx context.Context, q EvidenceQuery) ([]Evidence, error) {
	opts := findOptions(q.Limit, q.Skip).
		SetSort(bson.D{{Key: "resolved", Value: 1}, {Key: "timestamp", Value: -1}})
	cur, err := s.col(colEvidences).Find(ctx, evidenceFilter(q), opts)
	return all[Evidence](ctx, cur, err)
}

// UpdateEvidenceResolved flips the triage flag.
func (s *Store) UpdateEvidenceResolved(ctx context.Context, id string, resolved bool) (*Evidence, error) {
	res, err := s.col(colEvidences).UpdateOne(ctx,
		bson.M{"id": id}, bson.M{"$set": bson.M{"resolved": resolved}})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpdatingFailed, err)
	}
	if res.MatchedCount == 0 {
		return nil, ErrNotFound
	}
	return s.EvidenceByID(ctx, id)
}

// View resolves ownership ids into names for operator display. Missing rows
// fall back to the raw id so a record orphaned mid-delete still renders.
func (s *Store) View(ctx context.Context, e Evidence) EvidenceView {
	v := EvidenceView{
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
	if c, err := s.ClusterByID(ctx, e.ClusterID); err == nil {
		v.Cluster = c.Name
	}
	if p, err := s.ProcessorByID(ctx, e.ProcessorID); err == nil {
		v.Processor = p.Name
	}
	if c, err := s.CameraByID(ctx, e.CameraID); err == nil {
		v.Camera = c.Name
	}
	return v
}
