package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/gidence/scm/internal/fleet"
)

// InsertProcessor stores an edge descriptor under the cluster, keyed by the
// edge-generated id carried in the descriptor itself.
func (s *Store) InsertProcessor(ctx context.Context, clusterID string, desc fleet.Processor) (*Processor, error) {
	p := Processor{
		ID:        desc.ID,
		ClusterID: clusterID,
		Name:      desc.Name,
		Model:     desc.Model,
		Address:   desc.Address,
		Version:   desc.Version,
	}
	if _, err := s.col(colProcessors).InsertOne(ctx, p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSavingFailed, err)
	}
	return &p, nil
}

// UpdateProcessor mirrors the accepted edge descriptor onto the stored row,
// keeping the server-side cluster assignment untouched.
func (s *Store) UpdateProcessor(ctx context.Context, desc fleet.Processor) (*Processor, error) {
	res, err := s.col(colProcessors).UpdateOne(ctx,
		bson.M{"id": desc.ID},
		bson.M{"$set": bson.M{
			"name":    desc.Name,
			"model":   desc.Model,
			"address": desc.Address,
			"version": desc.Version,
		}})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpdatingFailed, err)
	}
	if res.MatchedCount == 0 {
		return nil, ErrNotFound
	}
	return s.ProcessorByID(ctx, desc.ID)
}

// AssignProcessor moves a processor to another cluster; its cameras and
// evidences follow.
func (s *Store) AssignProcessor(ctx context.Context, id, clusterID string) (*Processor, error) {
	res, err := s.col(colProcessors).UpdateOne(ctx,
		bson.M{"id": id}, bson.M{"$set": bson.M{"cluster_id": clusterID}})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpdatingFailed, err)
	}
	if res.MatchedCount == 0 {
		return nil, ErrNotFound
	}
	if _, err := s.col(colCameras).UpdateMany(ctx,
		bson.M{"processor_id": id},
		bson.M{"$set": bson.M{"cluster_id": clusterID}}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpdatingFailed, err)
	}
	if _, err := s.col(colEvidences).UpdateMany(ctx,
		bson.M{"processor_id": id},
		bson.M{"$set": bson.M{"cluster_id": clusterID}}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpdatingFailed, err)
	}
	return s.ProcessorByID(ctx, id)
}

// DeleteProcessor removes the processor and cascades through its cameras and
// evidences.
func (s *Store) DeleteProcessor(ctx context.Context, id string) error {
	res, err := s.col(colProcessors).DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeletingFailed, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	if _, err := s.col(colCameras).DeleteMany(ctx, bson.M{"processor_id": id}); err != nil {
		return fmt.Errorf("%w: %v", ErrDeletingFailed, err)
	}
	if _, err := s.col(colEvidences).DeleteMany(ctx, bson.M{"processor_id": id}); err != nil {
		return fmt.Errorf("%w: %v", ErrDeletingFailed, err)
	}
	return nil
}

// ProcessorByID fetches one processor row.
func (s *Store) ProcessorByID(ctx context.Context, id string) (*Processor, error) {
	return one[Processor](s.col(colProcessors).FindOne(ctx, bson.M{"id": id}))
}

// Processors lists processors, optionally restricted to one cluster.
func (s *Store) Processors(ctx context.Context, clusterID string) ([]Processor, error) {
	filter := bson.M{}
	if clusterID != "" {
		filter["cluster_id"] = clusterID
	}
	cur, err := s.col(colProcessors).Find(ctx, filter)
	return all[Processor](ctx, cur, err)
}

// Descriptor rebuilds the wire-level descriptor from a stored row, used to
// answer stale edges with the authoritative state.
func (p Processor) Descriptor() fleet.Processor {
	return fleet.Processor{
		ID:      p.ID,
		Name:    p.Name,
		Model:   p.Model,
		Address: p.Address,
		Version: p.Version,
	}
}
