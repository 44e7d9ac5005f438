package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/gidence/scm/internal/fleet"
)

// ReplaceProcessorCameras reconciles the stored camera set of one processor
// against the set reported by an accepted sync. Reported cameras are upserted
// under the processor's cluster; stored cameras absent from the report are
// removed together with their evidences.
func (s *Store) ReplaceProcessorCameras(ctx context.Context, p *Processor, cams []fleet.Camera) error {
	reported := make(map[string]bool, len(cams))
	for _, c := range cams {
		reported[c.ID] = true
		row := Camera{
			ID:          c.ID,
			ClusterID:   p.ClusterID,
			ProcessorID: p.ID,
			Name:        c.Name,
			Address:     c.Address,
		}
		_, err := s.col(colCameras).UpdateOne(ctx,
			bson.M{"id": c.ID},
			bson.M{"$set": row},
			options.Update().SetUpsert(true))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSavingFailed, err)
		}
	}

	stored, err := s.Cameras(ctx, CameraQuery{ProcessorID: p.ID})
	if err != nil {
		return err
	}
	for _, c := range stored {
		if reported[c.ID] {
			continue
		}
		if _, err := s.col(colCameras).DeleteOne(ctx, bson.M{"id": c.ID}); err != nil {
			return fmt.Errorf("%w: %v", ErrDeletingFailed, err)
		}
		if _, err := s.col(colEvidences).DeleteMany(ctx, bson.M{"camera_id": c.ID}); err != nil {
			return fmt.Errorf("%w: %v", ErrDeletingFailed, err)
		}
	}
	return nil
}

// CameraQuery filters the camera listing.
type CameraQuery struct {
	ClusterID   string
	ProcessorID string
}

// CameraByID fetches one camera row.
func (s *Store) CameraByID(ctx context.Context, id string) (*Camera, error) {
	return one[Camera](s.col(colCameras).FindOne(ctx, bson.M{"id": id}))
}

// Cameras lists cameras matching the query.
func (s *Store) Cameras(ctx context.Context, q CameraQuery) ([]Camera, error) {
	filter := bson.M{}
	if q.ClusterID != "" {
		filter["cluster_id"] = q.ClusterID
	}
	if q.ProcessorID != "" {
		filter["processor_id"] = q.ProcessorID
	}
	cur, err := s.col(colCameras).Find(ctx, filter)
	return all[Camera](ctx, cur, err)
}
