package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
)

// InsertCluster stores a cluster under a fresh id.
func (s *Store) InsertCluster(ctx context.Context, c Cluster) (*Cluster, error) {
	c.ID = uuid.NewString()
	if c.UniformID == nil {
		c.UniformID = []string{}
	}
	if _, err := s.col(colClusters).InsertOne(ctx, c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSavingFailed, err)
	}
	return &c, nil
}

// UpdateCluster replaces the name and uniform assignment.
func (s *Store) UpdateCluster(ctx context.Context, c Cluster) (*Cluster, error) {
	res, err := s.col(colClusters).UpdateOne(ctx,
		bson.M{"id": c.ID}, bson.M{"$set": c})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpdatingFailed, err)
	}
	if res.MatchedCount == 0 {
		return nil, ErrNotFound
	}
	return &c, nil
}

// DeleteCluster removes the cluster row. Processors keep their assignment id
// until re-assigned; their rows are reachable by id, never through the
// deleted name.
func (s *Store) DeleteCluster(ctx context.Context, id string) error {
	res, err := s.col(colClusters).DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeletingFailed, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ClusterByID fetches one cluster.
func (s *Store) ClusterByID(ctx context.Context, id string) (*Cluster, error) {
	return one[Cluster](s.col(colClusters).FindOne(ctx, bson.M{"id": id}))
}

// Clusters lists every cluster, optionally restricted to a set of ids.
func (s *Store) Clusters(ctx context.Context, ids []string) ([]Cluster, error) {
	filter := bson.M{}
	if len(ids) > 0 {
		filter["id"] = bson.M{"$in": ids}
	}
	cur, err := s.col(colClusters).Find(ctx, filter)
	return all[Cluster](ctx, cur, err)
}
