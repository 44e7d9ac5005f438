package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
)

// InsertUniform stores a uniform under a fresh id.
func (s *Store) InsertUniform(ctx context.Context, u Uniform) (*Uniform, error) {
	u.ID = uuid.NewString()
	if _, err := s.col(colUniforms).InsertOne(ctx, u); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSavingFailed, err)
	}
	return &u, nil
}

// UpdateUniform replaces the name and attribute bundle.
func (s *Store) UpdateUniform(ctx context.Context, u Uniform) (*Uniform, error) {
	res, err := s.col(colUniforms).UpdateOne(ctx,
		bson.M{"id": u.ID}, bson.M{"$set": u})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpdatingFailed, err)
	}
	if res.MatchedCount == 0 {
		return nil, ErrNotFound
	}
	return &u, nil
}

// DeleteUniform removes the uniform and unlinks it from every cluster.
func (s *Store) DeleteUniform(ctx context.Context, id string) error {
	res, err := s.col(colUniforms).DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeletingFailed, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	if _, err := s.col(colClusters).UpdateMany(ctx,
		bson.M{"uniform_id": id},
		bson.M{"$pull": bson.M{"uniform_id": id}}); err != nil {
		return fmt.Errorf("%w: %v", ErrDeletingFailed, err)
	}
	return nil
}

// UniformByID fetches one uniform.
func (s *Store) UniformByID(ctx context.Context, id string) (*Uniform, error) {
	return one[Uniform](s.col(colUniforms).FindOne(ctx, bson.M{"id": id}))
}

// Uniforms lists uniforms, optionally restricted to a set of ids.
func (s *Store) Uniforms(ctx context.Context, ids []string) ([]Uniform, error) {
	filter := bson.M{}
	if len(ids) > 0 {
		filter["id"] = bson.M{"$in": ids}
	}
	cur, err := s.col(colUniforms).Find(ctx, filter)
	return all[Uniform](ctx, cur, err)
}
