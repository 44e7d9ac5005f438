// Package store is the server's document store: a normalized entity store
// keyed by id, traversed by id. Every error is folded into the semantic
// kinds in errors.go.
package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/gidence/scm/internal/server/config"
)

const databaseName = "scm"

const (
	colUsers       = "users"
	colClusters    = "clusters"
	colUniforms    = "uniforms"
	colProcessors  = "processors"
	colCameras     = "cameras"
	colEvidences   = "evidences"
	colSubscribers = "subscribers"
)

// Store wraps the mongo database handle.
type Store struct {
	db     *mongo.Database
	logger *log.Logger
}

// Connect dials the database from the configuration. Username/password
// credentials take precedence over the raw URI.
func Connect(ctx context.Context, cfg *config.Config) (*Store, error) {
	opts := options.Client()
	if cfg.DatabaseUsername != "" && cfg.DatabasePassword != "" {
		opts.SetAuth(options.Credential{
			Username:   cfg.DatabaseUsername,
			Password:   cfg.DatabasePassword,
			AuthSource: "admin",
		})
	} else {
		opts.ApplyURI(cfg.DatabaseURI)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(dialCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}

	s := &Store{
		db:     client.Database(databaseName),
		logger: log.New(log.Writer(), "[STORE] ", log.LstdFlags),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// ensureIndexes builds the unique id index per collection. The evidences
// index is what makes re-uploads idempotent.
func (s *Store) ensureIndexes(ctx context.Context) error {
	unique := mongo.IndexModel{
		Keys:    bson.D{{Key: "id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	for _, name := range []string{
		colUsers, colClusters, colUniforms, colProcessors,
		colCameras, colEvidences, colSubscribers,
	} {
		if _, err := s.db.Collection(name).Indexes().CreateOne(ctx, unique); err != nil {
			return fmt.Errorf("store: index %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) col(name string) *mongo.Collection {
	return s.db.Collection(name)
}

// findOptions applies optional pagination.
func findOptions(limit, skip int64) *options.FindOptions {
	opts := options.Find()
	if limit > 0 {
		opts.SetLimit(limit)
	}
	if skip > 0 {
		opts.SetSkip(skip)
	}
	return opts
}

// one decodes a single document, mapping the driver's not-found onto
// ErrNotFound.
func one[T any](res *mongo.SingleResult) (*T, error) {
	var v T
	if err := res.Decode(&v); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrFindingFailed, err)
	}
	return &v, nil
}

// all drains a cursor.
func all[T any](ctx context.Context, cur *mongo.Cursor, err error) ([]T, error) {
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFindingFailed, err)
	}
	var out []T
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFindingFailed, err)
	}
	return out, nil
}
