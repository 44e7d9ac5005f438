package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
)

// InsertSubscriber registers a push channel for the user. Re-registering the
// same token just moves it to the caller, so a device handed to another
// operator stops notifying the previous one.
func (s *Store) InsertSubscriber(ctx context.Context, sub Subscriber) (*Subscriber, error) {
	if sub.Kind.Apple != "" {
		if _, err := s.col(colSubscribers).DeleteMany(ctx,
			bson.M{"kind.apple": sub.Kind.Apple}); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSavingFailed, err)
		}
	}
	sub.ID = uuid.NewString()
	if _, err := s.col(colSubscribers).InsertOne(ctx, sub); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSavingFailed, err)
	}
	return &sub, nil
}

// DeleteSubscriber removes one registration.
func (s *Store) DeleteSubscriber(ctx context.Context, id string) error {
	res, err := s.col(colSubscribers).DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeletingFailed, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// SubscribersByUser lists every registration owned by one user.
func (s *Store) SubscribersByUser(ctx context.Context, userID string) ([]Subscriber, error) {
	cur, err := s.col(colSubscribers).Find(ctx, bson.M{"user_id": userID})
	return all[Subscriber](ctx, cur, err)
}
