package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/crypto/bcrypt"
)

// UserQuery filters the user listing.
type UserQuery struct {
	ClusterID string
	Text      string
	Limit     int64
	Skip      int64
}

// InsertUser hashes the password and stores the account under a fresh id.
func (s *Store) InsertUser(ctx context.Context, u User) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSavingFailed, err)
	}
	u.ID = uuid.NewString()
	u.Password = string(hash)
	if _, err := s.col(colUsers).InsertOne(ctx, u); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSavingFailed, err)
	}
	return &u, nil
}

// UpdateUser replaces the mutable fields. A non-empty password is re-hashed.
func (s *Store) UpdateUser(ctx context.Context, u User, password string) (*User, error) {
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUpdatingFailed, err)
		}
		u.Password = string(hash)
	}
	res, err := s.col(colUsers).UpdateOne(ctx,
		bson.M{"id": u.ID}, bson.M{"$set": u})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpdatingFailed, err)
	}
	if res.MatchedCount == 0 {
		return nil, ErrNotFound
	}
	return &u, nil
}

// DeleteUser removes the account and its subscribers.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.col(colUsers).DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeletingFailed, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	if _, err := s.col(colSubscribers).DeleteMany(ctx, bson.M{"user_id": id}); err != nil {
		return fmt.Errorf("%w: %v", ErrDeletingFailed, err)
	}
	return nil
}

// UserByID fetches one account.
func (s *Store) UserByID(ctx context.Context, id string) (*User, error) {
	return one[User](s.col(colUsers).FindOne(ctx, bson.M{"id": id}))
}

// UserByNumber fetches one account by its login number.
func (s *Store) UserByNumber(ctx context.Context, number string) (*User, error) {
	return one[User](s.col(colUsers).FindOne(ctx, bson.M{"number": number}))
}

// Users lists accounts matching the query.
func (s *Store) Users(ctx context.Context, q UserQuery) ([]User, error) {
	filter := bson.M{}
	if q.ClusterID != "" {
		filter["cluster_id"] = q.ClusterID
	}
	if q.Text != "" {
		filter["name"] = bson.M{"$regex": q.Text, "$options": "i"}
	}
	opts := findOptions(q.Limit, q.Skip)
	cur, err := s.col(colUsers).Find(ctx, filter, opts)
	return all[User](ctx, cur, err)
}

// ClusterAudience returns every user assigned to the cluster plus all
// super-admins, which form the broadcast audience of every cluster.
func (s *Store) ClusterAudience(ctx context.Context, clusterID string) ([]User, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"cluster_id": clusterID},
		bson.M{"role": RoleSuperAdmin},
	}}
	cur, err := s.col(colUsers).Find(ctx, filter)
	return all[User](ctx, cur, err)
}

// Authenticate verifies the number/password pair.
func (s *Store) Authenticate(ctx context.Context, number, password string) (*User, error) {
	user, err := s.UserByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return nil, ErrInvalidCombination
	}
	return user, nil
}

// EnsureSuperAdmin seeds the default account when no users exist.
func (s *Store) EnsureSuperAdmin(ctx context.Context) error {
	n, err := s.col(colUsers).CountDocuments(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFindingFailed, err)
	}
	if n > 0 {
		return nil
	}
	_, err = s.InsertUser(ctx, User{
		Number:   "111",
		Name:     "Super Admin",
		Password: "1234abcd",
		Role:     RoleSuperAdmin,
	})
	if err == nil {
		s.logger.Printf("seeded default super admin")
	}
	return err
}
