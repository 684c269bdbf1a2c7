package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/semanticallynull/gocab-backend/store"
)

// Collection is the store collection users are kept in.
const Collection = "users"

var ErrNotFound = errors.New("user not found")

type Repository struct {
	users *store.Collection
}

func NewRepository(users *store.Collection) *Repository {
	return &Repository{users: users}
}

func (r *Repository) GetUsers(ctx context.Context) ([]User, error) {
	return decodeAll(r.users.All(ctx))
}

func (r *Repository) GetUser(ctx context.Context, id string) (User, error) {
	rec, err := r.users.Find(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	var u User
	err = rec.Decode(&u)
	return u, err
}

func (r *Repository) GetUsersByEmail(ctx context.Context, email string) ([]User, error) {
	recs, err := r.users.Where(ctx, "email", email)
	if err != nil {
		return nil, err
	}
	return decodeAll(recs)
}

// GetUserByEmailAndRole returns the first user with the given email whose
// role also matches.
func (r *Repository) GetUserByEmailAndRole(ctx context.Context, email string, role Role) (User, error) {
	users, err := r.GetUsersByEmail(ctx, email)
	if err != nil {
		return User{}, err
	}
	for _, u := range users {
		if u.Role == role {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (r *Repository) SetOnline(ctx context.Context, id string, online bool) (User, error) {
	rec, err := r.users.Update(ctx, id, struct {
		IsOnline bool `json:"isOnline"`
	}{online})
	if errors.Is(err, store.ErrNotFound) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	var u User
	err = rec.Decode(&u)
	return u, err
}

// Seed writes users only if the collection is empty.
func (r *Repository) Seed(ctx context.Context, users []User) (bool, error) {
	return r.users.Seed(ctx, users)
}

func decodeAll(recs []store.Record) ([]User, error) {
	users := make([]User, 0, len(recs))
	for _, rec := range recs {
		var u User
		if err := rec.Decode(&u); err != nil {
			return nil, fmt.Errorf("decode user %s: %w", rec.ID(), err)
		}
		users = append(users, u)
	}
	return users, nil
}
