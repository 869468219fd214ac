package account

import (
	"context"
	"errors"
)

var (
	ErrEmailExists  = errors.New("email already exists")
	ErrUserNotFound = errors.New("user not found")
	ErrBadPassword  = errors.New("incorrect password")
)

type UserRepository interface {
	// Create inserts u unless its email is taken, in which case it returns
	// ErrEmailExists and leaves the stored user untouched.
	Create(ctx context.Context, u *User) error
	GetByEmail(ctx context.Context, email string) (*User, error)
}
