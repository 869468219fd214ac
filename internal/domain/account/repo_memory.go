package account

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type userRepoMemory struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewMemoryUserRepo returns a UserRepository that lives in process memory.
func NewMemoryUserRepo() UserRepository {
	return &userRepoMemory{users: make(map[string]User)}
}

func (r *userRepoMemory) Create(_ context.Context, u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[u.Email]; ok {
		return ErrEmailExists
	}
	u.ID = uuid.New()
	u.CreatedAt = time.Now().UTC()
	r.users[u.Email] = *u
	return nil
}

func (r *userRepoMemory) GetByEmail(_ context.Context, email string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}
