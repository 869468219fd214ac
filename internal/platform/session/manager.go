package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Manager creates, loads and persists sessions and mints the bearer tokens
// that refer to them.
type Manager struct {
	store  Store
	signer tokenSigner
	now    func() time.Time
}

func NewManager(store Store, signingKey []byte, ttl time.Duration) *Manager {
	return &Manager{
		store:  store,
		signer: tokenSigner{key: signingKey, ttl: ttl},
		now:    time.Now,
	}
}

// Start creates an anonymous session on the hinted page.
func (m *Manager) Start(ctx context.Context, pageHint string) (*Session, string, error) {
	s := newSession(uuid.NewString(), pageHint, m.now().UTC())
	token, err := m.persist(ctx, s)
	if err != nil {
		return nil, "", err
	}
	return s, token, nil
}

// Load resolves a bearer token to its session.
func (m *Manager) Load(ctx context.Context, token string) (*Session, error) {
	id, err := m.signer.parse(token, m.now())
	if err != nil {
		return nil, err
	}
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Save persists s after a state change.
func (m *Manager) Save(ctx context.Context, s *Session) error {
	s.UpdatedAt = m.now().UTC()
	if err := m.store.Save(ctx, s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Rotate moves s to a fresh id and returns its new token. The old id is
// deleted so tokens issued before a login or logout stop working.
func (m *Manager) Rotate(ctx context.Context, s *Session) (string, error) {
	oldID := s.ID
	s.ID = uuid.NewString()
	token, err := m.persist(ctx, s)
	if err != nil {
		s.ID = oldID
		return "", err
	}
	if err := m.store.Delete(ctx, oldID); err != nil && !errors.Is(err, ErrNotFound) {
		return "", fmt.Errorf("delete rotated session: %w", err)
	}
	return token, nil
}

func (m *Manager) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}

func (m *Manager) persist(ctx context.Context, s *Session) (string, error) {
	if err := m.Save(ctx, s); err != nil {
		return "", err
	}
	return m.signer.sign(s.ID, m.now())
}
