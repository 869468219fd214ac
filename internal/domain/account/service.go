package account

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/medpredict/clinic/internal/platform/apperror"
)

// Service is the credential store: registration and password checks.
type Service struct {
	users  UserRepository
	hasher *passwordHasher
	logger zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithBcryptCost overrides bcrypt.DefaultCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.hasher.cost = cost }
}

func NewService(users UserRepository, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		users:  users,
		hasher: &passwordHasher{cost: bcrypt.DefaultCost},
		logger: logger.With().Str("component", "account").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register validates the form, hashes the password and stores the user.
// A taken email yields ErrEmailExists and the existing account is unchanged.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	if err := validateRegistration(req); err != nil {
		return nil, err
	}
	role, err := ParseRole(req.Role)
	if err != nil {
		return nil, apperror.Validation(err.Error())
	}

	hash, err := s.hasher.hash(req.Password)
	if err != nil {
		return nil, apperror.Internal(err)
	}

	u := &User{
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		PhoneNumber:  strings.TrimSpace(req.PhoneNumber),
		Email:        NormalizeEmail(req.Email),
		PasswordHash: hash,
		Role:         role,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, ErrEmailExists) {
			s.logger.Info().Str("email", u.Email).Msg("registration rejected: email exists")
			return nil, ErrEmailExists
		}
		return nil, apperror.Store(fmt.Errorf("register user: %w", err))
	}

	s.logger.Info().Str("user_id", u.ID.String()).Str("role", string(u.Role)).Msg("user registered")
	return u, nil
}

// Authenticate returns the role of the account matching email and password.
// Failures are ErrUserNotFound or ErrBadPassword; both take the same time.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Role, error) {
	email = NormalizeEmail(email)
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		s.hasher.burn(password)
		s.logger.Debug().Str("reason", "user_not_found").Msg("authentication failed")
		return "", ErrUserNotFound
	}
	if err != nil {
		return "", apperror.Store(fmt.Errorf("authenticate: %w", err))
	}

	if len(password) > MaxPasswordBytes {
		s.hasher.burn(password[:MaxPasswordBytes])
		s.logger.Debug().Str("reason", "bad_password").Str("user_id", u.ID.String()).Msg("authentication failed")
		return "", ErrBadPassword
	}
	if err := s.hasher.verify(u.PasswordHash, password); err != nil {
		if errors.Is(err, ErrBadPassword) {
			s.logger.Debug().Str("reason", "bad_password").Str("user_id", u.ID.String()).Msg("authentication failed")
			return "", err
		}
		return "", apperror.Internal(err)
	}
	return u.Role, nil
}

func validateRegistration(req RegisterRequest) error {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"first_name", req.FirstName},
		{"last_name", req.LastName},
		{"phone_number", req.PhoneNumber},
		{"email", req.Email},
		{"password", req.Password},
		{"confirm_password", req.ConfirmPassword},
		{"role", req.Role},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return apperror.Validation("all fields are required").
			WithDetails(map[string]any{"missing": missing})
	}

	if req.Password != req.ConfirmPassword {
		return apperror.Validation("passwords do not match")
	}
	if len(req.Password) > MaxPasswordBytes {
		return apperror.Validation(fmt.Sprintf("password must be at most %d bytes", MaxPasswordBytes))
	}
	email := strings.TrimSpace(req.Email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return apperror.Validation("email is not a valid address")
	}
	return nil
}
