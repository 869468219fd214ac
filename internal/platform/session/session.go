// Package session holds per-client interaction state: which page the client
// is on, who is logged in, and the unsubmitted prediction drafts.
//
// A session is either anonymous (page login or register) or authenticated
// (page dashboard with a role and email). Logout returns it to an anonymous
// login page with every field cleared.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/medpredict/clinic/internal/domain/disease"
)

type Page string

const (
	PageLogin     Page = "login"
	PageRegister  Page = "register"
	PageDashboard Page = "dashboard"
)

var (
	ErrNotFound          = errors.New("session not found")
	ErrInvalidToken      = errors.New("invalid session token")
	ErrNotAuthenticated  = errors.New("session is not authenticated")
	ErrAlreadySignedIn   = errors.New("session is already authenticated")
	ErrIllegalNavigation = errors.New("illegal page transition")
)

type Session struct {
	ID        string                     `json:"id"`
	Email     string                     `json:"email,omitempty"`
	Role      string                     `json:"role,omitempty"`
	Page      Page                       `json:"page"`
	Drafts    map[disease.Disease]string `json:"drafts,omitempty"`
	CreatedAt time.Time                  `json:"created_at"`
	UpdatedAt time.Time                  `json:"updated_at"`
}

// newSession starts on the register page only when asked to; every other
// hint lands on login.
func newSession(id, pageHint string, now time.Time) *Session {
	page := PageLogin
	if Page(pageHint) == PageRegister {
		page = PageRegister
	}
	return &Session{ID: id, Page: page, CreatedAt: now, UpdatedAt: now}
}

func (s *Session) Authenticated() bool {
	return s.Role != ""
}

// Navigate moves an anonymous session between the login and register pages.
func (s *Session) Navigate(page Page) error {
	if s.Authenticated() {
		return fmt.Errorf("%w: authenticated sessions stay on the dashboard", ErrIllegalNavigation)
	}
	if page != PageLogin && page != PageRegister {
		return fmt.Errorf("%w: cannot navigate to %q", ErrIllegalNavigation, page)
	}
	s.Page = page
	return nil
}

func (s *Session) RegisterSucceeded() error {
	if s.Authenticated() {
		return ErrAlreadySignedIn
	}
	s.Page = PageLogin
	return nil
}

func (s *Session) LoginSucceeded(role, email string) error {
	if s.Authenticated() {
		return ErrAlreadySignedIn
	}
	s.Role = role
	s.Email = email
	s.Page = PageDashboard
	s.Drafts = nil
	return nil
}

// Logout clears identity and drafts and returns to the login page.
func (s *Session) Logout() {
	s.Role = ""
	s.Email = ""
	s.ClearDrafts()
	s.Page = PageLogin
}

// SetDraft stages a prediction, replacing any earlier one for d.
func (s *Session) SetDraft(d disease.Disease, label string) error {
	if !s.Authenticated() {
		return ErrNotAuthenticated
	}
	if s.Drafts == nil {
		s.Drafts = make(map[disease.Disease]string)
	}
	s.Drafts[d] = label
	return nil
}

func (s *Session) Draft(d disease.Disease) (string, bool) {
	label, ok := s.Drafts[d]
	return label, ok
}

// ClearDrafts drops every staged prediction.
func (s *Session) ClearDrafts() {
	s.Drafts = nil
}
