package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medpredict/clinic/internal/platform/apperror"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func newTestManager(t *testing.T) (*Manager, *MemoryStore) {
	store := NewMemoryStore(time.Hour)
	t.Cleanup(store.Close)
	return NewManager(store, testKey, time.Hour), store
}

func TestManager_StartAndLoad(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	s, token, err := m.Start(ctx, "register")
	require.NoError(t, err)
	assert.Equal(t, PageRegister, s.Page)

	loaded, err := m.Load(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, s.ID, loaded.ID)
	assert.Equal(t, PageRegister, loaded.Page)
}

func TestManager_LoadRejectsForeignKey(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	other := NewManager(store, []byte("another-key-another-key-another-k"), time.Hour)
	_, token, err := other.Start(ctx, "")
	require.NoError(t, err)

	_, err = m.Load(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestManager_LoadRejectsExpiredToken(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, token, err := m.Start(ctx, "")
	require.NoError(t, err)

	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = m.Load(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestManager_RotateInvalidatesOldToken(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	s, oldToken, err := m.Start(ctx, "")
	require.NoError(t, err)
	oldID := s.ID

	require.NoError(t, s.LoginSucceeded("patient", "a@x.com"))
	newToken, err := m.Rotate(ctx, s)
	require.NoError(t, err)
	assert.NotEqual(t, oldID, s.ID)

	_, err = m.Load(ctx, oldToken)
	assert.ErrorIs(t, err, ErrNotFound)

	loaded, err := m.Load(ctx, newToken)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", loaded.Email)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_Expiry(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newSession("x", "", time.Now())))
	store.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	_, err := store.Get(ctx, "x")
	assert.ErrorIs(t, err, ErrNotFound)

	store.cleanup()
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	defer store.Close()
	ctx := context.Background()

	s := newSession("x", "", time.Now())
	require.NoError(t, store.Save(ctx, s))
	s.Page = PageRegister

	got, err := store.Get(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, PageLogin, got.Page)
}

func runMiddleware(t *testing.T, m *Manager, header string) (*Session, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen *Session
	err := Middleware(m)(func(c echo.Context) error {
		seen = FromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})(c)
	return seen, err
}

func TestMiddleware(t *testing.T) {
	m, _ := newTestManager(t)
	s, token, err := m.Start(context.Background(), "")
	require.NoError(t, err)

	seen, err := runMiddleware(t, m, "")
	require.NoError(t, err)
	assert.Nil(t, seen)

	seen, err = runMiddleware(t, m, "Bearer "+token)
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.Equal(t, s.ID, seen.ID)

	_, err = runMiddleware(t, m, "Bearer not-a-jwt")
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusUnauthorized, appErr.HTTPStatus)

	_, err = runMiddleware(t, m, "Basic abc")
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusUnauthorized, appErr.HTTPStatus)
}
