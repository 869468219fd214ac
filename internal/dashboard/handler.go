// Package dashboard serves the clinic's HTTP API: session and account pages,
// the patient dashboard (predict, review drafts, submit) and the doctor
// dashboard (browse patients, recommend, export, download reports).
package dashboard

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medpredict/clinic/internal/domain/account"
	"github.com/medpredict/clinic/internal/domain/diagnosis"
	"github.com/medpredict/clinic/internal/domain/disease"
	"github.com/medpredict/clinic/internal/platform/apperror"
	"github.com/medpredict/clinic/internal/platform/auth"
	"github.com/medpredict/clinic/internal/platform/blobstore"
	"github.com/medpredict/clinic/internal/platform/prediction"
	"github.com/medpredict/clinic/internal/platform/session"
)

// Predictor runs the per-disease classifiers.
type Predictor interface {
	Predict(ctx context.Context, d disease.Disease, features []float64) (string, error)
	Status() []prediction.ModelStatus
}

// Deps are the collaborators a Handler needs. Reports may be nil, in which
// case rendered reports are not cached. LoginLimit, when set, guards the
// login route.
type Deps struct {
	Accounts   *account.Service
	Records    *diagnosis.Service
	Predictor  Predictor
	Sessions   *session.Manager
	Reports    blobstore.Store
	LoginLimit echo.MiddlewareFunc
	Logger     zerolog.Logger
}

type Handler struct {
	accounts   *account.Service
	records    *diagnosis.Service
	predictor  Predictor
	sessions   *session.Manager
	reports    blobstore.Store
	loginLimit echo.MiddlewareFunc
	logger     zerolog.Logger
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		accounts:   d.Accounts,
		records:    d.Records,
		predictor:  d.Predictor,
		sessions:   d.Sessions,
		reports:    d.Reports,
		loginLimit: d.LoginLimit,
		logger:     d.Logger.With().Str("component", "dashboard").Logger(),
	}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", session.Middleware(h.sessions))

	g.POST("/session", h.StartSession)
	g.GET("/models", h.ListModels)

	// Any session, anonymous or signed in
	sess := g.Group("", session.Require())
	sess.GET("/session", h.GetSession)
	sess.POST("/session/navigate", h.Navigate)
	sess.POST("/auth/register", h.Register)
	if h.loginLimit != nil {
		sess.POST("/auth/login", h.Login, h.loginLimit)
	} else {
		sess.POST("/auth/login", h.Login)
	}
	sess.POST("/auth/logout", h.Logout)

	patient := g.Group("/patient", auth.RequireRole(account.RolePatient))
	patient.POST("/predictions/:disease", h.Predict)
	patient.GET("/drafts", h.ListDrafts)
	patient.POST("/submissions/:disease", h.Submit)

	doctor := g.Group("/doctor", auth.RequireRole(account.RoleDoctor))
	doctor.GET("/patients", h.ListPatients)
	doctor.GET("/patients/:name/records", h.ListRecords)
	doctor.GET("/patients/:name/export", h.ExportRecords)
	doctor.PUT("/recommendations", h.UpdateRecommendation)
	doctor.POST("/reports", h.DownloadReport)
	doctor.GET("/reports", h.ListReports)
	doctor.GET("/reports/:name", h.GetReport)
	doctor.DELETE("/reports/:name", h.DeleteReport)
}

// ListModels reports which diseases can be predicted and their inputs.
func (h *Handler) ListModels(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"models": h.predictor.Status()})
}

// current returns the request's session. Routes behind session.Require or
// auth.RequireRole always have one.
func current(c echo.Context) *session.Session {
	return session.FromContext(c.Request().Context())
}

func (h *Handler) save(c echo.Context, s *session.Session) error {
	if err := h.sessions.Save(c.Request().Context(), s); err != nil {
		return apperror.Store(err)
	}
	return nil
}

func parseDisease(c echo.Context) (disease.Disease, error) {
	d, err := disease.Parse(c.Param("disease"))
	if err != nil {
		return "", apperror.NotFound("disease")
	}
	return d, nil
}
