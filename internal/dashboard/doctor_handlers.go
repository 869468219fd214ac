package dashboard

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medpredict/clinic/internal/domain/diagnosis"
	"github.com/medpredict/clinic/internal/platform/apperror"
	"github.com/medpredict/clinic/internal/platform/blobstore"
	"github.com/medpredict/clinic/internal/platform/reporting"
	"github.com/medpredict/clinic/internal/platform/telemetry"
	"github.com/medpredict/clinic/pkg/pagination"
)

type recommendationRequest struct {
	diagnosis.RecordKey
	Recommendation string `json:"recommendation"`
}

type reportRequest struct {
	RecordID       string  `json:"record_id"`
	Recommendation *string `json:"recommendation"`
}

// ListPatients returns every patient name that has at least one record.
func (h *Handler) ListPatients(c echo.Context) error {
	names, err := h.records.DistinctPatientNames(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.Page(names, pagination.FromContext(c)))
}

// ListRecords returns a patient's records in the order they were submitted.
func (h *Handler) ListRecords(c echo.Context) error {
	name, err := pathParam(c, "name")
	if err != nil {
		return err
	}
	recs, err := h.records.ListByPatient(c.Request().Context(), name)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.Page(recs, pagination.FromContext(c)))
}

func (h *Handler) ExportRecords(c echo.Context) error {
	name, err := pathParam(c, "name")
	if err != nil {
		return err
	}
	recs, err := h.records.ListByPatient(c.Request().Context(), name)
	if err != nil {
		return err
	}
	rows := make([]diagnosis.Record, len(recs))
	for i, r := range recs {
		rows[i] = *r
	}
	out, err := reporting.ExportRecords(rows)
	if err != nil {
		return apperror.Internal(err)
	}
	telemetry.ObserveReport("xlsx")
	return attachment(c, reporting.ExportFileName(strings.TrimSpace(name)), reporting.ContentTypeXLSX, out)
}

// UpdateRecommendation writes the doctor's text onto the newest record with
// the given patient, disease and diagnosis.
func (h *Handler) UpdateRecommendation(c echo.Context) error {
	var req recommendationRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequest("invalid request body")
	}
	rec, err := h.records.UpdateRecommendation(c.Request().Context(), req.RecordKey, req.Recommendation)
	if err != nil {
		return err
	}
	telemetry.ObserveRecommendation()
	return c.JSON(http.StatusOK, rec)
}

// DownloadReport renders the PDF report of a stored record. A recommendation
// in the request replaces the stored one on the report only.
func (h *Handler) DownloadReport(c echo.Context) error {
	var req reportRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequest("invalid request body")
	}
	id, err := uuid.Parse(req.RecordID)
	if err != nil {
		return apperror.Validation("record_id must be a uuid")
	}

	rec, err := h.records.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	text := rec.RecommendationText()
	if req.Recommendation != nil {
		text = *req.Recommendation
	}

	pdf, err := reporting.Generate(reporting.ReportInput{
		PatientName:    rec.PatientName,
		Disease:        rec.Disease,
		Diagnosis:      rec.Diagnosis,
		Recommendation: text,
	})
	if err != nil {
		return apperror.Internal(err)
	}
	telemetry.ObserveReport("pdf")

	name := reporting.FileName(rec.PatientName)
	h.cacheReport(c.Request().Context(), name, pdf)
	return attachment(c, name, reporting.ContentTypePDF, pdf)
}

// cacheReport keeps the latest rendering of a patient's report. Failures are
// logged; the download is served either way.
func (h *Handler) cacheReport(ctx context.Context, name string, pdf []byte) {
	if h.reports == nil {
		return
	}
	key := ReportKey(name)
	if _, err := h.reports.Put(ctx, key, pdf, reporting.ContentTypePDF); err != nil {
		h.logger.Warn().Err(err).Str("key", key).Msg("report cache write failed")
	}
}

type cachedReport struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListReports returns the cached report files, newest rendering per patient.
func (h *Handler) ListReports(c echo.Context) error {
	out := []cachedReport{}
	if h.reports != nil {
		metas, err := h.reports.List(c.Request().Context(), reportPrefix)
		if err != nil {
			return apperror.Store(err)
		}
		for _, m := range metas {
			out = append(out, cachedReport{
				Name:      strings.TrimPrefix(m.Key, reportPrefix),
				Size:      m.Size,
				UpdatedAt: m.UpdatedAt,
			})
		}
	}
	return c.JSON(http.StatusOK, pagination.Page(out, pagination.FromContext(c)))
}

// GetReport serves a cached report file without rendering it again.
func (h *Handler) GetReport(c echo.Context) error {
	name, err := pathParam(c, "name")
	if err != nil {
		return err
	}
	if h.reports == nil {
		return apperror.NotFound("report")
	}
	pdf, meta, err := h.reports.Get(c.Request().Context(), ReportKey(name))
	if err != nil {
		return reportError(err)
	}
	return attachment(c, name, meta.ContentType, pdf)
}

// DeleteReport drops a cached report file. Stored records are untouched.
func (h *Handler) DeleteReport(c echo.Context) error {
	name, err := pathParam(c, "name")
	if err != nil {
		return err
	}
	if h.reports == nil {
		return apperror.NotFound("report")
	}
	if err := h.reports.Delete(c.Request().Context(), ReportKey(name)); err != nil {
		return reportError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func reportError(err error) error {
	switch {
	case errors.Is(err, blobstore.ErrBlobNotFound), errors.Is(err, blobstore.ErrInvalidKey):
		return apperror.NotFound("report")
	default:
		return apperror.Store(err)
	}
}

const reportPrefix = "reports/"

// ReportKey is the blob key of a cached report file.
func ReportKey(fileName string) string {
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		return r
	}, fileName)
	return reportPrefix + safe
}

// pathParam returns a route parameter with percent-escapes decoded. The
// router matches on the raw path when the request carried escapes such as
// %2F, so those values arrive still encoded.
func pathParam(c echo.Context, name string) (string, error) {
	v := c.Param(name)
	if c.Request().URL.RawPath == "" {
		return v, nil
	}
	out, err := url.PathUnescape(v)
	if err != nil {
		return "", apperror.BadRequest("invalid " + name + " in path")
	}
	return out, nil
}

func attachment(c echo.Context, name, contentType string, body []byte) error {
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": name})
	if disposition == "" {
		disposition = "attachment"
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, disposition)
	return c.Blob(http.StatusOK, contentType, body)
}
