package dashboard

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medpredict/clinic/internal/domain/disease"
	"github.com/medpredict/clinic/internal/platform/apperror"
	"github.com/medpredict/clinic/internal/platform/prediction"
	"github.com/medpredict/clinic/internal/platform/telemetry"
)

// predictRequest carries features either as an ordered array or as an object
// keyed by feature name.
type predictRequest struct {
	Features json.RawMessage `json:"features"`
}

type predictResponse struct {
	Disease   disease.Disease `json:"disease"`
	Diagnosis string          `json:"diagnosis"`
}

type submitRequest struct {
	PatientName string `json:"patient_name"`
}

type draftView struct {
	Disease   disease.Disease `json:"disease"`
	Diagnosis string          `json:"diagnosis"`
}

func decodeFeatures(d disease.Disease, raw json.RawMessage) ([]float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, apperror.Validation("features are required")
	}
	switch raw[0] {
	case '[':
		var values []*float64
		if err := json.Unmarshal(raw, &values); err != nil {
			return nil, apperror.Validation("features must be numbers")
		}
		schema := prediction.Schema(d)
		features := make([]float64, len(values))
		for i, v := range values {
			if v == nil {
				name := fmt.Sprintf("feature %d", i)
				if i < len(schema) {
					name = schema[i].Name
				}
				return nil, apperror.Validation(name + " is required")
			}
			features[i] = *v
		}
		return features, nil
	case '{':
		var named map[string]any
		if err := json.Unmarshal(raw, &named); err != nil {
			return nil, apperror.Validation("features must be an object of numbers")
		}
		features, err := prediction.FromNamed(d, named)
		if err != nil {
			return nil, apperror.Validation(err.Error())
		}
		return features, nil
	}
	return nil, apperror.Validation("features must be an array or an object")
}

// Predict classifies the submitted features and stages the label as the
// session's draft for the disease. A failed prediction leaves drafts alone.
func (h *Handler) Predict(c echo.Context) error {
	d, err := parseDisease(c)
	if err != nil {
		return err
	}
	var req predictRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequest("invalid request body")
	}
	features, err := decodeFeatures(d, req.Features)
	if err != nil {
		return err
	}

	label, err := h.predictor.Predict(c.Request().Context(), d, features)
	if err != nil {
		return predictionError(err)
	}

	s := current(c)
	if err := s.SetDraft(d, label); err != nil {
		return apperror.Unauthorized(err.Error())
	}
	if err := h.save(c, s); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, predictResponse{Disease: d, Diagnosis: label})
}

func predictionError(err error) error {
	var predErr *prediction.PredictionError
	switch {
	case errors.Is(err, prediction.ErrWrongArity),
		errors.Is(err, prediction.ErrFeatureOutOfRange),
		errors.Is(err, prediction.ErrUnknownFeature):
		return apperror.Validation(err.Error())
	case errors.Is(err, prediction.ErrModelUnavailable):
		return apperror.Prediction("model unavailable", err)
	case errors.As(err, &predErr):
		return apperror.Prediction(predErr.Error(), err)
	}
	return apperror.Prediction("prediction failed", err)
}

// ListDrafts returns the staged predictions in display order.
func (h *Handler) ListDrafts(c echo.Context) error {
	s := current(c)
	out := []draftView{}
	for _, d := range disease.All {
		if label, ok := s.Draft(d); ok {
			out = append(out, draftView{Disease: d, Diagnosis: label})
		}
	}
	return c.JSON(http.StatusOK, map[string]any{"drafts": out})
}

// Submit stores the disease's draft as a record under the given patient name.
// The draft stays staged, so submitting twice stores two records.
func (h *Handler) Submit(c echo.Context) error {
	d, err := parseDisease(c)
	if err != nil {
		return err
	}
	var req submitRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequest("invalid request body")
	}

	label, ok := current(c).Draft(d)
	if !ok {
		return apperror.Validation("no " + d.String() + " prediction to submit")
	}

	rec, err := h.records.Create(c.Request().Context(), req.PatientName, d, label)
	if err != nil {
		return err
	}
	telemetry.ObserveRecordCreated(d.String())
	return c.JSON(http.StatusCreated, rec)
}
