package prediction

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/medpredict/clinic/internal/domain/disease"
)

// RemoteClassifier asks a model server for predictions over HTTP using the
// TensorFlow Serving style ":predict" route.
type RemoteClassifier struct {
	client *resty.Client
	path   string
}

type predictRequest struct {
	Instances [][]float64 `json:"instances"`
}

type predictResponse struct {
	Predictions []float64 `json:"predictions"`
}

func NewRemoteClient(baseURL string, timeout time.Duration) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(1)
}

func NewRemoteClassifier(client *resty.Client, d disease.Disease) *RemoteClassifier {
	return &RemoteClassifier{client: client, path: fmt.Sprintf("/v1/models/%s:predict", d.Slug())}
}

func (r *RemoteClassifier) Predict(ctx context.Context, features []float64) (int, error) {
	var out predictResponse
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(predictRequest{Instances: [][]float64{features}}).
		SetResult(&out).
		Post(r.path)
	if err != nil {
		return 0, fmt.Errorf("model server request: %w", err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("model server returned %s", resp.Status())
	}
	if len(out.Predictions) != 1 {
		return 0, fmt.Errorf("model server returned %d predictions, expected 1", len(out.Predictions))
	}
	switch out.Predictions[0] {
	case 0:
		return 0, nil
	case 1:
		return 1, nil
	}
	return 0, fmt.Errorf("model server returned non-binary prediction %v", out.Predictions[0])
}
