package prediction

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/campusfix/backend/internal/metrics"
	"github.com/campusfix/backend/internal/models"
)

type HTTPSource struct {
	BaseURL string
	Client  *http.Client
}

type predictionItem struct {
	Location          string   `json:"location"`
	Category          string   `json:"category"`
	DaysToNextFailure *float64 `json:"days_to_next_failure"`
	Confidence        float64  `json:"confidence"`
	Message           string   `json:"message"`
}

type predictionsEnvelope struct {
	Predictions []predictionItem `json:"predictions"`
}

type HealthStatus struct {
	Healthy    bool      `json:"healthy"`
	Status     int       `json:"status"`
	StatusText string    `json:"status_text,omitempty"`
	Endpoint   string    `json:"endpoint"`
	Error      string    `json:"error,omitempty"`
	CheckedAt  time.Time `json:"timestamp"`
}

func (h HTTPSource) client() *http.Client {
	if h.Client != nil {
		return h.Client
	}
	return &http.Client{Timeout: 15 * time.Second}
}

func (h HTTPSource) Predictions(ctx context.Context, limit int) ([]models.Prediction, error) {
	start := time.Now()
	items, err := h.fetch(ctx, limit)
	metrics.ObservePredictionLatency(time.Since(start))
	if err != nil {
		metrics.IncPredictionFailure()
		return nil, err
	}
	return items, nil
}

func (h HTTPSource) fetch(ctx context.Context, limit int) ([]models.Prediction, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	endpoint := strings.TrimRight(h.BaseURL, "/") + "/predictions"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("prediction service: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("prediction service error: %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return decodePredictions(body, limit)
}

// decodePredictions accepts either a bare array or {"predictions": [...]}.
// Items without a forecast are dropped.
func decodePredictions(body []byte, limit int) ([]models.Prediction, error) {
	var items []predictionItem
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("decode predictions: %w", err)
		}
	} else {
		var env predictionsEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("decode predictions: %w", err)
		}
		items = env.Predictions
	}

	out := make([]models.Prediction, 0, len(items))
	for _, it := range items {
		if it.DaysToNextFailure == nil || strings.TrimSpace(it.Location) == "" {
			continue
		}
		out = append(out, models.Prediction{
			Location:          strings.TrimSpace(it.Location),
			Category:          models.Category(strings.ToLower(strings.TrimSpace(it.Category))),
			DaysToNextFailure: *it.DaysToNextFailure,
			Confidence:        it.Confidence,
			Message:           it.Message,
		})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Health probes the scorer's /health endpoint.
func (h HTTPSource) Health(ctx context.Context) HealthStatus {
	status := HealthStatus{Endpoint: h.BaseURL, CheckedAt: time.Now().UTC()}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(h.BaseURL, "/")+"/health", nil)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	resp, err := h.client().Do(req)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	defer resp.Body.Close()
	status.Status = resp.StatusCode
	status.StatusText = http.StatusText(resp.StatusCode)
	status.Healthy = resp.StatusCode >= 200 && resp.StatusCode < 300
	return status
}
