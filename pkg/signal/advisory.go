package signal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HTTPRecommenderOptions configures the JSON-over-HTTP advisory adapter.
type HTTPRecommenderOptions struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
	Client   *http.Client
}

// HTTPRecommender consults an external advisory service over HTTP. The wire
// format is a small JSON envelope; the service internals are a collaborator
// and deliberately unspecified.
type HTTPRecommender struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

type advisoryRequest struct {
	InstanceID string             `json:"instance_id"`
	ActiveDC   string             `json:"active_dc"`
	Statuses   map[string]string  `json:"statuses,omitempty"`
	Scores     map[string]float64 `json:"scores,omitempty"`
	ErrorRate  float64            `json:"error_rate,omitempty"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
}

type advisoryResponse struct {
	Action     string  `json:"action"`
	TargetDC   string  `json:"target_dc"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

// NewHTTPRecommender builds an advisory adapter for the configured endpoint.
func NewHTTPRecommender(opts HTTPRecommenderOptions) (*HTTPRecommender, error) {
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		return nil, errors.New("advisory recommender requires an endpoint")
	}
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPRecommender{
		endpoint: endpoint,
		apiKey:   opts.APIKey,
		client:   client,
	}, nil
}

// Recommend implements Recommender.
func (r *HTTPRecommender) Recommend(ctx context.Context, advisory AdvisoryContext) (Recommendation, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	payload, err := json.Marshal(advisoryRequest{
		InstanceID: advisory.InstanceID,
		ActiveDC:   advisory.ActiveDC,
		Statuses:   advisory.Statuses,
		Scores:     advisory.Scores,
		ErrorRate:  advisory.ErrorRate,
		Metrics:    advisory.Metrics,
	})
	if err != nil {
		return Recommendation{}, fmt.Errorf("marshal advisory request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Recommendation{}, fmt.Errorf("build advisory request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return Recommendation{}, fmt.Errorf("call advisory service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Recommendation{}, fmt.Errorf("advisory service returned status %d", resp.StatusCode)
	}

	var decoded advisoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Recommendation{}, fmt.Errorf("decode advisory response: %w", err)
	}

	rec := Recommendation{
		Action:     strings.TrimSpace(decoded.Action),
		TargetDC:   strings.TrimSpace(decoded.TargetDC),
		Confidence: decoded.Confidence,
		Rationale:  decoded.Rationale,
	}
	if rec.Confidence < 0 {
		rec.Confidence = 0
	}
	if rec.Confidence > 1 {
		rec.Confidence = 1
	}
	return rec, nil
}

var _ Recommender = (*HTTPRecommender)(nil)
