package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPImpactAnalyzerOptions configures the client-impact adapter.
type HTTPImpactAnalyzerOptions struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
	Client   *http.Client
}

// HTTPImpactAnalyzer queries an external log-analytics service for the
// client-observed error rate of an instance.
type HTTPImpactAnalyzer struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

type impactResponse struct {
	ErrorRate float64 `json:"error_rate"`
}

// NewHTTPImpactAnalyzer builds the adapter for the configured endpoint.
func NewHTTPImpactAnalyzer(opts HTTPImpactAnalyzerOptions) (*HTTPImpactAnalyzer, error) {
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		return nil, errors.New("impact analyzer requires an endpoint")
	}
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPImpactAnalyzer{endpoint: endpoint, apiKey: opts.APIKey, client: client}, nil
}

// ErrorRate implements ImpactAnalyzer.
func (a *HTTPImpactAnalyzer) ErrorRate(ctx context.Context, instanceID string, window time.Duration) (float64, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	query := url.Values{}
	query.Set("instance_id", instanceID)
	query.Set("window_sec", fmt.Sprintf("%d", int64(math.Ceil(window.Seconds()))))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("build impact request: %w", err)
	}
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("call impact service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("impact service returned status %d", resp.StatusCode)
	}

	var decoded impactResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return 0, fmt.Errorf("decode impact response: %w", err)
	}

	rate := decoded.ErrorRate
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	return rate, nil
}

var _ ImpactAnalyzer = (*HTTPImpactAnalyzer)(nil)
