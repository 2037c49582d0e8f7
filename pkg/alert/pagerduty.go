package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const pagerDutyEventsURL = "https://events.pagerduty.com/generic/2010-04-15/create_event.json"

// PagerDuty triggers incidents through the events API. Alerts below error
// severity are dropped silently so paging stays reserved for actionable
// failures.
type PagerDuty struct {
	serviceKey string
	clientURL  string
	endpoint   string
	httpClient *http.Client
}

func NewPagerDuty(serviceKey, clientURL string) *PagerDuty {
	return &PagerDuty{
		serviceKey: serviceKey,
		clientURL:  clientURL,
		endpoint:   pagerDutyEventsURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *PagerDuty) Name() string {
	return "pagerduty"
}

type pagerDutyEvent struct {
	ServiceKey  string            `json:"service_key"`
	EventType   string            `json:"event_type"`
	IncidentKey string            `json:"incident_key,omitempty"`
	Description string            `json:"description"`
	Client      string            `json:"client,omitempty"`
	ClientURL   string            `json:"client_url,omitempty"`
	Details     map[string]string `json:"details,omitempty"`
}

func (p *PagerDuty) Send(ctx context.Context, a Alert) error {
	if !a.Severity.AtLeast(SeverityError) {
		return nil
	}

	event := pagerDutyEvent{
		ServiceKey:  p.serviceKey,
		EventType:   "trigger",
		IncidentKey: a.Type + "/" + a.InstanceID,
		Description: a.Summary,
		Client:      "failoverd",
		ClientURL:   p.clientURL,
		Details:     a.Details,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode pagerduty event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build pagerduty request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post to pagerduty: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pagerduty returned status %d", resp.StatusCode)
	}
	return nil
}
