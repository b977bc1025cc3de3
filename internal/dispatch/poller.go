package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/selfarchitectai/archon-core/internal/domain"
)

// OutcomePoller reports the current status of a triggered build. Errors are
// transient: callers keep polling until their timeout elapses.
type OutcomePoller interface {
	Poll(ctx context.Context, decisionID string) (domain.BuildStatus, error)
}

// HTTPPoller polls a telemetry endpoint for the latest build status.
type HTTPPoller struct {
	url    string
	client *http.Client
}

// NewHTTPPoller creates a poller for the given outcome endpoint
func NewHTTPPoller(endpoint string) *HTTPPoller {
	return &HTTPPoller{
		url: endpoint,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type outcomeResponse struct {
	DecisionID  string `json:"decision_id"`
	BuildStatus string `json:"build_status"`
}

// Poll GETs the outcome endpoint for a decision.
func (p *HTTPPoller) Poll(ctx context.Context, decisionID string) (domain.BuildStatus, error) {
	if p.url == "" {
		return domain.BuildUnknown, fmt.Errorf("no outcome url configured")
	}

	endpoint := p.url
	if decisionID != "" {
		endpoint += "?decision_id=" + url.QueryEscape(decisionID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.BuildUnknown, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return domain.BuildUnknown, fmt.Errorf("outcome request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.BuildUnknown, fmt.Errorf("outcome endpoint returned %d", resp.StatusCode)
	}

	var out outcomeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.BuildUnknown, err
	}

	switch domain.BuildStatus(out.BuildStatus) {
	case domain.BuildSuccess:
		return domain.BuildSuccess, nil
	case domain.BuildFailed:
		return domain.BuildFailed, nil
	default:
		return domain.BuildPending, nil
	}
}
