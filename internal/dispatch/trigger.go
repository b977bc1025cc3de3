// Package dispatch holds the narrow contracts to the external build
// pipeline: triggering a workflow run and polling for its outcome.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"
)

// TriggerRequest carries what the pipeline needs to start a build.
type TriggerRequest struct {
	DecisionID  string
	Target      string
	Description string
	TrustScore  float64
	TriggeredBy string
}

// BuildTrigger starts an external build for an approved decision. A nil
// return means the pipeline accepted the dispatch.
type BuildTrigger interface {
	Trigger(ctx context.Context, req TriggerRequest) error
}

// WorkflowDispatcher triggers builds through a GitHub-style workflow
// dispatch endpoint.
type WorkflowDispatcher struct {
	url      string
	tokenEnv string
	client   *http.Client
}

// NewWorkflowDispatcher creates a dispatcher for the given endpoint. The
// bearer token is read from tokenEnv at request time so rotation works.
func NewWorkflowDispatcher(url, tokenEnv string) *WorkflowDispatcher {
	return &WorkflowDispatcher{
		url:      url,
		tokenEnv: tokenEnv,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type dispatchPayload struct {
	Ref    string            `json:"ref"`
	Inputs map[string]string `json:"inputs"`
}

// Trigger POSTs the workflow dispatch. Success is HTTP 204.
func (d *WorkflowDispatcher) Trigger(ctx context.Context, req TriggerRequest) error {
	if d.url == "" {
		return fmt.Errorf("no dispatch url configured")
	}

	payload := dispatchPayload{
		Ref: "main",
		Inputs: map[string]string{
			"deploy_target": req.Target,
			"triggered_by":  req.TriggeredBy,
			"description":   req.Description,
			"decision_id":   req.DecisionID,
			"trust_score":   strconv.FormatFloat(req.TrustScore, 'f', 4, 64),
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", "application/vnd.github+json")
	if token := os.Getenv(d.tokenEnv); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("dispatch request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("dispatch endpoint returned %d", resp.StatusCode)
	}
	return nil
}
