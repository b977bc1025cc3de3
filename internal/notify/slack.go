package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SlackNotifier sends notifications to Slack
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
}

// SlackMessage represents a Slack message payload
type SlackMessage struct {
	Text        string            `json:"text"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

// SlackAttachment represents a Slack message attachment
type SlackAttachment struct {
	Color  string `json:"color"`
	Title  string `json:"title"`
	Text   string `json:"text"`
	Footer string `json:"footer,omitempty"`
}

// NewSlackNotifier creates a new Slack notifier
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SlackColor returns the Slack color for an event type
func SlackColor(t EventType) string {
	switch t {
	case EventPerformanceSummary:
		return "good"
	case EventSelfHealTriggered:
		return "warning"
	case EventBuildFailurePersistent:
		return "danger"
	default:
		return "#439FE0"
	}
}

// Send sends an event to Slack
func (s *SlackNotifier) Send(e Event) error {
	if s.webhookURL == "" {
		return nil // Disabled
	}

	msg := SlackMessage{
		Text: string(e.Type),
		Attachments: []SlackAttachment{
			{
				Color:  SlackColor(e.Type),
				Text:   e.Message,
				Footer: "ARCHON Supervisor",
			},
		},
	}

	if e.DecisionID != "" {
		msg.Attachments[0].Title = e.DecisionID
	} else if e.CycleID != "" {
		msg.Attachments[0].Title = e.CycleID
	}

	payload, err := json.Marshal(&msg)
	if err != nil {
		return err
	}

	resp, err := s.client.Post(s.webhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned %d", resp.StatusCode)
	}

	return nil
}
