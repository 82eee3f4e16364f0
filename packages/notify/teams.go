package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TeamsNotifier sends run summaries to a Microsoft Teams incoming webhook.
type TeamsNotifier struct {
	webhookURL string
	client     *http.Client
}

// TeamsOption is a functional option for TeamsNotifier.
type TeamsOption func(*TeamsNotifier)

// WithTeamsClient swaps the HTTP client, used by tests.
func WithTeamsClient(c *http.Client) TeamsOption {
	return func(t *TeamsNotifier) { t.client = c }
}

// NewTeamsNotifier creates a Teams notifier.
func NewTeamsNotifier(webhookURL string, opts ...TeamsOption) *TeamsNotifier {
	t := &TeamsNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name returns the notifier name.
func (t *TeamsNotifier) Name() string {
	return "teams"
}

type teamsMessage struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	ThemeColor string         `json:"themeColor"`
	Summary    string         `json:"summary"`
	Sections   []teamsSection `json:"sections"`
}

type teamsSection struct {
	ActivityTitle string      `json:"activityTitle"`
	Text          string      `json:"text,omitempty"`
	Facts         []teamsFact `json:"facts,omitempty"`
	Markdown      bool        `json:"markdown"`
}

type teamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Notify sends a summary to Teams as a MessageCard.
func (t *TeamsNotifier) Notify(summary *RunSummary) error {
	color := "2E9E5B"
	title := "All tests passed!"

	switch {
	case summary.FailedTests > 0:
		color = "D64545"
		title = fmt.Sprintf("%d test(s) failed", summary.FailedTests)
	case summary.IsRecovery:
		title = "Tests recovered!"
	}
	if summary.Incomplete {
		color = "D6A545"
		title += " (run incomplete, deadline hit)"
	}

	facts := []teamsFact{
		{Name: "Total Tests", Value: fmt.Sprintf("%d", summary.TotalTests)},
		{Name: "Passed", Value: fmt.Sprintf("%d", summary.PassedTests)},
		{Name: "Failed", Value: fmt.Sprintf("%d", summary.FailedTests)},
		{Name: "Duration", Value: summary.Duration.Round(time.Millisecond).String()},
	}
	if summary.Environment != "" {
		facts = append(facts, teamsFact{Name: "Environment", Value: summary.Environment})
	}

	var text string
	for _, ft := range summary.Failed {
		text += fmt.Sprintf("- **%s**", ft.Name)
		if ft.Suite != "" {
			text += fmt.Sprintf(" (%s)", ft.Suite)
		}
		if ft.Error != "" {
			text += ": " + ft.Error
		}
		text += "\n"
	}

	msg := teamsMessage{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		ThemeColor: color,
		Summary:    title,
		Sections: []teamsSection{{
			ActivityTitle: title,
			Text:          text,
			Facts:         facts,
			Markdown:      true,
		}},
	}
	return t.send(msg)
}

func (t *TeamsNotifier) send(msg teamsMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling teams message: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, t.webhookURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating teams request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending teams notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("teams API returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
