package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/joescharf/jpa/internal/models"
	"github.com/joescharf/jpa/internal/triage"
)

// DefaultModel is used when anthropic.model is not configured.
const DefaultModel = "claude-sonnet-4-5"

// Action is one suggested remediation step.
type Action struct {
	IssueKey string `json:"issue_key"`
	Kind     string `json:"kind"` // "assign" or "raise_priority"
	Detail   string `json:"detail"`
}

// TriageSummary is the model's remediation plan for a project.
type TriageSummary struct {
	Summary string   `json:"summary"`
	Actions []Action `json:"actions"`
}

// Client wraps the Anthropic API for triage summaries.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if model == "" {
		model = DefaultModel
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// buildPrompt constructs the system and user prompts for a triage summary.
func buildPrompt(projectKey string, issues []*models.Issue, now time.Time) (system string, user string) {
	system = `You help a team lead triage a Jira project. You receive the project's problematic issues: issues with no assignee, and Low or Lowest priority issues whose due date is within a week. Return ONLY a JSON object with these fields:
- "summary": 2-4 sentences describing the state of the project and the most urgent work
- "actions": an array of objects, one per issue that needs action, with:
  - "issue_key": the issue key
  - "kind": one of "assign", "raise_priority"
  - "detail": one short sentence, e.g. which priority to raise to ("Medium" or "High") or why assignment is urgent

Rules:
- An issue with both problems gets two actions
- Order actions by urgency, earliest due date first
- Return valid JSON only, no markdown fencing or explanation`

	var sb strings.Builder
	fmt.Fprintf(&sb, "Project: %s\nToday: %s\n\n", projectKey, now.Format("2006-01-02"))
	if len(issues) == 0 {
		sb.WriteString("There are no problematic issues.\n")
		user = sb.String()
		return
	}

	sb.WriteString("Problematic issues:\n")
	for _, i := range issues {
		fmt.Fprintf(&sb, "- %s %q status=%s priority=%s", i.Key, i.Summary, i.Status, i.Priority.Name)
		if i.DueDate != nil {
			fmt.Fprintf(&sb, " due=%s", i.DueDate.Format("2006-01-02"))
		}
		problems := triage.Default.Problems(i, now)
		kinds := make([]string, len(problems))
		for n, p := range problems {
			kinds[n] = string(p)
		}
		fmt.Fprintf(&sb, " problems=%s\n", strings.Join(kinds, ","))
	}
	user = sb.String()
	return
}

// SummarizeProblems sends the project's problematic issues to the LLM and
// returns a remediation plan.
func (c *Client) SummarizeProblems(ctx context.Context, projectKey string, issues []*models.Issue, now time.Time) (*TriageSummary, error) {
	systemPrompt, userPrompt := buildPrompt(projectKey, issues, now)

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 2048,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}

	if text == "" {
		return nil, fmt.Errorf("no text content in API response")
	}

	return parseSummary(text)
}

func parseSummary(text string) (*TriageSummary, error) {
	text = stripFence(text)

	var summary TriageSummary
	if err := json.Unmarshal([]byte(text), &summary); err != nil {
		return nil, fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}
	return &summary, nil
}

// stripFence removes a surrounding markdown code fence, if present.
func stripFence(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	return text
}
