// Package jira converts a finished BRD document into a typed project payload
// and creates the project on the remote tool server. The conversion runs
// through a forced-tool-call chain; a line-based parser covers documents the
// model cannot handle.
package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/tbxark/brdagent/retry"
	"github.com/tbxark/brdagent/structured"
)

const createProjectTool = "create_jira_project"

type Story struct {
	Title       string `json:"title" jsonschema:"description=Short story title"`
	Description string `json:"description,omitempty" jsonschema:"description=Optional story description"`
}

type Epic struct {
	Title       string  `json:"title" jsonschema:"description=Short epic title"`
	Description string  `json:"description,omitempty" jsonschema:"description=Optional epic description"`
	Stories     []Story `json:"stories" jsonschema:"description=Stories belonging to this epic"`
}

// Payload is the argument shape of the remote create_jira_project tool.
type Payload struct {
	ProjectKey  string `json:"projectKey" jsonschema:"description=Jira project key"`
	Name        string `json:"name,omitempty" jsonschema:"description=Optional project name"`
	Description string `json:"description,omitempty" jsonschema:"description=Optional project description"`
	Epics       []Epic `json:"epics" jsonschema:"description=Epics with their stories"`
}

// Response is what the remote tool reports after creating the project.
type Response struct {
	Success        bool     `json:"success"`
	BoardURL       string   `json:"boardUrl,omitempty"`
	EpicsCreated   []string `json:"epicsCreated,omitempty"`
	StoriesCreated []string `json:"storiesCreated,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// Gateway is the slice of the tool-invocation client this package needs.
type Gateway interface {
	CallTool(ctx context.Context, userID, name string, args map[string]any) (json.RawMessage, error)
}

type payloadInput struct {
	Content    string
	ProjectKey string
}

// Generator builds Jira payloads from BRD markdown.
type Generator struct {
	chain *structured.Chain[payloadInput, Payload]

	// Retries and Delay tune the backoff around the model call.
	Retries int
	Delay   time.Duration
}

func NewGenerator(chatModel model.ToolCallingChatModel) (*Generator, error) {
	chain, err := structured.NewChain[payloadInput, Payload](
		chatModel,
		buildPayloadPrompt,
		"create_jira_payload",
		"Convert a BRD document into a Jira project payload with epics and stories.",
		model.WithTemperature(0.2),
	)
	if err != nil {
		return nil, fmt.Errorf("build payload chain: %w", err)
	}
	return &Generator{chain: chain, Retries: retry.DefaultRetries, Delay: retry.DefaultDelay}, nil
}

func buildPayloadPrompt(ctx context.Context, input payloadInput) ([]*schema.Message, error) {
	content := fmt.Sprintf(`You are a project management assistant.
Convert the following BRD into a payload for the tool %q.
Group related requirements into epics, and break each epic into small stories.
Use the project key %q.

BRD:
"""
%s
"""`, createProjectTool, input.ProjectKey, input.Content)
	return []*schema.Message{schema.UserMessage(content)}, nil
}

// Payload converts BRD markdown into a project payload. The model call is
// retried with backoff; if it still fails the line-based parser takes over.
func (g *Generator) Payload(ctx context.Context, brdContent, projectKey string) (*Payload, error) {
	payload, err := retry.WithBackoff(ctx, func(ctx context.Context) (*Payload, error) {
		return g.chain.Invoke(ctx, payloadInput{Content: brdContent, ProjectKey: projectKey})
	}, g.Retries, g.Delay)
	if err != nil {
		slog.Warn("payload generation failed, falling back to line parser", "project_key", projectKey, "error", err)
		return ParseBRD(brdContent, projectKey), nil
	}
	payload.ProjectKey = projectKey
	return payload, nil
}

// CreateProject sends the payload through the gateway and decodes the
// creation report.
func CreateProject(ctx context.Context, gateway Gateway, userID string, payload *Payload) (*Response, error) {
	raw, err := sonic.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	var args map[string]any
	if err := sonic.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	result, err := gateway.CallTool(ctx, userID, createProjectTool, args)
	if err != nil {
		return nil, err
	}
	return decodeResponse(result)
}

// decodeResponse handles both framings of the tool result: a content list
// whose first text item carries the report JSON, or the report object
// directly.
func decodeResponse(raw json.RawMessage) (*Response, error) {
	var content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := sonic.Unmarshal(raw, &content); err == nil {
		if len(content) == 0 || content[0].Text == "" {
			return nil, fmt.Errorf("empty tool response")
		}
		var resp Response
		if err := sonic.UnmarshalString(content[0].Text, &resp); err != nil {
			return nil, fmt.Errorf("undecodable creation report: %w", err)
		}
		return &resp, nil
	}
	var resp Response
	if err := sonic.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("undecodable creation report: %w", err)
	}
	return &resp, nil
}

// ParseBRD is the deterministic fallback: it reads "# Epic:" headings and
// "- Story:" bullets from the document.
func ParseBRD(brdContent, projectKey string) *Payload {
	var epics []Epic
	var current *Epic

	for _, line := range strings.Split(brdContent, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "# Epic:"):
			if current != nil {
				epics = append(epics, *current)
			}
			current = &Epic{
				Title:   strings.TrimSpace(strings.TrimPrefix(line, "# Epic:")),
				Stories: []Story{},
			}
		case strings.HasPrefix(line, "- Story:") && current != nil:
			current.Stories = append(current.Stories, Story{
				Title: strings.TrimSpace(strings.TrimPrefix(line, "- Story:")),
			})
		}
	}
	if current != nil {
		epics = append(epics, *current)
	}

	return &Payload{ProjectKey: projectKey, Epics: epics}
}
