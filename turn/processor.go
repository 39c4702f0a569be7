// Package turn runs one conversation turn: it drives a single completion
// exchange over the stage context, executes requested remote tools through
// the gateway, merges extracted field updates, and decides the stage
// transition and the assistant's reply.
package turn

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/tbxark/brdagent/mcp"
	"github.com/tbxark/brdagent/metadata"
	"github.com/tbxark/brdagent/stage"
	"github.com/tbxark/brdagent/store"
)

const (
	historyWindow      = 5
	defaultTemperature = 0.2

	brdReadyPrompt  = "All sections are complete. I can generate your BRD now. Would you like me to proceed?"
	allCompleteText = "All sections are complete."
)

// Gateway is the slice of the tool-invocation client the processor needs.
// *mcp.Client satisfies it.
type Gateway interface {
	ListTools(ctx context.Context, userID string) ([]mcp.Tool, error)
	CallTool(ctx context.Context, userID, name string, args map[string]any) (json.RawMessage, error)
}

// Result is the outcome of one turn.
type Result struct {
	AssistantText string             `json:"assistant_text"`
	Stage         stage.ID           `json:"stage"`
	Metadata      *metadata.Metadata `json:"metadata"`
}

// Processor executes turns. Turns for different projects may run
// concurrently; each turn is one sequential pipeline.
type Processor struct {
	engine      model.ToolCallingChatModel
	states      store.StateStore
	messages    store.MessageStore
	gateway     Gateway
	extract     *schema.ToolInfo
	temperature float32
}

func NewProcessor(
	engine model.ToolCallingChatModel,
	states store.StateStore,
	messages store.MessageStore,
	gateway Gateway,
) (*Processor, error) {
	info, err := extractToolInfo()
	if err != nil {
		return nil, fmt.Errorf("build extraction tool info: %w", err)
	}
	return &Processor{
		engine:      engine,
		states:      states,
		messages:    messages,
		gateway:     gateway,
		extract:     info,
		temperature: defaultTemperature,
	}, nil
}

// Process runs one turn for the project. userID scopes remote tool calls.
func (p *Processor) Process(ctx context.Context, projectID, userID, userText string) (*Result, error) {
	state, err := p.states.Get(ctx, projectID)
	if err != nil {
		return nil, &PersistenceError{Op: "load project state", Err: err}
	}
	def := stage.Lookup(state.Stage)
	missing := metadata.MissingPaths(state.Metadata, def.Required)

	history, err := p.messages.Recent(ctx, projectID, historyWindow)
	if err != nil {
		slog.Warn("history lookup failed, continuing without it", "project_id", projectID, "error", err)
		history = nil
	}
	if _, err := p.messages.Add(ctx, projectID, "user", userText); err != nil {
		slog.Warn("failed to record user message", "project_id", projectID, "error", err)
	}

	messages, err := buildMessages(state, missing, history, userText)
	if err != nil {
		return nil, &ModelError{Err: err}
	}

	response, err := p.engine.Generate(ctx, messages,
		model.WithTools(p.toolMenu(ctx, userID)),
		model.WithTemperature(p.temperature),
	)
	if err != nil {
		return nil, &ModelError{Err: err}
	}

	extracted, narrations, err := p.executeToolCalls(ctx, userID, response.ToolCalls)
	if err != nil {
		return nil, err
	}

	newMeta := state.Metadata
	if extracted != nil {
		newMeta, err = metadata.Merge(state.Metadata, &extracted.Updates)
		if err != nil {
			return nil, &ModelError{Err: fmt.Errorf("merge extracted updates: %w", err)}
		}
	}

	// Recomputed exactly once, so a turn can advance at most one stage even
	// when the merged metadata already satisfies the next stage too. A turn
	// with no extraction recomputes against unchanged metadata on purpose.
	remaining := metadata.MissingPaths(newMeta, def.Required)

	nextStage := def.ID
	prose := strings.TrimSpace(response.Content)
	var assistantText string
	switch {
	case len(remaining) == 0 && def.Next != "":
		nextStage = def.Next
		if stage.Lookup(def.Next).Terminal() {
			assistantText = brdReadyPrompt
		} else {
			assistantText = fmt.Sprintf("Great—%s is complete. Moving to %s.", def.ID, nextStage)
		}
	case len(remaining) == 0:
		assistantText = prose
		if assistantText == "" {
			assistantText = allCompleteText
		}
	default:
		assistantText = p.questionFor(prose, extracted, remaining)
	}

	for _, n := range narrations {
		assistantText = assistantText + "\n\n" + n
	}

	persisted, err := p.states.Upsert(ctx, &store.ProjectState{
		ProjectID:         projectID,
		Stage:             nextStage,
		Metadata:          newMeta,
		Completed:         stage.Lookup(nextStage).Terminal(),
		PendingField:      state.PendingField,
		PendingSuggestion: state.PendingSuggestion,
	})
	if err != nil {
		return nil, &PersistenceError{Op: "persist project state", Err: err}
	}
	if _, err := p.messages.Add(ctx, projectID, "assistant", assistantText); err != nil {
		slog.Warn("failed to record assistant message", "project_id", projectID, "error", err)
	}

	return &Result{
		AssistantText: assistantText,
		Stage:         persisted.Stage,
		Metadata:      persisted.Metadata,
	}, nil
}

// toolMenu is the fixed callable menu: the extraction operation plus every
// tool currently advertised by the gateway. A failed catalog lookup degrades
// to extraction-only rather than failing the turn.
func (p *Processor) toolMenu(ctx context.Context, userID string) []*schema.ToolInfo {
	menu := []*schema.ToolInfo{p.extract}
	if p.gateway == nil || userID == "" {
		return menu
	}
	tools, err := p.gateway.ListTools(ctx, userID)
	if err != nil {
		slog.Error("remote tool catalog unavailable", "user_id", userID, "error", err)
		return menu
	}
	for _, t := range tools {
		info, err := remoteToolInfo(t)
		if err != nil {
			slog.Error("skipping remote tool with undecodable schema", "tool", t.Name, "error", err)
			continue
		}
		menu = append(menu, info)
	}
	return menu
}

// executeToolCalls walks the requested invocations sequentially. The first
// extraction call wins; each successful remote call gets one bounded
// verbalization pass and failed remote calls are logged and skipped.
func (p *Processor) executeToolCalls(ctx context.Context, userID string, calls []schema.ToolCall) (*ExtractArgs, []string, error) {
	var extracted *ExtractArgs
	var narrations []string
	for _, call := range calls {
		if call.Function.Name == extractToolName {
			if extracted != nil {
				continue
			}
			var args ExtractArgs
			if err := sonic.UnmarshalString(call.Function.Arguments, &args); err != nil {
				return nil, nil, &ModelError{Err: fmt.Errorf("malformed extraction arguments: %w", err)}
			}
			extracted = &args
			continue
		}

		if p.gateway == nil {
			slog.Error("remote tool requested without a gateway", "tool", call.Function.Name)
			continue
		}
		var args map[string]any
		if call.Function.Arguments != "" {
			if err := sonic.UnmarshalString(call.Function.Arguments, &args); err != nil {
				slog.Error("malformed remote tool arguments", "tool", call.Function.Name, "error", err)
				continue
			}
		}
		result, err := p.gateway.CallTool(ctx, userID, call.Function.Name, args)
		if err != nil {
			slog.Error("remote tool call failed", "tool", call.Function.Name, "error", err)
			continue
		}
		if n := p.verbalize(ctx, call.Function.Name, result); n != "" {
			narrations = append(narrations, n)
		}
	}
	return extracted, narrations, nil
}

// verbalize turns a raw tool result into user-facing prose with one bounded
// completion pass. No tool menu is offered; a failure only costs narration.
func (p *Processor) verbalize(ctx context.Context, toolName string, result []byte) string {
	response, err := p.engine.Generate(ctx, verbalizeMessages(toolName, result),
		model.WithTemperature(p.temperature),
	)
	if err != nil {
		slog.Error("verbalization failed, omitting narration", "tool", toolName, "error", err)
		return ""
	}
	return strings.TrimSpace(response.Content)
}

// questionFor picks the reply when required fields remain, in priority
// order: engine prose, extraction narration, extraction next-step, saved
// summary, then the deterministic fallback question.
func (p *Processor) questionFor(prose string, extracted *ExtractArgs, remaining []string) string {
	if prose != "" {
		return prose
	}
	if extracted != nil {
		if s := strings.TrimSpace(extracted.Narration); s != "" {
			return s
		}
		if s := strings.TrimSpace(extracted.SuggestedNextStep); s != "" {
			return s
		}
		if s := savedSummary(&extracted.Updates); s != "" {
			return s
		}
	}
	return fmt.Sprintf("Thanks! Next, could you share %s?", stage.FieldName(remaining[0]))
}
