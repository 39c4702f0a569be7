package turn

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/schema"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/tbxark/brdagent/metadata"
	"github.com/tbxark/brdagent/stage"
	"github.com/tbxark/brdagent/store"
)

const systemPrompt = `You are a helpful requirements assistant helping collect structured metadata. Never call tools when you are making a suggestion. If the user provides clear metadata (e.g., "the target audience is ..."), you must both (a) acknowledge it conversationally AND (b) immediately call the tool with the structured data.
If the user asks you to suggest on their behalf (e.g., "I don't know, can you suggest?"), only propose ideas in natural language and wait for confirmation. Call the tool only after the user confirms.
- Keep answers conversational and natural at all times.
- Always provide a response in natural language, even if you also call a tool to extract structured updates.
- When the user provides information, summarize or reiterate it in a human-friendly way, possibly improving phrasing.
- Ask about only one missing field at a time in plain English.
- Never output raw metadata keys; describe them in user-friendly terms.
- If the user says they don't know a field, optionally provide insights or suggestions.
- When some fields are missing, respond with a summary of what's already saved and a clear list of what's missing.
When the user asks you to decide or fill in a field on their behalf:
- Propose a thoughtful suggestion based on the context.
- Do NOT immediately save to metadata.
- Instead, ask the user to confirm: "Does this work for you?".
- If the user confirms (e.g., "yes", "that works"), then call the tool to save it.
- If the user edits or changes it, update your suggestion and then call the tool.`

const verbalizeSystemPrompt = `You are a helpful requirements assistant. Summarize the result of an operation you just performed for the user in one or two friendly sentences. Never show raw JSON, identifiers, or internal field names.`

// buildMessages assembles the primary completion input: fixed instructions,
// the recent history in chronological order, and a synthetic user message
// carrying the turn context. History arrives newest-first from the store.
func buildMessages(st *store.ProjectState, missing []string, history []store.Message, userText string) ([]*schema.Message, error) {
	messages := make([]*schema.Message, 0, len(history)+2)
	messages = append(messages, schema.SystemMessage(systemPrompt))
	for i := len(history) - 1; i >= 0; i-- {
		msg := history[i]
		switch msg.Role {
		case "assistant":
			messages = append(messages, &schema.Message{Role: schema.Assistant, Content: msg.Content})
		default:
			messages = append(messages, &schema.Message{Role: schema.User, Content: msg.Content})
		}
	}

	metaJSON, err := sonic.MarshalString(st.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata snapshot: %w", err)
	}
	sections := []string{
		fmt.Sprintf("Current stage: %s", st.Stage),
	}
	if s := formatMissingSection(missing); s != "" {
		sections = append(sections, s)
	}
	sections = append(sections,
		fmt.Sprintf("Current metadata (JSON): %s", metaJSON),
		fmt.Sprintf("User says: %q", userText),
	)
	messages = append(messages, schema.UserMessage(strings.Join(sections, "\n")))
	return messages, nil
}

func formatMissingSection(missing []string) string {
	if len(missing) == 0 {
		return ""
	}
	var buf strings.Builder
	buf.WriteString("Missing required fields:\n")
	table := tablewriter.NewTable(&buf, tablewriter.WithRenderer(renderer.NewMarkdown()))
	table.Header("Field", "Path")
	for _, p := range missing {
		_ = table.Append(stage.FieldName(p), p)
	}
	_ = table.Render()
	return buf.String()
}

func verbalizeMessages(toolName string, result []byte) []*schema.Message {
	return []*schema.Message{
		schema.SystemMessage(verbalizeSystemPrompt),
		schema.UserMessage(fmt.Sprintf("The operation %q returned:\n%s", toolName, result)),
	}
}

// savedSummary builds the confirmation line for an extraction that carried
// no narration, listing each saved field with its value.
func savedSummary(updates *metadata.Metadata) string {
	if updates == nil {
		return ""
	}
	var lines []string
	for _, path := range metadata.AllFieldPaths() {
		if v, ok := metadata.Get(updates, path); ok {
			lines = append(lines, fmt.Sprintf("• %s: %v", stage.FieldName(path), v))
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return "Got it — I've saved the following:\n" + strings.Join(lines, "\n")
}
