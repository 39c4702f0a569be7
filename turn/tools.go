package turn

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"github.com/eino-contrib/jsonschema"
	"github.com/tbxark/brdagent/mcp"
	"github.com/tbxark/brdagent/metadata"
)

const (
	extractToolName = "extract_stage_updates"
	extractToolDesc = "Extract only fields relevant to the current stage from the user's message."
)

// ExtractArgs is the argument shape of the structured-extraction operation.
// Updates may target any stage, not only the active one; cross-stage writes
// are intentional.
type ExtractArgs struct {
	Stage             string            `json:"stage,omitempty" jsonschema:"description=The stage the updates primarily belong to"`
	Updates           metadata.Metadata `json:"updates" jsonschema:"description=Field updates keyed by stage then field name"`
	Narration         string            `json:"narration,omitempty" jsonschema:"description=Short user-facing summary of what was saved"`
	SuggestedNextStep string            `json:"suggested_next_step,omitempty" jsonschema:"description=One-sentence suggestion for what the user should provide next"`
}

func extractToolInfo() (*schema.ToolInfo, error) {
	return utils.GoStruct2ToolInfo[ExtractArgs](extractToolName, extractToolDesc)
}

// remoteToolInfo converts an advertised gateway tool into engine tool info.
// The advertised input schema is already JSON Schema.
func remoteToolInfo(t mcp.Tool) (*schema.ToolInfo, error) {
	js := &jsonschema.Schema{Type: "object"}
	if len(t.InputSchema) > 0 {
		if err := sonic.Unmarshal(t.InputSchema, js); err != nil {
			return nil, fmt.Errorf("decode input schema of tool %s: %w", t.Name, err)
		}
	}
	return &schema.ToolInfo{
		Name:        t.Name,
		Desc:        t.Description,
		ParamsOneOf: schema.NewParamsOneOfByJSONSchema(js),
	}, nil
}
