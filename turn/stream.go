package turn

import (
	"context"
	"errors"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/tbxark/brdagent/metadata"
	"github.com/tbxark/brdagent/stage"
)

const genericFailureText = "AI failed to respond. Please try again."

// StreamEvent is one frame of a streamed turn: token chunks first, then a
// completion marker with Done set carrying the resulting stage and metadata.
// A fatal turn failure produces a single frame with Error set.
type StreamEvent struct {
	Token    string             `json:"token,omitempty"`
	Error    string             `json:"error,omitempty"`
	Done     bool               `json:"done,omitempty"`
	Stage    stage.ID           `json:"stage,omitempty"`
	Metadata *metadata.Metadata `json:"metadata,omitempty"`
}

// ProcessStream runs the full turn first (merge and persistence included),
// then streams the assistant text as chunks followed by the completion
// marker. Nothing is emitted before the turn has committed.
func (p *Processor) ProcessStream(ctx context.Context, projectID, userID, userText string) (*schema.StreamReader[*StreamEvent], error) {
	result, err := p.Process(ctx, projectID, userID, userText)
	if err != nil {
		var modelErr *ModelError
		if errors.As(err, &modelErr) {
			return schema.StreamReaderFromArray([]*StreamEvent{{Error: genericFailureText}}), err
		}
		return nil, err
	}

	chunks := tokenChunks(result.AssistantText)
	events := make([]*StreamEvent, 0, len(chunks)+1)
	for _, chunk := range chunks {
		events = append(events, &StreamEvent{Token: chunk})
	}
	events = append(events, &StreamEvent{
		Done:     true,
		Stage:    result.Stage,
		Metadata: result.Metadata,
	})
	return schema.StreamReaderFromArray(events), nil
}

// tokenChunks splits assistant text into word chunks, keeping the trailing
// separator so the concatenation reproduces the original text exactly.
func tokenChunks(text string) []string {
	if text == "" {
		return nil
	}
	return strings.SplitAfter(text, " ")
}
