// Package structured extracts typed values from a chat model by forcing a
// single tool call and decoding its arguments. It is the backbone of every
// deterministic model interaction in this module: stage-field extraction and
// BRD-to-ticket conversion both run through a Chain.
package structured

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
)

// PromptBuilder turns the chain input into the message list sent to the model.
type PromptBuilder[TInput any] func(ctx context.Context, input TInput) ([]*schema.Message, error)

// Chain binds a prompt builder, a chat model, and the single tool whose
// forced invocation yields the typed output.
type Chain[TInput, TOutput any] struct {
	PromptBuilder PromptBuilder[TInput]
	ChatModel     model.ToolCallingChatModel
	ToolInfo      *schema.ToolInfo

	// Options is appended to every Generate/Stream call, after the forced
	// tool choice. Use it for temperature and similar knobs.
	Options []model.Option
}

// NewChain derives the tool schema from the TOutput struct's field tags.
func NewChain[TInput, TOutput any](
	chatModel model.ToolCallingChatModel,
	promptBuilder PromptBuilder[TInput],
	toolName string,
	toolDesc string,
	opts ...model.Option,
) (*Chain[TInput, TOutput], error) {

	toolInfo, err := utils.GoStruct2ToolInfo[TOutput](toolName, toolDesc)
	if err != nil {
		return nil, fmt.Errorf("convert tool info failed: %w", err)
	}
	return NewChainWithToolInfo[TInput, TOutput](chatModel, promptBuilder, toolInfo, opts...), nil
}

// NewChainWithToolInfo accepts an externally built tool schema, for cases
// where the schema is not derivable from a Go struct.
func NewChainWithToolInfo[TInput, TOutput any](
	chatModel model.ToolCallingChatModel,
	promptBuilder PromptBuilder[TInput],
	toolInfo *schema.ToolInfo,
	opts ...model.Option,
) *Chain[TInput, TOutput] {
	return &Chain[TInput, TOutput]{
		PromptBuilder: promptBuilder,
		ChatModel:     chatModel,
		ToolInfo:      toolInfo,
		Options:       opts,
	}
}

func (s *Chain[TInput, TOutput]) callOptions() []model.Option {
	opts := []model.Option{
		model.WithTools([]*schema.ToolInfo{s.ToolInfo}),
		model.WithToolChoice(schema.ToolChoiceForced, s.ToolInfo.Name),
	}
	return append(opts, s.Options...)
}

// Invoke runs the chain once and returns the decoded tool arguments.
func (s *Chain[TInput, TOutput]) Invoke(ctx context.Context, input TInput) (*TOutput, error) {
	messages, err := s.PromptBuilder(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("build prompt failed: %w", err)
	}

	response, err := s.ChatModel.Generate(ctx, messages, s.callOptions()...)
	if err != nil {
		return nil, fmt.Errorf("call model failed: %w", err)
	}
	return decodeToolCall[TOutput](response)
}

// Stream runs the chain and converts each complete message into a decoded
// output value.
func (s *Chain[TInput, TOutput]) Stream(ctx context.Context, input TInput) (*schema.StreamReader[*TOutput], error) {
	messages, err := s.PromptBuilder(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("build prompt failed: %w", err)
	}

	streamReader, err := s.ChatModel.Stream(ctx, messages, s.callOptions()...)
	if err != nil {
		return nil, fmt.Errorf("call model failed: %w", err)
	}

	return schema.StreamReaderWithConvert(streamReader, decodeToolCall[TOutput]), nil
}

func (s *Chain[TInput, TOutput]) GetToolInfo() *schema.ToolInfo {
	return s.ToolInfo
}

func decodeToolCall[TOutput any](msg *schema.Message) (*TOutput, error) {
	if len(msg.ToolCalls) == 0 {
		return nil, fmt.Errorf("no ToolCall found in model response: %s", msg.Content)
	}
	var result TOutput
	if err := sonic.UnmarshalString(msg.ToolCalls[0].Function.Arguments, &result); err != nil {
		return nil, fmt.Errorf("parse ToolCall arguments failed: %w", err)
	}
	return &result, nil
}
