package anthropicprovider

import (
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"

	"parley/internal/gateway"
	"parley/internal/model"
)

// defaultMaxTokens is used when callers do not provide an explicit token budget.
const defaultMaxTokens = 1024

// mapStopReason maps Anthropic stop reasons to canonical provider-agnostic values.
func mapStopReason(reason string) (model.StopReason, error) {
	switch reason {
	case "end_turn", "stop_sequence", "pause_turn":
		return model.StopReasonStop, nil
	case "max_tokens":
		return model.StopReasonLength, nil
	case "refusal", "sensitive":
		return model.StopReasonError, nil
	default:
		return "", fmt.Errorf("unhandled stop reason: %s", reason)
	}
}

// toAnthropicSDKParams validates and converts a canonical request into SDK params.
func toAnthropicSDKParams(req *model.Request) (anthropic.MessageNewParams, error) {
	if req == nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("%w: request is nil", model.ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Model) == "" {
		return anthropic.MessageNewParams{}, fmt.Errorf("%w: model is required", model.ErrInvalidRequest)
	}

	messages, err := toSDKMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}
	if len(messages) == 0 {
		return anthropic.MessageNewParams{}, fmt.Errorf("%w: no sendable messages", model.ErrInvalidRequest)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}

	if strings.TrimSpace(req.System) != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	return params, nil
}

// toSDKMessages converts conversation turns into Anthropic SDK messages.
func toSDKMessages(turns []gateway.Turn) ([]anthropic.MessageParam, error) {
	out := make([]anthropic.MessageParam, 0, len(turns))

	for _, turn := range turns {
		blocks := toSDKTextBlocks(turn.Content)
		if len(blocks) == 0 {
			continue
		}
		switch turn.Role {
		case gateway.RoleUser:
			out = append(out, anthropic.NewUserMessage(blocks...))
		case gateway.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		default:
			return nil, fmt.Errorf("%w: unsupported role %q", model.ErrInvalidRequest, turn.Role)
		}
	}

	return out, nil
}

// toSDKTextBlocks keeps only non-empty text blocks supported by this integration.
func toSDKTextBlocks(content []gateway.ContentBlock) []anthropic.ContentBlockParamUnion {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(content))
	for _, item := range content {
		if item.Type != gateway.ContentTypeText {
			continue
		}
		if item.Text == "" {
			continue
		}
		blocks = append(blocks, anthropic.NewTextBlock(item.Text))
	}
	return blocks
}
