package anthropicprovider

import anthropic "github.com/anthropics/anthropic-sdk-go"
import "parley/internal/model"

// applyStartUsage maps message_start usage counters to canonical usage fields.
func applyStartUsage(dst *model.Usage, usage anthropic.Usage) {
	dst.InputTokens = int(usage.InputTokens)
	dst.OutputTokens = int(usage.OutputTokens)
	dst.CacheReadTokens = int(usage.CacheReadInputTokens)
	dst.CacheWriteTokens = int(usage.CacheCreationInputTokens)
}

// applyDeltaUsage maps message_delta usage counters to canonical usage fields.
func applyDeltaUsage(dst *model.Usage, usage anthropic.MessageDeltaUsage) {
	dst.InputTokens = int(usage.InputTokens)
	dst.OutputTokens = int(usage.OutputTokens)
	dst.CacheReadTokens = int(usage.CacheReadInputTokens)
	dst.CacheWriteTokens = int(usage.CacheCreationInputTokens)
}
