package gateway

import "strings"

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContentType identifies content block variants.
type ContentType string

const (
	ContentTypeText ContentType = "text"
)

// ContentBlock is one canonical content unit of a turn. v0.1 supports text only.
type ContentBlock struct {
	Type ContentType `json:"type"`
	Text string      `json:"text,omitempty"`
}

// Turn is one conversation entry as exchanged with the gateway.
type Turn struct {
	Role      Role           `json:"role"`
	Content   []ContentBlock `json:"content,omitempty"`
	Timestamp int64          `json:"timestamp,omitempty"`
}

// TextTurn builds a turn with a single text block.
func TextTurn(role Role, text string) Turn {
	return Turn{
		Role: role,
		Content: []ContentBlock{{
			Type: ContentTypeText,
			Text: text,
		}},
	}
}

// TurnText joins the non-empty text blocks of a turn.
func TurnText(turn Turn) string {
	parts := make([]string, 0, len(turn.Content))
	for _, block := range turn.Content {
		if block.Type != ContentTypeText {
			continue
		}
		if text := strings.TrimSpace(block.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}

// CloneTurns returns a deep copy safe to hand across goroutines.
func CloneTurns(turns []Turn) []Turn {
	if len(turns) == 0 {
		return nil
	}
	out := make([]Turn, 0, len(turns))
	for _, turn := range turns {
		copyTurn := turn
		copyTurn.Content = append([]ContentBlock(nil), turn.Content...)
		out = append(out, copyTurn)
	}
	return out
}
