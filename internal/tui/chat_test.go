package tui

import (
	"fmt"
	"strings"
	"testing"
)

func TestChatRenderPinsToNewestAndScrollsBack(t *testing.T) {
	t.Parallel()

	chat := NewChatModel(0)
	chat.SetViewportHeight(3)
	theme := ResolveTheme("dark")

	for i := 1; i <= 5; i++ {
		chat.Append("user", fmt.Sprintf("m%d", i))
	}

	rendered := chat.Render(80, theme)
	if strings.Contains(rendered, "m1") || strings.Contains(rendered, "m2") {
		t.Fatalf("expected view pinned to newest lines, got %q", rendered)
	}
	if !strings.Contains(rendered, "m3") || !strings.Contains(rendered, "m5") {
		t.Fatalf("expected bottom window to include m3..m5, got %q", rendered)
	}

	chat.ScrollUp(2)
	rendered = chat.Render(80, theme)
	if !strings.Contains(rendered, "m1") || !strings.Contains(rendered, "m3") {
		t.Fatalf("expected scrollback window to include m1..m3, got %q", rendered)
	}
	if strings.Contains(rendered, "m5") {
		t.Fatalf("expected scrollback window to exclude m5, got %q", rendered)
	}

	chat.ScrollToBottom()
	rendered = chat.Render(80, theme)
	if !strings.Contains(rendered, "m5") {
		t.Fatalf("expected re-pinned view to include m5, got %q", rendered)
	}
}

func TestChatScrollbackStaysPutWhenNewLinesArrive(t *testing.T) {
	t.Parallel()

	chat := NewChatModel(0)
	chat.SetViewportHeight(2)
	theme := ResolveTheme("dark")

	for i := 1; i <= 4; i++ {
		chat.Append("user", fmt.Sprintf("m%d", i))
	}
	chat.ScrollUp(2)

	chat.Append("assistant", "m5")

	rendered := chat.Render(80, theme)
	if !strings.Contains(rendered, "m1") || !strings.Contains(rendered, "m2") {
		t.Fatalf("expected scrollback to keep showing m1..m2, got %q", rendered)
	}
	if strings.Contains(rendered, "m5") {
		t.Fatalf("expected new output below the scrollback window, got %q", rendered)
	}
}

func TestChatAppendStreamingMarksTail(t *testing.T) {
	t.Parallel()

	chat := NewChatModel(0)
	chat.Append("user", "hello")
	chat.AppendStreaming("partial rep")
	chat.AppendStreaming("   ")

	entries := chat.Entries()
	if len(entries) != 2 {
		t.Fatalf("Entries() len = %d, want 2", len(entries))
	}
	if entries[0].Streaming {
		t.Fatal("finished entry must not be marked streaming")
	}
	tail := entries[1]
	if !tail.Streaming || tail.Role != "assistant" || tail.Content != "partial rep" {
		t.Fatalf("streaming tail = %+v, want assistant/partial rep", tail)
	}
}

func TestChatRetentionDropsOldestEntries(t *testing.T) {
	t.Parallel()

	chat := NewChatModel(3)
	for i := 1; i <= 5; i++ {
		chat.Append("user", fmt.Sprintf("m%d", i))
	}

	entries := chat.Entries()
	if len(entries) != 3 {
		t.Fatalf("Entries() len = %d, want 3", len(entries))
	}
	if entries[0].Content != "m3" || entries[2].Content != "m5" {
		t.Fatalf("expected m3..m5 retained, got %+v", entries)
	}
}
