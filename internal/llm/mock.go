package llm

import (
	"context"
	"fmt"
	"strings"
)

// MockProvider is a deterministic, always-succeeding backend used in
// DevMode and in tests, grounded in the teacher's pattern of a fake
// cursor.Client built for command-handler tests: same interface, canned
// output, no network.
type MockProvider struct {
	// Responder lets a test override the canned content; nil uses a
	// generic echo of the last user message.
	Responder func(messages []Message, opts CallOptions) string
}

func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) CallLLM(_ context.Context, messages []Message, opts CallOptions) (CallResult, error) {
	content := m.respond(messages, opts)
	return CallResult{
		Content:          content,
		FinishReason:     "stop",
		PromptTokens:     estimateTokens(messages),
		CompletionTokens: estimateTokensForText(content),
	}, nil
}

func (m *MockProvider) StreamLLM(ctx context.Context, messages []Message, opts CallOptions, sink func(StreamChunk)) error {
	content := m.respond(messages, opts)
	for _, word := range strings.Fields(content) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		sink(StreamChunk{Type: ChunkContent, Content: word + " "})
	}
	sink(StreamChunk{Type: ChunkDone})
	return nil
}

func (m *MockProvider) respond(messages []Message, opts CallOptions) string {
	if m.Responder != nil {
		return m.Responder(messages, opts)
	}
	var last string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			last = messages[i].Content
			break
		}
	}
	return fmt.Sprintf("mock response to: %s", truncate(last, 80))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func estimateTokensForText(s string) int {
	return len(strings.Fields(s))
}

func estimateTokens(messages []Message) int {
	total := 0
	for _, msg := range messages {
		total += estimateTokensForText(msg.Content)
	}
	return total
}
