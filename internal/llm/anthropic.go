package llm

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"
)

// AnthropicProvider wraps github.com/anthropics/anthropic-sdk-go. No repo in
// the retrieval pack calls this SDK directly (it only appears as a
// provider-name string in fixture tables), so the call shape here follows
// the SDK's own documented client/option/Messages.New idiom rather than a
// pack-observed one; see DESIGN.md.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func splitSystem(messages []Message) (system string, rest []Message) {
	for _, m := range messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}

func toAnthropicMessages(messages []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}

func (p *AnthropicProvider) CallLLM(ctx context.Context, messages []Message, opts CallOptions) (CallResult, error) {
	model := opts.Model
	if model == "" {
		model = p.model
	}
	maxTokens := int64(opts.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	system, rest := splitSystem(messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  toAnthropicMessages(rest),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	var result CallResult
	call := func() error {
		msg, err := p.client.Messages.New(ctx, params)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		var content string
		for _, block := range msg.Content {
			if block.Type == "text" {
				content += block.Text
			}
		}
		result = CallResult{
			Content:          content,
			FinishReason:     string(msg.StopReason),
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
		}
		return nil
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries)
	if err := backoff.Retry(call, bo); err != nil {
		return CallResult{}, &LLMError{Provider: p.Name(), Err: err}
	}
	return result, nil
}

func (p *AnthropicProvider) StreamLLM(ctx context.Context, messages []Message, opts CallOptions, sink func(StreamChunk)) error {
	model := opts.Model
	if model == "" {
		model = p.model
	}
	maxTokens := int64(opts.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	system, rest := splitSystem(messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  toAnthropicMessages(rest),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	stream := p.client.Messages.NewStreaming(ctx, params)
	for stream.Next() {
		event := stream.Current()
		switch delta := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if delta.Delta.Text != "" {
				sink(StreamChunk{Type: ChunkContent, Content: delta.Delta.Text})
			}
		}
	}
	if err := stream.Err(); err != nil {
		sink(StreamChunk{Type: ChunkError, Err: err})
		return &LLMError{Provider: p.Name(), Err: err}
	}
	sink(StreamChunk{Type: ChunkDone})
	return nil
}
