package llm

import (
	"context"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider wraps github.com/sashabaranov/go-openai, grounded in the
// same client-construction-plus-retry shape as the teacher's cursor.Client:
// one concrete HTTP client, retried with exponential backoff, failures
// wrapped in a provider-tagged error.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	return &OpenAIProvider{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return out
}

func (p *OpenAIProvider) CallLLM(ctx context.Context, messages []Message, opts CallOptions) (CallResult, error) {
	model := opts.Model
	if model == "" {
		model = p.model
	}

	var result CallResult
	call := func() error {
		resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       model,
			Messages:    toOpenAIMessages(messages),
			MaxTokens:   opts.MaxTokens,
			Temperature: float32(opts.Temperature),
		})
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(&LLMError{Provider: p.Name(), Err: errEmptyCompletion})
		}
		choice := resp.Choices[0]
		result = CallResult{
			Content:          choice.Message.Content,
			FinishReason:     string(choice.FinishReason),
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		}
		for _, tc := range choice.Message.ToolCalls {
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		return nil
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries)
	if err := backoff.Retry(call, bo); err != nil {
		return CallResult{}, &LLMError{Provider: p.Name(), Err: err}
	}
	return result, nil
}

func (p *OpenAIProvider) StreamLLM(ctx context.Context, messages []Message, opts CallOptions, sink func(StreamChunk)) error {
	model := opts.Model
	if model == "" {
		model = p.model
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAIMessages(messages),
		MaxTokens:   opts.MaxTokens,
		Temperature: float32(opts.Temperature),
		Stream:      true,
	})
	if err != nil {
		return &LLMError{Provider: p.Name(), Err: err}
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if err != nil {
			if err.Error() == "EOF" {
				sink(StreamChunk{Type: ChunkDone})
				return nil
			}
			sink(StreamChunk{Type: ChunkError, Err: err})
			return &LLMError{Provider: p.Name(), Err: err}
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta != "" {
			sink(StreamChunk{Type: ChunkContent, Content: delta})
		}
	}
}

var errEmptyCompletion = completionError("provider returned no choices")

type completionError string

func (e completionError) Error() string { return string(e) }
