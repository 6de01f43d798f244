// Package openai provides a runtime adapter backed by the OpenAI Chat
// Completions API, including streaming.
package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"

	"github.com/hupe1980/agentforge/core"
)

// Options configure the OpenAI runtime adapter. Fields mirror a subset of
// Chat Completion parameters intentionally kept minimal; extend via
// functional options without breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64

	// Per-1K-token prices used to report cost_usd per execution.
	InputCostPer1K  float64
	OutputCostPer1K float64
}

// Adapter wraps the OpenAI Chat Completions API behind core.RuntimeAdapter.
type Adapter struct {
	client *openai.Client
	opts   Options
}

// New creates a new OpenAI adapter using the official client.
func New(optFns ...func(o *Options)) *Adapter {
	client := openai.NewClient()
	return NewFromClient(&client, optFns...)
}

// NewFromClient creates a new OpenAI adapter from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Adapter {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
		InputCostPer1K:      0.00015,
		OutputCostPer1K:     0.0006,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Adapter{client: client, opts: opts}
}

// Factory returns a core.RuntimeFactory for registration under a runtime
// name. The per-agent config may override "model".
func Factory(optFns ...func(o *Options)) core.RuntimeFactory {
	return func(config map[string]any) (core.RuntimeAdapter, error) {
		fns := append([]func(o *Options){}, optFns...)
		if model, ok := config["model"].(string); ok && model != "" {
			fns = append(fns, func(o *Options) { o.Model = model })
		}
		return New(fns...), nil
	}
}

// Execute implements core.RuntimeAdapter.
func (a *Adapter) Execute(ctx context.Context, req core.Request) (*core.ExecutionResult, error) {
	if req.Limits.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Limits.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := a.client.Chat.Completions.New(ctx, a.buildParams(req))
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai response contained no choices")
	}

	tokensIn := int(resp.Usage.PromptTokens)
	tokensOut := int(resp.Usage.CompletionTokens)

	return &core.ExecutionResult{
		Text:      resp.Choices[0].Message.Content,
		CostUSD:   a.cost(tokensIn, tokensOut),
		TurnsUsed: 1,
		Duration:  time.Since(start),
		Model:     resp.Model,
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
	}, nil
}

// Stream implements core.RuntimeAdapter using the Chat Completions streaming
// API. Text deltas are forwarded as they arrive; a done marker closes the
// stream.
func (a *Adapter) Stream(ctx context.Context, req core.Request) (<-chan core.StreamChunk, <-chan error) {
	chunks := make(chan core.StreamChunk, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errCh)

		streamCtx := ctx
		if req.Limits.Timeout > 0 {
			var cancel context.CancelFunc
			streamCtx, cancel = context.WithTimeout(ctx, req.Limits.Timeout)
			defer cancel()
		}

		stream := a.client.Chat.Completions.NewStreaming(streamCtx, a.buildParams(req))
		for stream.Next() {
			ck := stream.Current()
			for _, ch := range ck.Choices {
				if ch.Delta.Content != "" {
					select {
					case <-streamCtx.Done():
						errCh <- streamCtx.Err()
						return
					case chunks <- core.StreamChunk{Type: "text", Text: ch.Delta.Content}:
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			errCh <- fmt.Errorf("openai streaming error: %w", err)
			return
		}
		chunks <- core.StreamChunk{Type: "done"}
	}()

	return chunks, errCh
}

// Shutdown implements core.RuntimeAdapter. The underlying HTTP client holds
// no long-lived resources.
func (a *Adapter) Shutdown(context.Context) error { return nil }

func (a *Adapter) buildParams(req core.Request) openai.ChatCompletionNewParams {
	var messages []openai.ChatCompletionMessageParamUnion
	if instruction := strings.TrimSpace(req.Instruction); instruction != "" {
		messages = append(messages, openai.SystemMessage(instruction))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	return openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               a.opts.Model,
		Temperature:         openai.Float(a.opts.Temperature),
		MaxCompletionTokens: openai.Int(a.opts.MaxCompletionTokens),
	}
}

func (a *Adapter) cost(tokensIn, tokensOut int) float64 {
	return float64(tokensIn)/1000*a.opts.InputCostPer1K + float64(tokensOut)/1000*a.opts.OutputCostPer1K
}
