// Package anthropic provides a runtime adapter backed by the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hupe1980/agentforge/core"
)

// Options configures the Anthropic runtime adapter (model id, temperature,
// max tokens, API key, token pricing). Extend via functional options to
// preserve stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string

	// Per-1K-token prices used to report cost_usd per execution.
	InputCostPer1K  float64
	OutputCostPer1K float64
}

// Adapter wraps the Anthropic Messages API behind core.RuntimeAdapter.
type Adapter struct {
	client *anthropic.Client
	opts   Options
}

// New creates a new Anthropic adapter using the official client.
func New(optFns ...func(o *Options)) *Adapter {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Adapter{client: &client, opts: opts}
}

// NewFromClient creates a new Anthropic adapter from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Adapter {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Adapter{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:           anthropic.ModelClaude3_5Sonnet20241022,
		Temperature:     0.7,
		MaxTokens:       4096,
		InputCostPer1K:  0.003,
		OutputCostPer1K: 0.015,
	}
}

// Factory returns a core.RuntimeFactory for registration under a runtime
// name. The per-agent config may override "model" and "api_key".
func Factory(optFns ...func(o *Options)) core.RuntimeFactory {
	return func(config map[string]any) (core.RuntimeAdapter, error) {
		fns := append([]func(o *Options){}, optFns...)
		if model, ok := config["model"].(string); ok && model != "" {
			fns = append(fns, func(o *Options) { o.Model = anthropic.Model(model) })
		}
		if key, ok := config["api_key"].(string); ok && key != "" {
			fns = append(fns, func(o *Options) { o.APIKey = key })
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

	params := a.buildParams(req)

	start := time.Now()
	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.AsText().Text
		}
	}

	tokensIn := int(resp.Usage.InputTokens)
	tokensOut := int(resp.Usage.OutputTokens)

	return &core.ExecutionResult{
		Text:      text,
		CostUSD:   a.cost(tokensIn, tokensOut),
		TurnsUsed: 1,
		Duration:  time.Since(start),
		Model:     string(resp.Model),
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
	}, nil
}

// Stream implements core.RuntimeAdapter. The Messages streaming API is not
// wired yet; it wraps Execute and emits the full text as a single chunk.
func (a *Adapter) Stream(ctx context.Context, req core.Request) (<-chan core.StreamChunk, <-chan error) {
	chunks := make(chan core.StreamChunk, 2)
	errCh := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errCh)

		result, err := a.Execute(ctx, req)
		if err != nil {
			errCh <- err
			return
		}
		chunks <- core.StreamChunk{Type: "text", Text: result.Text}
		chunks <- core.StreamChunk{Type: "done"}
	}()

	return chunks, errCh
}

// Shutdown implements core.RuntimeAdapter. The underlying HTTP client holds
// no long-lived resources.
func (a *Adapter) Shutdown(context.Context) error { return nil }

func (a *Adapter) buildParams(req core.Request) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:       a.opts.Model,
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt))},
		MaxTokens:   a.opts.MaxTokens,
		Temperature: anthropic.Float(a.opts.Temperature),
	}

	if req.Instruction != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.Instruction}}
	}

	return params
}

func (a *Adapter) cost(tokensIn, tokensOut int) float64 {
	return float64(tokensIn)/1000*a.opts.InputCostPer1K + float64(tokensOut)/1000*a.opts.OutputCostPer1K
}
