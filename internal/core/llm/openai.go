// Package llm talks to OpenAI-compatible chat completion backends.
//
// Local runtimes (Ollama, LM Studio, vLLM) and hosted providers expose the
// same route but reject different parameter shapes, so every request is
// negotiated across a capability table until the backend accepts one.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/paperchat-ai/paperchat/internal/core"
)

type chatCompletionRequest struct {
	Model               string             `json:"model"`
	Messages            []core.ChatMessage `json:"messages"`
	Stream              bool               `json:"stream,omitempty"`
	MaxTokens           *int               `json:"max_tokens,omitempty"`
	MaxCompletionTokens *int               `json:"max_completion_tokens,omitempty"`
	Temperature         *float64           `json:"temperature,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// OpenAIChatClient implements core.ChatClient against any backend speaking
// the /v1/chat/completions dialect.
type OpenAIChatClient struct {
	baseURL   string
	apiKey    string
	model     string
	provider  string
	paramSets []ParamSet
	http      *http.Client
	log       *zap.Logger
}

var _ core.ChatClient = (*OpenAIChatClient)(nil)

func NewOpenAIChatClient(baseURL, apiKey, model, provider string, log *zap.Logger) *OpenAIChatClient {
	return &OpenAIChatClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		model:     model,
		provider:  provider,
		paramSets: DefaultParamSets(),
		http:      &http.Client{Timeout: 5 * time.Minute},
		log:       log,
	}
}

func (c *OpenAIChatClient) Provider() string { return c.provider }
func (c *OpenAIChatClient) Model() string    { return c.model }

func (c *OpenAIChatClient) buildRequest(messages []core.ChatMessage, maxTokens int, ps ParamSet, stream bool) chatCompletionRequest {
	req := chatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Stream:      stream,
		Temperature: ps.Temperature,
	}
	if ps.UseCompletionTokens {
		req.MaxCompletionTokens = &maxTokens
	} else {
		req.MaxTokens = &maxTokens
	}
	return req
}

// post issues one chat completion request. A nil error means resp is an open
// 2xx response the caller must close. A *HTTPError with a 4xx code signals a
// parameter rejection the negotiation loop may retry with the next shape.
func (c *OpenAIChatClient) post(ctx context.Context, body chatCompletionRequest) (*http.Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(msg)}
	}
	return resp, nil
}

// retriable reports whether the failure looks like a parameter-shape
// rejection worth retrying with the next ParamSet. Network errors and 5xx
// statuses abort negotiation immediately.
func retriable(err error) bool {
	httpErr, ok := err.(*HTTPError)
	return ok && httpErr.StatusCode >= 400 && httpErr.StatusCode < 500
}

// ValidateConnection probes the backend with a tiny completion so callers
// can fail fast before opening a client-facing stream.
func (c *OpenAIChatClient) ValidateConnection(ctx context.Context) error {
	probe := []core.ChatMessage{
		{Role: "system", Content: "Test"},
		{Role: "user", Content: "Hi"},
	}
	var lastErr error
	for _, ps := range c.paramSets {
		resp, err := c.post(ctx, c.buildRequest(probe, 10, ps, false))
		if err == nil {
			resp.Body.Close()
			return nil
		}
		lastErr = err
		if !retriable(err) {
			break
		}
	}
	return &core.ConfigurationError{
		Err: fmt.Errorf("cannot reach model %q at %s: %w", c.model, c.baseURL, lastErr),
	}
}

// StreamChat negotiates a streaming completion and feeds each content delta
// to onDelta. It returns the full accumulated text.
//
// If every parameter shape is rejected before any token arrives, the error
// is a *core.ConfigurationError. If the stream breaks after tokens were
// emitted, the partial text is returned alongside a
// *core.GenerationStreamError; a retry with a different shape would replay
// already-delivered tokens.
func (c *OpenAIChatClient) StreamChat(ctx context.Context, messages []core.ChatMessage, maxTokens int, onDelta func(string)) (string, error) {
	var lastErr error
	for _, ps := range c.paramSets {
		resp, err := c.post(ctx, c.buildRequest(messages, maxTokens, ps, true))
		if err != nil {
			lastErr = err
			if retriable(err) {
				c.log.Debug("chat parameter shape rejected, trying next",
					zap.Bool("max_completion_tokens", ps.UseCompletionTokens),
					zap.Bool("temperature", ps.Temperature != nil),
					zap.Error(err))
				continue
			}
			break
		}

		var full strings.Builder
		streamErr := streamSSE(ctx, resp.Body, func(delta string) {
			full.WriteString(delta)
			onDelta(delta)
		})
		resp.Body.Close()

		if streamErr != nil {
			return full.String(), &core.GenerationStreamError{Err: streamErr}
		}
		return full.String(), nil
	}
	return "", &core.ConfigurationError{
		Err: fmt.Errorf("model %q rejected every supported parameter combination: %w", c.model, lastErr),
	}
}

// Complete runs a non-streaming completion, used for thread titles.
func (c *OpenAIChatClient) Complete(ctx context.Context, messages []core.ChatMessage, maxTokens int) (string, error) {
	var lastErr error
	for _, ps := range c.paramSets {
		resp, err := c.post(ctx, c.buildRequest(messages, maxTokens, ps, false))
		if err != nil {
			lastErr = err
			if retriable(err) {
				continue
			}
			break
		}

		var parsed chatCompletionResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&parsed)
		resp.Body.Close()
		if decodeErr != nil {
			return "", fmt.Errorf("decode chat response: %w", decodeErr)
		}
		if len(parsed.Choices) == 0 {
			return "", fmt.Errorf("chat response had no choices")
		}
		return parsed.Choices[0].Message.Content, nil
	}
	return "", &core.ConfigurationError{
		Err: fmt.Errorf("model %q rejected every supported parameter combination: %w", c.model, lastErr),
	}
}
