package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/paperchat-ai/paperchat/internal/core"
)

// legacyBackend mimics a server that only understands max_tokens and rejects
// max_completion_tokens, forcing negotiation to walk the parameter table.
func legacyBackend(t *testing.T, streamTokens []string) (*httptest.Server, *[]map[string]any) {
	t.Helper()
	var seen []map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		seen = append(seen, body)

		if _, has := body["max_completion_tokens"]; has {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"unknown parameter: max_completion_tokens"}`)
			return
		}

		if stream, _ := body["stream"].(bool); stream {
			w.Header().Set("Content-Type", "text/event-stream")
			for _, tok := range streamTokens {
				chunk := map[string]any{
					"choices": []map[string]any{{"delta": map[string]any{"content": tok}}},
				}
				raw, _ := json.Marshal(chunk)
				fmt.Fprintf(w, "data: %s\n\n", raw)
			}
			fmt.Fprint(w, "data: [DONE]\n\n")
			return
		}

		resp := map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": "Short Title Here"}}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	return srv, &seen
}

func TestStreamChatNegotiatesDownToMaxTokens(t *testing.T) {
	srv, seen := legacyBackend(t, []string{"Hello", " world"})
	defer srv.Close()

	client := NewOpenAIChatClient(srv.URL, "key", "test-model", "test", zap.NewNop())

	var got []string
	full, err := client.StreamChat(context.Background(),
		[]core.ChatMessage{{Role: "user", Content: "hi"}}, 100,
		func(tok string) { got = append(got, tok) })

	require.NoError(t, err)
	assert.Equal(t, "Hello world", full)
	assert.Equal(t, []string{"Hello", " world"}, got)

	// Two max_completion_tokens attempts rejected, then max_tokens accepted.
	require.GreaterOrEqual(t, len(*seen), 3)
	last := (*seen)[len(*seen)-1]
	_, hasLegacy := last["max_tokens"]
	_, hasNew := last["max_completion_tokens"]
	assert.True(t, hasLegacy)
	assert.False(t, hasNew)
}

// strictBackend accepts nothing but a bare max_tokens request: both
// max_completion_tokens and temperature draw a 400.
func strictBackend(t *testing.T, streamTokens []string) (*httptest.Server, *[]map[string]any) {
	t.Helper()
	var seen []map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		seen = append(seen, body)

		if _, has := body["max_completion_tokens"]; has {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"unknown parameter: max_completion_tokens"}`)
			return
		}
		if _, has := body["temperature"]; has {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"unsupported parameter: temperature"}`)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, tok := range streamTokens {
			chunk := map[string]any{
				"choices": []map[string]any{{"delta": map[string]any{"content": tok}}},
			}
			raw, _ := json.Marshal(chunk)
			fmt.Fprintf(w, "data: %s\n\n", raw)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	return srv, &seen
}

func TestStreamChatNegotiatesPastTemperature(t *testing.T) {
	srv, seen := strictBackend(t, []string{"ok"})
	defer srv.Close()

	client := NewOpenAIChatClient(srv.URL, "key", "test-model", "test", zap.NewNop())

	full, err := client.StreamChat(context.Background(),
		[]core.ChatMessage{{Role: "user", Content: "hi"}}, 100, func(string) {})

	require.NoError(t, err)
	assert.Equal(t, "ok", full)

	// Every combination before {max_tokens, no temperature} is rejected,
	// so all four are attempted in table order.
	require.Len(t, *seen, 4)
	for idx, body := range *seen {
		_, hasNew := body["max_completion_tokens"]
		_, hasTemp := body["temperature"]
		assert.Equal(t, idx < 2, hasNew, "request %d", idx)
		assert.Equal(t, idx%2 == 0, hasTemp, "request %d", idx)
	}
	last := (*seen)[3]
	_, hasLegacy := last["max_tokens"]
	assert.True(t, hasLegacy)
}

func TestStreamChatAllCombosRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"bad params"}`)
	}))
	defer srv.Close()

	client := NewOpenAIChatClient(srv.URL, "key", "test-model", "test", zap.NewNop())

	emitted := 0
	full, err := client.StreamChat(context.Background(),
		[]core.ChatMessage{{Role: "user", Content: "hi"}}, 100,
		func(string) { emitted++ })

	assert.Empty(t, full)
	assert.Zero(t, emitted, "no token may flow when every combination is rejected")
	var cfgErr *core.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestStreamChatServerErrorAbortsNegotiation(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewOpenAIChatClient(srv.URL, "key", "test-model", "test", zap.NewNop())
	_, err := client.StreamChat(context.Background(),
		[]core.ChatMessage{{Role: "user", Content: "hi"}}, 100, func(string) {})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "5xx is not a parameter rejection, stop immediately")
}

func TestValidateConnection(t *testing.T) {
	srv, _ := legacyBackend(t, nil)
	defer srv.Close()

	client := NewOpenAIChatClient(srv.URL, "key", "test-model", "test", zap.NewNop())
	assert.NoError(t, client.ValidateConnection(context.Background()))
}

func TestValidateConnectionUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	srv.Close() // connection refused from here on

	client := NewOpenAIChatClient(srv.URL, "key", "test-model", "test", zap.NewNop())
	err := client.ValidateConnection(context.Background())

	var cfgErr *core.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestCompleteReturnsContent(t *testing.T) {
	srv, _ := legacyBackend(t, nil)
	defer srv.Close()

	client := NewOpenAIChatClient(srv.URL, "key", "test-model", "test", zap.NewNop())
	out, err := client.Complete(context.Background(),
		[]core.ChatMessage{{Role: "user", Content: "title please"}}, 20)

	require.NoError(t, err)
	assert.Equal(t, "Short Title Here", out)
}

func TestDefaultParamSetOrder(t *testing.T) {
	sets := DefaultParamSets()
	require.Len(t, sets, 4)
	assert.True(t, sets[0].UseCompletionTokens)
	assert.NotNil(t, sets[0].Temperature)
	assert.True(t, sets[1].UseCompletionTokens)
	assert.Nil(t, sets[1].Temperature)
	assert.False(t, sets[2].UseCompletionTokens)
	assert.NotNil(t, sets[2].Temperature)
	assert.False(t, sets[3].UseCompletionTokens)
	assert.Nil(t, sets[3].Temperature)
}
