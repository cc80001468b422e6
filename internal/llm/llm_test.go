package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSchema = &Schema{
	Name:       "job_posting",
	Definition: json.RawMessage(`{"type":"object","properties":{"position":{"type":"string"}}}`),
}

func TestOpenAIClient_Generate(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"195h4dhefd18dbf2 1912186480d8d4av"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(Config{APIBase: srv.URL + "/v1/", APIKey: "sk-test", Model: "gpt-4o-mini", MaxTokens: 100}, nil)
	out, err := c.Generate(context.Background(), Request{Instructions: "filter", Input: "ids"})

	require.NoError(t, err)
	assert.Equal(t, "195h4dhefd18dbf2 1912186480d8d4av", out)
	assert.Equal(t, "gpt-4o-mini", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, Message{Role: "system", Content: "filter"}, got.Messages[0])
	assert.Equal(t, Message{Role: "user", Content: "ids"}, got.Messages[1])
	assert.Nil(t, got.ResponseFormat, "no schema means free-form text")
}

func TestOpenAIClient_SendsSchema(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{}"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(Config{APIBase: srv.URL, Model: "m"}, nil)
	_, err := c.Generate(context.Background(), Request{Input: "body", Schema: testSchema})
	require.NoError(t, err)

	format, ok := raw["response_format"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "json_schema", format["type"])
	schema := format["json_schema"].(map[string]any)
	assert.Equal(t, "job_posting", schema["name"])
	assert.Equal(t, true, schema["strict"])
}

func TestOpenAIClient_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`rate limited`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(Config{APIBase: srv.URL, Model: "m"}, nil)
	_, err := c.Generate(context.Background(), Request{Input: "x"})
	require.Error(t, err)
	assert.True(t, IsAPIError(err))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Contains(t, apiErr.Error(), "rate limited")
}

func TestOpenAIClient_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(Config{APIBase: srv.URL, Model: "m"}, nil)
	_, err := c.Generate(context.Background(), Request{Input: "x"})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestOpenAIClient_NoText(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{"refusal", `{"choices":[{"message":{"content":null,"refusal":"I can't help with that."},"finish_reason":"stop"}]}`, "", true},
		{"null content", `{"choices":[{"message":{"content":null},"finish_reason":"stop"}]}`, "", true},
		{"content filter", `{"choices":[{"message":{"content":""},"finish_reason":"content_filter"}]}`, "", true},
		{"empty answer", `{"choices":[{"message":{"content":""},"finish_reason":"stop"}]}`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			out, err := NewOpenAIClient(Config{APIBase: srv.URL, Model: "m"}, nil).Generate(context.Background(), Request{Input: "x"})
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrEmptyResponse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestOpenAIClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewOpenAIClient(Config{APIBase: srv.URL, Model: "m"}, &http.Client{Timeout: 50 * time.Millisecond})
	_, err := c.Generate(context.Background(), Request{Input: "x"})
	assert.Error(t, err, "a timeout surfaces as an error instead of hanging")
}

func TestGeminiClient_Generate(t *testing.T) {
	var got geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-2.0-flash:generateContent", r.URL.Path)
		assert.Equal(t, "g-key", r.Header.Get("x-goog-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"a\":"},{"text":"1}"}]}}]}`))
	}))
	defer srv.Close()

	c := NewGeminiClient(Config{APIBase: srv.URL + "/v1beta", APIKey: "g-key", Model: "gemini-2.0-flash"}, nil)
	out, err := c.Generate(context.Background(), Request{Instructions: "extract", Input: "body", Schema: testSchema})

	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, out)
	require.NotNil(t, got.SystemInstruction)
	assert.Equal(t, "extract", got.SystemInstruction.Parts[0].Text)
	assert.Equal(t, "body", got.Contents[0].Parts[0].Text)
	assert.Equal(t, "application/json", got.GenerationConfig.ResponseMimeType)
	assert.JSONEq(t, string(testSchema.Definition), string(got.GenerationConfig.ResponseJSONSchema))
}

func TestGeminiClient_Errors(t *testing.T) {
	status := http.StatusInternalServerError
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	c := NewGeminiClient(Config{APIBase: srv.URL, Model: "m"}, nil)
	_, err := c.Generate(context.Background(), Request{Input: "x"})
	assert.True(t, IsAPIError(err))

	status = http.StatusOK
	_, err = c.Generate(context.Background(), Request{Input: "x"})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestGeminiClient_Blocked(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"safety stop", `{"candidates":[{"content":{"parts":[]},"finishReason":"SAFETY"}]}`, true},
		{"prompt blocked", `{"promptFeedback":{"blockReason":"SAFETY"}}`, true},
		{"normal empty stop", `{"candidates":[{"content":{"parts":[{"text":""}]},"finishReason":"STOP"}]}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			out, err := NewGeminiClient(Config{APIBase: srv.URL, Model: "m"}, nil).Generate(context.Background(), Request{Input: "x"})
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrEmptyResponse)
				return
			}
			require.NoError(t, err)
			assert.Empty(t, out)
		})
	}
}

type stubGenerator struct {
	calls int
}

func (s *stubGenerator) Generate(context.Context, Request) (string, error) {
	s.calls++
	return "ok", nil
}

func TestRateLimited(t *testing.T) {
	stub := &stubGenerator{}
	assert.Same(t, Generator(stub), NewRateLimited(stub, 0), "no limit keeps the client as is")

	limited := NewRateLimited(stub, 60)
	out, err := limited.Generate(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = limited.Generate(ctx, Request{})
	assert.Error(t, err)
	assert.Equal(t, 1, stub.calls)
}

func TestNew(t *testing.T) {
	_, err := New(Config{Provider: "openai"})
	assert.Error(t, err, "model is required")

	_, err = New(Config{Provider: "bard", Model: "m"})
	assert.Error(t, err)

	gen, err := New(Config{Model: "m"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, gen)

	gen, err = New(Config{Provider: "Gemini", Model: "m", RequestsPerMinute: 30})
	require.NoError(t, err)
	assert.IsType(t, &RateLimited{}, gen)
}
