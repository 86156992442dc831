package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockChatService struct {
	resp   openai.ChatCompletion
	err    error
	params openai.ChatCompletionNewParams
}

func (m *mockChatService) Create(_ context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	m.params = params
	return m.resp, m.err
}

func TestGenerator_ImplementsInterface(t *testing.T) {
	var _ Generator = &OpenAI{}
}

func TestGenerate_Success(t *testing.T) {
	mock := &mockChatService{resp: openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: "  gm!  "}},
		},
	}}
	o := &OpenAI{chat: mock, model: "gpt-4o-mini", maxTokens: 100, temperature: 0.5}

	out, err := o.Generate(context.Background(), GenerateRequest{System: "be brief", Prompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "gm!", out)
	assert.Equal(t, openai.ChatModel("gpt-4o-mini"), mock.params.Model)
	assert.Len(t, mock.params.Messages, 2)
	assert.Equal(t, int64(100), mock.params.MaxTokens.Value)
	assert.Equal(t, 0.5, mock.params.Temperature.Value)
}

func TestGenerate_RequestOverrides(t *testing.T) {
	mock := &mockChatService{resp: openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "ok"}}},
	}}
	o := &OpenAI{chat: mock, model: "gpt-4o-mini", maxTokens: 100, temperature: 0.5}

	_, err := o.Generate(context.Background(), GenerateRequest{Prompt: "hi", Model: "deepseek-chat", MaxTokens: 42})
	require.NoError(t, err)
	assert.Equal(t, openai.ChatModel("deepseek-chat"), mock.params.Model)
	assert.Len(t, mock.params.Messages, 1, "no system message when empty")
	assert.Equal(t, int64(42), mock.params.MaxTokens.Value)
}

func TestGenerate_ZeroTemperatureIsKept(t *testing.T) {
	mock := &mockChatService{resp: openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "ok"}}},
	}}

	o := NewOpenAI(Options{APIKey: "k", Model: "gpt-4o-mini", Temperature: 0})
	o.chat = mock
	_, err := o.Generate(context.Background(), GenerateRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.True(t, mock.params.Temperature.Valid())
	assert.Equal(t, 0.0, mock.params.Temperature.Value)

	o = &OpenAI{chat: mock, model: "gpt-4o-mini", maxTokens: 100, temperature: 0.9}
	zero := 0.0
	_, err = o.Generate(context.Background(), GenerateRequest{Prompt: "hi", Temperature: &zero})
	require.NoError(t, err)
	assert.Equal(t, 0.0, mock.params.Temperature.Value)
}

func TestGenerate_Errors(t *testing.T) {
	o := &OpenAI{chat: &mockChatService{err: errors.New("service failure")}}
	_, err := o.Generate(context.Background(), GenerateRequest{Prompt: "x"})
	assert.ErrorContains(t, err, "service failure")

	o = &OpenAI{chat: &mockChatService{}}
	_, err = o.Generate(context.Background(), GenerateRequest{Prompt: "x"})
	assert.ErrorIs(t, err, ErrNoChoices)
}

func TestGenerate_OverHTTP(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion","created":0,"model":"m",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"hey there"}}]}`))
	}))
	defer srv.Close()

	o := NewOpenAI(Options{APIKey: "sk-test", APIBase: srv.URL + "/v1", Model: "m"})
	out, err := o.Generate(context.Background(), GenerateRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hey there", out)
	assert.Equal(t, "m", got["model"])
	assert.Equal(t, "custom", o.Provider())
}

func TestResolve(t *testing.T) {
	assert.Equal(t, "openrouter", Resolve("https://openrouter.ai/api/v1", "").Name)
	assert.Equal(t, "deepseek", Resolve("", "deepseek-chat").Name)
	assert.Equal(t, "openai", Resolve("", "gpt-4o-mini").Name)
	assert.Nil(t, Resolve("http://localhost:11434/v1", "gpt-4o"))
	assert.Nil(t, FindByModel("llama3"))
	assert.Equal(t, "Groq", Resolve("https://api.groq.com/openai/v1", "").Label())
}

func TestNewOpenAI_DefaultsFromRegistry(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "ds-key")
	o := NewOpenAI(Options{Model: "deepseek-chat", Temperature: -1})
	assert.Equal(t, "DeepSeek", o.Provider())
	assert.Equal(t, DefaultTemperature, o.temperature)
	assert.Equal(t, DefaultMaxTokens, o.maxTokens)
}
