package providers

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	DefaultModel       = "gpt-4o-mini"
	DefaultMaxTokens   = 200
	DefaultTemperature = 0.7
	DefaultTimeout     = 30 * time.Second
)

// chatService is the slice of the openai client used here.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

type completionsAdapter struct {
	client openai.Client
}

func (a completionsAdapter) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Options configures an OpenAI generator.
type Options struct {
	APIKey      string
	APIBase     string
	Model       string
	MaxTokens   int
	Temperature float64 // negative selects DefaultTemperature
	Timeout     time.Duration
	MaxRetries  int
}

// OpenAI is a Generator backed by an OpenAI-compatible chat endpoint.
type OpenAI struct {
	chat        chatService
	model       string
	maxTokens   int
	temperature float64
	spec        *ProviderSpec
}

// NewOpenAI creates an OpenAI generator. An empty base URL is resolved from
// the model name; an empty key is read from the matching provider's env var.
func NewOpenAI(opts Options) *OpenAI {
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.Temperature < 0 {
		opts.Temperature = DefaultTemperature
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	spec := Resolve(opts.APIBase, opts.Model)
	if spec != nil {
		if opts.APIBase == "" {
			opts.APIBase = spec.DefaultAPIBase
		}
		if opts.APIKey == "" && spec.EnvKey != "" {
			opts.APIKey = os.Getenv(spec.EnvKey)
		}
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithRequestTimeout(opts.Timeout),
		option.WithMaxRetries(opts.MaxRetries),
	}
	if opts.APIBase != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(strings.TrimRight(opts.APIBase, "/")+"/"))
	}

	return &OpenAI{
		chat:        completionsAdapter{client: openai.NewClient(reqOpts...)},
		model:       opts.Model,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
		spec:        spec,
	}
}

// Model returns the default model.
func (o *OpenAI) Model() string { return o.model }

// Provider returns the display name of the resolved provider, or "custom".
func (o *OpenAI) Provider() string {
	if o.spec == nil {
		return "custom"
	}
	return o.spec.Label()
}

// Generate implements Generator.
func (o *OpenAI) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = o.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = o.maxTokens
	}
	temp := o.temperature
	if req.Temperature != nil {
		temp = *req.Temperature
	}

	var msgs []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}
	msgs = append(msgs, openai.UserMessage(req.Prompt))

	resp, err := o.chat.Create(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    msgs,
		MaxTokens:   openai.Int(int64(maxTokens)),
		Temperature: openai.Float(temp),
	})
	if err != nil {
		return "", fmt.Errorf("providers: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
