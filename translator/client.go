package translator

import (
	"context"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
	pkgerrors "github.com/pkg/errors"
)

// ChatClient is the minimal chat-completion surface the translator
// needs; tests substitute a scripted fake.
type ChatClient interface {
	Complete(ctx context.Context, system, user string, maxTokens int) (string, error)
}

type ClientConfig struct {
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
}

// OpenAIClient speaks to any OpenAI-chat-compatible endpoint.
type OpenAIClient struct {
	client  oai.Client
	model   string
	timeout time.Duration
}

var _ ChatClient = (*OpenAIClient)(nil)

func NewOpenAIClient(cfg ClientConfig) *OpenAIClient {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{
		client:  oai.NewClient(reqOpts...),
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}
}

func (c *OpenAIClient) Complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(system),
			oai.UserMessage(user),
		},
		Temperature: param.NewOpt(0.3),
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(maxTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", pkgerrors.Wrap(err, "chat completion timed out")
		}
		return "", pkgerrors.Wrap(err, "chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", pkgerrors.New("chat completion returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}
