package llm

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"

	"emailfilter/internal/domain/mail"
)

const (
	ProtocolIndices = "indices"
	ProtocolDigits  = "digits"
)

type Options struct {
	APIKey   string
	BaseURL  string
	Model    string
	Protocol string
	// Criteria replaces the protocol's default delete/keep rules when set.
	Criteria   string
	MaxRetries int
}

// Client classifies a batch of junk messages with one chat completion.
type Client struct {
	api      openai.Client
	model    string
	protocol string
	criteria string
	log      *zap.SugaredLogger
}

func NewClient(opts Options, log *zap.SugaredLogger) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set")
	}
	if opts.Model == "" {
		opts.Model = "gpt-5-mini"
	}
	if opts.Protocol == "" {
		opts.Protocol = ProtocolIndices
	}
	if opts.Protocol != ProtocolIndices && opts.Protocol != ProtocolDigits {
		return nil, fmt.Errorf("unknown classifier protocol %q", opts.Protocol)
	}
	if opts.Criteria == "" {
		opts.Criteria = DefaultIndicesCriteria
		if opts.Protocol == ProtocolDigits {
			opts.Criteria = DefaultDigitsCriteria
		}
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.MaxRetries > 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(opts.MaxRetries))
	}

	return &Client{
		api:      openai.NewClient(reqOpts...),
		model:    opts.Model,
		protocol: opts.Protocol,
		criteria: opts.Criteria,
		log:      log,
	}, nil
}

// Classify returns delete verdicts keyed by batch index. An error means the
// batch got no usable verdicts and the caller should keep all of it.
func (c *Client) Classify(ctx context.Context, batch []mail.Message) (mail.Verdicts, error) {
	if len(batch) == 0 {
		return mail.Verdicts{}, nil
	}

	var messages []openai.ChatCompletionMessageParamUnion
	switch c.protocol {
	case ProtocolDigits:
		messages = []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(digitsSystemPrompt),
			openai.UserMessage(digitsPrompt(c.criteria, batch)),
		}
	default:
		messages = []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(indicesPrompt(c.criteria, batch)),
		}
	}

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty LLM response", ErrMalformedResponse)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	c.log.Debugw("classifier reply", "protocol", c.protocol, "batch", len(batch), "reply", text)

	var verdicts mail.Verdicts
	if c.protocol == ProtocolDigits {
		verdicts, err = parseDigits(text, len(batch))
	} else {
		verdicts, err = parseIndices(text, len(batch), c.log)
	}
	if err != nil {
		return nil, err
	}
	return verdicts, nil
}
