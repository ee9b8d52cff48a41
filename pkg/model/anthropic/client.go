// Package anthropic adapts the Claude Messages API to the model.Client
// seam.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentcore/runtime/pkg/model"
)

// Options configures a Client. Zero values pick sensible defaults; this
// uses an options-struct constructor rather than variadic functional
// options.
type Options struct {
	APIKey     string
	BaseURL    string
	MaxRetries int
}

// Client calls Anthropic's Messages API.
type Client struct {
	sdk   anthropicsdk.Client
	model string
}

// New constructs a Client from Options.
func New(defaultModel string, opts Options) *Client {
	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.MaxRetries > 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(opts.MaxRetries))
	}
	return &Client{sdk: anthropicsdk.NewClient(reqOpts...), model: defaultModel}
}

// NewFromAPIKey is a convenience constructor for the common case of
// constructing a client from a single API key and model name.
func NewFromAPIKey(apiKey, defaultModel string) *Client {
	return New(defaultModel, Options{APIKey: apiKey})
}

// Complete implements model.Client.
func (c *Client) Complete(ctx context.Context, req model.Request) (model.Response, error) {
	m := req.Model
	if m == "" {
		m = c.model
	}
	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(m),
		MaxTokens: int64(maxTokens(req.MaxTokens)),
	}
	var system string
	msgs := make([]anthropicsdk.MessageParam, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case model.RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += msg.ContentString()
		case model.RoleUser:
			msgs = append(msgs, anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(msg.ContentString())))
		case model.RoleAssistant:
			blocks := []anthropicsdk.ContentBlockParamUnion{}
			if msg.Text != "" {
				blocks = append(blocks, anthropicsdk.NewTextBlock(msg.Text))
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, anthropicsdk.NewToolUseBlock(tc.ID, tc.Parameters, tc.Name))
			}
			msgs = append(msgs, anthropicsdk.NewAssistantMessage(blocks...))
		case model.RoleTool:
			content, _ := json.Marshal(msg.ContentString())
			msgs = append(msgs, anthropicsdk.NewUserMessage(
				anthropicsdk.NewToolResultBlock(msg.ToolCallID, string(content), false),
			))
		}
	}
	params.Messages = msgs
	if system != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: system}}
	}
	if len(req.Tools) > 0 {
		tools := make([]anthropicsdk.ToolUnionParam, 0, len(req.Tools))
		for _, t := range req.Tools {
			var schema any
			_ = json.Unmarshal(t.Parameters, &schema)
			tools = append(tools, anthropicsdk.ToolUnionParam{
				OfTool: &anthropicsdk.ToolParam{
					Name:        t.Name,
					Description: anthropicsdk.String(t.Description),
					InputSchema: anthropicsdk.ToolInputSchemaParam{},
				},
			})
		}
		params.Tools = tools
	}

	msg, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return model.Response{}, translateError(err)
	}

	resp := model.Response{Usage: model.Usage{
		PromptTokens:     int(msg.Usage.InputTokens),
		CompletionTokens: int(msg.Usage.OutputTokens),
	}, StopReason: string(msg.StopReason)}

	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			resp.Text += block.Text
		case "tool_use":
			var params map[string]any
			_ = json.Unmarshal(block.Input, &params)
			resp.ToolCalls = append(resp.ToolCalls, model.ToolCall{
				ID: block.ID, Name: block.Name, Parameters: params,
			})
		}
	}
	return resp, nil
}

func maxTokens(n int) int {
	if n <= 0 {
		return 4096
	}
	return n
}

func translateError(err error) error {
	var apiErr *anthropicsdk.Error
	if errors.As(err, &apiErr) {
		return &model.ProviderError{
			Provider:   "anthropic",
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
			Cause:      err,
		}
	}
	return &model.ProviderError{Provider: "anthropic", Message: fmt.Sprint(err), Cause: err}
}
