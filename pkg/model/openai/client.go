// Package openai adapts the OpenAI Chat Completions API to the model.Client
// seam, using the official openai-go SDK.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	agentmodel "github.com/agentcore/runtime/pkg/model"
)

// Options configures a Client.
type Options struct {
	APIKey  string
	BaseURL string
}

// Client calls OpenAI's Chat Completions API.
type Client struct {
	sdk   openai.Client
	model string
}

// New constructs a Client from Options.
func New(defaultModel string, opts Options) *Client {
	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	return &Client{sdk: openai.NewClient(reqOpts...), model: defaultModel}
}

// NewFromAPIKey is a convenience constructor for the common case.
func NewFromAPIKey(apiKey, defaultModel string) *Client {
	return New(defaultModel, Options{APIKey: apiKey})
}

// Complete implements model.Client.
func (c *Client) Complete(ctx context.Context, req agentmodel.Request) (agentmodel.Response, error) {
	m := req.Model
	if m == "" {
		m = c.model
	}

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case agentmodel.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(msg.ContentString()))
		case agentmodel.RoleUser:
			msgs = append(msgs, openai.UserMessage(msg.ContentString()))
		case agentmodel.RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				msgs = append(msgs, openai.AssistantMessage(msg.Text))
				continue
			}
			calls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				args, _ := json.Marshal(tc.Parameters)
				calls = append(calls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: string(args),
					},
				})
			}
			assistant := openai.ChatCompletionAssistantMessageParam{
				Content:   openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(msg.Text)},
				ToolCalls: calls,
			}
			msgs = append(msgs, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case agentmodel.RoleTool:
			msgs = append(msgs, openai.ToolMessage(msg.ContentString(), msg.ToolCallID))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(m),
		Messages: msgs,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		toolParams := make([]openai.ChatCompletionToolParam, 0, len(req.Tools))
		for _, t := range req.Tools {
			var schema map[string]any
			_ = json.Unmarshal(t.Parameters, &schema)
			toolParams = append(toolParams, openai.ChatCompletionToolParam{
				Function: shared.FunctionDefinitionParam{
					Name:        t.Name,
					Description: openai.String(t.Description),
					Parameters:  shared.FunctionParameters(schema),
				},
			})
		}
		params.Tools = toolParams
	}

	completion, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return agentmodel.Response{}, translateError(err)
	}
	if len(completion.Choices) == 0 {
		return agentmodel.Response{}, &agentmodel.ProviderError{Provider: "openai", Message: "empty choices"}
	}
	choice := completion.Choices[0]
	resp := agentmodel.Response{
		Text:       choice.Message.Content,
		StopReason: string(choice.FinishReason),
		Usage: agentmodel.Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		var params map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &params)
		resp.ToolCalls = append(resp.ToolCalls, agentmodel.ToolCall{
			ID: tc.ID, Name: tc.Function.Name, Parameters: params,
		})
	}
	return resp, nil
}

func translateError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &agentmodel.ProviderError{
			Provider:   "openai",
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
			Cause:      err,
		}
	}
	return &agentmodel.ProviderError{Provider: "openai", Message: fmt.Sprint(err), Cause: err}
}
