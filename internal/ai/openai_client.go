package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient uses gpt-4o-mini when model is empty. baseURL overrides the
// API endpoint when set.
func NewOpenAIClient(apiKey, model, baseURL string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func reasonSchema() jsonschema.Definition {
	return jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"reason": {Type: jsonschema.String, Description: reasonDescription},
		},
		Required: []string{"reason"},
	}
}

var tools = []openai.Tool{
	{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        string(ToolAbandon),
			Description: abandonDescription,
			Parameters:  reasonSchema(),
		},
	},
	{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        string(ToolConvert),
			Description: convertDescription,
			Parameters:  reasonSchema(),
		},
	},
}

func (c *OpenAIClient) Generate(ctx context.Context, tenant Tenant, history []Message) (Reply, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: SystemPrompt(tenant),
	})
	for _, m := range history {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Text})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: msgs,
		Tools:    tools,
	})
	if err != nil {
		return Reply{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Reply{}, ErrEmptyReply
	}

	choice := resp.Choices[0].Message
	if len(choice.ToolCalls) > 0 {
		call, err := parseToolCall(choice.ToolCalls[0].Function)
		if err != nil {
			return Reply{}, err
		}
		log.Info().Str("tool", string(call.Name)).Str("reason", call.Reason).Msg("generator chose a tool")
		return Reply{Tool: call}, nil
	}

	text := strings.TrimSpace(choice.Content)
	if text == "" {
		return Reply{}, ErrEmptyReply
	}
	log.Debug().Str("reply", text).Msg("generator reply")
	return Reply{Text: text}, nil
}

func parseToolCall(fn openai.FunctionCall) (*ToolCall, error) {
	name := ToolName(fn.Name)
	if name != ToolAbandon && name != ToolConvert {
		return nil, fmt.Errorf("unknown tool %q", fn.Name)
	}

	var args struct {
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(fn.Arguments), &args); err != nil {
		repaired, rerr := jsonrepair.JSONRepair(fn.Arguments)
		if rerr != nil {
			return nil, fmt.Errorf("tool %s arguments: %w", fn.Name, err)
		}
		if err := json.Unmarshal([]byte(repaired), &args); err != nil {
			return nil, fmt.Errorf("tool %s repaired arguments: %w", fn.Name, err)
		}
		log.Debug().Str("tool", fn.Name).Msg("repaired tool arguments")
	}
	return &ToolCall{Name: name, Reason: args.Reason}, nil
}
