package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionServer(t *testing.T, message string, inspect func(req map[string]any)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if inspect != nil {
			inspect(req)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"finish_reason":"stop","message":` + message + `}]}`))
	}))
}

func TestGenerateText(t *testing.T) {
	var sent map[string]any
	srv := completionServer(t, `{"role":"assistant","content":"Bonjour !"}`, func(req map[string]any) { sent = req })
	defer srv.Close()

	c := NewOpenAIClient("sk-test", "", srv.URL+"/v1")
	reply, err := c.Generate(context.Background(), Tenant{Product: "Coaching"}, []Message{
		{Role: RoleUser, Text: "Salut"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Bonjour !", reply.Text)
	assert.Nil(t, reply.Tool)

	assert.Equal(t, "gpt-4o-mini", sent["model"])
	msgs := sent["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Contains(t, msgs[0].(map[string]any)["content"], "Coaching")
	assert.Equal(t, "Salut", msgs[1].(map[string]any)["content"])
	assert.Len(t, sent["tools"], 2)
}

func TestGenerateToolCall(t *testing.T) {
	srv := completionServer(t, `{"role":"assistant","content":"","tool_calls":[{"id":"call_1","type":"function",
		"function":{"name":"convert_conversation","arguments":"{\"reason\":\"a pris rdv\"}"}}]}`, nil)
	defer srv.Close()

	reply, err := NewOpenAIClient("sk-test", "gpt-4o", srv.URL+"/v1").Generate(context.Background(), Tenant{}, nil)
	require.NoError(t, err)
	require.NotNil(t, reply.Tool)
	assert.Equal(t, ToolConvert, reply.Tool.Name)
	assert.Equal(t, "a pris rdv", reply.Tool.Reason)
	assert.Empty(t, reply.Text)
}

func TestGenerateEmptyReply(t *testing.T) {
	srv := completionServer(t, `{"role":"assistant","content":"   "}`, nil)
	defer srv.Close()

	_, err := NewOpenAIClient("sk-test", "", srv.URL+"/v1").Generate(context.Background(), Tenant{}, nil)
	assert.ErrorIs(t, err, ErrEmptyReply)
}

func TestParseToolCallRepairsArguments(t *testing.T) {
	call, err := parseToolCall(openai.FunctionCall{Name: "abandon_conversation", Arguments: `{"reason": "pas le budget",}`})
	require.NoError(t, err)
	assert.Equal(t, ToolAbandon, call.Name)
	assert.Equal(t, "pas le budget", call.Reason)

	_, err = parseToolCall(openai.FunctionCall{Name: "delete_everything", Arguments: `{}`})
	assert.Error(t, err)
}

func TestSystemPrompt(t *testing.T) {
	p := SystemPrompt(Tenant{
		Product:        "Coaching sportif",
		Offer:          "suivi quotidien",
		Pricing:        []PricingItem{{Name: "Mensuel", Price: 99}, {Name: "Séance", Price: 39.5}},
		CallInfo:       "objectif et disponibilités",
		SchedulingLink: "https://calendly.com/coach",
	})
	assert.Contains(t, p, "Service proposé : Coaching sportif")
	assert.Contains(t, p, "* Mensuel : 99€")
	assert.Contains(t, p, "* Séance : 39.50€")
	assert.Contains(t, p, "https://calendly.com/coach")

	bare := SystemPrompt(Tenant{})
	assert.NotContains(t, bare, "Service proposé")
}
