package provider_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/petasbytes/memchat/internal/provider"
	"github.com/petasbytes/memchat/memory"
)

const openaiReply = `{"id":"c1","object":"chat.completion","created":0,"model":"gpt-test","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"  Hello back  "}}]}`

func newOpenAI(f *fakeTransport) *provider.OpenAIGenerator {
	return provider.NewOpenAI(provider.Config{
		Model:      "gpt-test",
		APIKey:     "test-key",
		BaseURL:    "http://llm.local/v1/",
		MaxTokens:  32,
		HTTPClient: httpClient(f),
	})
}

func TestOpenAI_MapsRolesAndTrimsReply(t *testing.T) {
	capReq := &capture{}
	g := newOpenAI(&fakeTransport{respStatus: 200, respBody: []byte(openaiReply), captured: capReq})

	got, err := g.Generate(context.Background(), memory.ModelContext{
		{Role: memory.ContextUser, Text: "A"},
		{Role: memory.ContextModel, Text: "B"},
		{Role: memory.ContextUser, Text: "C"},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got != "Hello back" {
		t.Fatalf("reply = %q", got)
	}
	if !strings.HasPrefix(capReq.url, "http://llm.local/v1/chat/completions") {
		t.Fatalf("unexpected url %s", capReq.url)
	}

	var rb struct {
		Model               string `json:"model"`
		MaxCompletionTokens int    `json:"max_completion_tokens"`
		Messages            []struct {
			Role    string          `json:"role"`
			Content json.RawMessage `json:"content"`
		} `json:"messages"`
	}
	decodeBody(t, capReq.body, &rb)
	if rb.Model != "gpt-test" || rb.MaxCompletionTokens != 32 {
		t.Fatalf("unexpected model/max tokens: %s/%d", rb.Model, rb.MaxCompletionTokens)
	}
	wantRoles := []string{"user", "assistant", "user"}
	wantTexts := []string{`"A"`, `"B"`, `"C"`}
	for i, m := range rb.Messages {
		if m.Role != wantRoles[i] || string(m.Content) != wantTexts[i] {
			t.Fatalf("message %d = %s %s", i, m.Role, m.Content)
		}
	}
}

func TestOpenAI_NoChoices(t *testing.T) {
	g := newOpenAI(&fakeTransport{respStatus: 200, respBody: []byte(`{"id":"c1","object":"chat.completion","choices":[]}`)})
	_, err := g.Generate(context.Background(), memory.ModelContext{{Role: memory.ContextUser, Text: "x"}})
	if !errors.Is(err, provider.ErrEmptyReply) {
		t.Fatalf("expected ErrEmptyReply, got %v", err)
	}
}

func TestOpenAI_APIErrorSurfaces(t *testing.T) {
	f := &fakeTransport{respStatus: 401, respBody: []byte(`{"error":{"message":"no key","type":"invalid_request_error"}}`)}
	g := newOpenAI(f)
	if _, err := g.Generate(context.Background(), memory.ModelContext{{Role: memory.ContextUser, Text: "x"}}); err == nil {
		t.Fatal("expected error")
	}
}
