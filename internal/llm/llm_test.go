package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jimdaga/cost-model-service/internal/config"
)

func newTestOpenAI(t *testing.T, handler http.HandlerFunc, timeout time.Duration) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAIClient(config.LLMConfig{
		OpenAIAPIKey:  "sk-test",
		OpenAIBaseURL: srv.URL + "/",
		OpenAIModel:   "gpt-4o",
		MaxTokens:     64,
		Timeout:       timeout,
	})
}

func TestOpenAICompleteSendsDeterministicRequest(t *testing.T) {
	var got chatRequest
	client := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("expected path /chat/completions, got %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("expected bearer auth, got %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"` + "```json\\n{\\\"a\\\":1}\\n```" + `"}}]}`))
	}, time.Second)

	text, err := client.Complete(context.Background(), Request{
		Purpose:    PurposeExtractWeight,
		System:     "sys",
		Prompt:     "hello",
		JSONObject: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != `{"a":1}` {
		t.Errorf("expected fenced JSON to be cleaned, got %q", text)
	}
	if got.Temperature != 0 {
		t.Errorf("expected temperature 0, got %v", got.Temperature)
	}
	if got.MaxTokens != 64 {
		t.Errorf("expected default max tokens 64, got %d", got.MaxTokens)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_object" {
		t.Errorf("expected json_object response format, got %+v", got.ResponseFormat)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "hello" {
		t.Errorf("unexpected messages %+v", got.Messages)
	}
}

func TestOpenAICompleteErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"unauthorized", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"invalid key"}`, http.StatusUnauthorized)
		}},
		{"no choices", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"choices":[]}`))
		}},
		{"garbage body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`not json`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestOpenAI(t, tt.handler, time.Second)
			_, err := client.Complete(context.Background(), Request{Purpose: PurposeCostModel, Prompt: "x"})
			var llmErr *Error
			if !errors.As(err, &llmErr) {
				t.Fatalf("expected *llm.Error, got %v", err)
			}
			if llmErr.Purpose != PurposeCostModel {
				t.Errorf("expected purpose %s, got %s", PurposeCostModel, llmErr.Purpose)
			}
			if strings.Contains(err.Error(), "sk-test") {
				t.Errorf("error leaks API key: %v", err)
			}
		})
	}
}

func TestOpenAICompleteTimeout(t *testing.T) {
	release := make(chan struct{})
	client := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, 50*time.Millisecond)
	defer close(release)

	_, err := client.Complete(context.Background(), Request{Purpose: PurposeExtractWeight, Prompt: "x"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestOpenAIEmptyContentIsSuccess(t *testing.T) {
	client := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":""}}]}`))
	}, time.Second)

	text, err := client.Complete(context.Background(), Request{Purpose: PurposeExtractWeight, Prompt: "x"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if text != "" {
		t.Errorf("expected empty text, got %q", text)
	}
}

func TestCleanText(t *testing.T) {
	tests := map[string]string{
		"  {\"a\":1}  ":            `{"a":1}`,
		"```json\n[1,2]\n```":      `[1,2]`,
		"```\n{\"b\":null}\n```\n": `{"b":null}`,
		"plain":                    "plain",
	}
	for in, want := range tests {
		if got := CleanText(in); got != want {
			t.Errorf("CleanText(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSchemaDecode(t *testing.T) {
	schema := MustCompileSchema(`{
		"type": "object",
		"properties": {"n": {"type": ["number", "null"]}},
		"required": ["n"],
		"additionalProperties": false
	}`)

	var out struct {
		N *float64 `json:"n"`
	}
	if err := schema.Decode(`{"n": 2.5}`, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.N == nil || *out.N != 2.5 {
		t.Errorf("expected 2.5, got %v", out.N)
	}

	var schemaErr *SchemaError
	if err := schema.Decode(`{"n": "heavy"}`, &out); !errors.As(err, &schemaErr) {
		t.Errorf("expected schema error for string value, got %v", err)
	}
	if err := schema.Decode(`{"n": 1, "m": 2}`, &out); !errors.As(err, &schemaErr) {
		t.Errorf("expected schema error for extra key, got %v", err)
	}
	if err := schema.Decode(`{n:`, &out); !errors.As(err, &schemaErr) || schemaErr.Err == nil {
		t.Errorf("expected JSON syntax error, got %v", err)
	}
}

func TestStubClient(t *testing.T) {
	stub := NewStubClient(0)

	text, err := stub.Complete(context.Background(), Request{Purpose: PurposeCostModel})
	if err != nil || text != "[]" {
		t.Errorf("expected empty array, got %q %v", text, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	slow := NewStubClient(time.Hour)
	if _, err := slow.Complete(ctx, Request{Purpose: PurposeExtractWeight}); err == nil {
		t.Error("expected error on cancelled context")
	}
}
