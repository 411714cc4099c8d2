package classify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAICompleter(t *testing.T) {
	var got struct {
		Model          string `json:"model"`
		ResponseFormat struct {
			Type string `json:"type"`
		} `json:"response_format"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "local-model",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"pages\":[]}"}, "finish_reason": "stop"}]
		}`))
	}))
	defer server.Close()

	c := NewOpenAICompleter(&OpenAIConfig{APIKey: "test", BaseURL: server.URL + "/v1", Model: "local-model"})
	answer, err := c.Complete(context.Background(), "system text", "user text")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if answer != `{"pages":[]}` {
		t.Errorf("answer = %q", answer)
	}
	if got.Model != "local-model" || got.ResponseFormat.Type != "json_object" {
		t.Errorf("request model/format = %q/%q", got.Model, got.ResponseFormat.Type)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "user text" {
		t.Errorf("messages = %+v", got.Messages)
	}
	if c.Name() != "openai:local-model" {
		t.Errorf("Name() = %q", c.Name())
	}
}
