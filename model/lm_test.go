package model

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func completionServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{
			"id":     "chatcmpl-test",
			"object": "chat.completion",
			"model":  req["model"],
			"choices": []map[string]any{
				{
					"index":         0,
					"finish_reason": "stop",
					"message":       map[string]any{"role": "assistant", "content": content},
				},
			},
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
}

func TestClient_Invoke(t *testing.T) {
	t.Run("returns completion text and raw payload", func(t *testing.T) {
		srv := completionServer(t, http.StatusOK, "Answer: 30")
		defer srv.Close()

		client := NewClient(srv.URL+"/v1", "sk-test", "test-model")
		resp, err := client.Invoke(context.Background(), "What is 10 + 20?")
		if err != nil {
			t.Fatalf("invoke failed: %v", err)
		}
		if resp.Text != "Answer: 30" {
			t.Errorf("got text %q, want %q", resp.Text, "Answer: 30")
		}
		if resp.Raw == "" {
			t.Error("raw payload is empty")
		}
	})

	t.Run("provider failure surfaces as TransportError", func(t *testing.T) {
		srv := completionServer(t, http.StatusInternalServerError, "")
		defer srv.Close()

		client := NewClient(srv.URL+"/v1", "sk-test", "test-model")
		_, err := client.Invoke(context.Background(), "anything")
		if err == nil {
			t.Fatal("expected error")
		}
		var terr *TransportError
		if !errors.As(err, &terr) {
			t.Errorf("got %T, want *TransportError", err)
		}
	})

	t.Run("rate limited client still completes", func(t *testing.T) {
		srv := completionServer(t, http.StatusOK, "ok")
		defer srv.Close()

		client := NewClient(srv.URL+"/v1", "sk-test", "test-model", WithRateLimit(100))
		resp, err := client.Invoke(context.Background(), "ping")
		if err != nil {
			t.Fatalf("invoke failed: %v", err)
		}
		if resp.Text != "ok" {
			t.Errorf("got text %q, want %q", resp.Text, "ok")
		}
	})
}
