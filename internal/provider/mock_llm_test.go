package provider_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockResponse is a canned reply for prompts containing a key.
type MockResponse struct {
	Content string
}

// MockLLMServer mimics the OpenAI and Anthropic chat APIs with
// deterministic, non-streaming replies.
type MockLLMServer struct {
	server    *httptest.Server
	responses map[string]MockResponse
	fallback  string

	mu       sync.Mutex
	prompts  []string
	failNext int
}

// NewMockLLMServer creates a mock server. Prompts that contain no key get
// the fallback content.
func NewMockLLMServer(responses map[string]MockResponse, fallback string) *MockLLMServer {
	m := &MockLLMServer{responses: responses, fallback: fallback}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", m.handleOpenAI)
	mux.HandleFunc("/chat/completions", m.handleOpenAI)
	mux.HandleFunc("/v1/messages", m.handleAnthropic)

	m.server = httptest.NewServer(mux)
	return m
}

// URL returns the mock server's URL.
func (m *MockLLMServer) URL() string { return m.server.URL }

// Close shuts down the mock server.
func (m *MockLLMServer) Close() { m.server.Close() }

// Prompts returns the last user prompt of every request received.
func (m *MockLLMServer) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// FailNext makes the next n requests answer with a 500.
func (m *MockLLMServer) FailNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = n
}

func (m *MockLLMServer) read(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return nil, false
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return nil, false
	}
	defer r.Body.Close()

	var req map[string]any
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return nil, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, lastUserPrompt(req))
	if m.failNext > 0 {
		m.failNext--
		http.Error(w, `{"error":{"message":"overloaded","type":"server_error"}}`, http.StatusInternalServerError)
		return nil, false
	}
	return req, true
}

func (m *MockLLMServer) handleOpenAI(w http.ResponseWriter, r *http.Request) {
	req, ok := m.read(w, r)
	if !ok {
		return
	}
	resp := m.find(lastUserPrompt(req))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-mock",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   "mock-gpt",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": resp.Content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	})
}

func (m *MockLLMServer) handleAnthropic(w http.ResponseWriter, r *http.Request) {
	req, ok := m.read(w, r)
	if !ok {
		return
	}
	resp := m.find(lastUserPrompt(req))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":            "msg_mock",
		"type":          "message",
		"role":          "assistant",
		"model":         "mock-claude",
		"stop_reason":   "end_turn",
		"stop_sequence": nil,
		"content":       []map[string]any{{"type": "text", "text": resp.Content}},
		"usage":         map[string]any{"input_tokens": 10, "output_tokens": 5},
	})
}

func (m *MockLLMServer) find(prompt string) MockResponse {
	prompt = strings.ToLower(prompt)
	for key, resp := range m.responses {
		if strings.Contains(prompt, strings.ToLower(key)) {
			return resp
		}
	}
	return MockResponse{Content: m.fallback}
}

// lastUserPrompt extracts the last user message in either API format.
func lastUserPrompt(req map[string]any) string {
	messages, _ := req["messages"].([]any)
	for i := len(messages) - 1; i >= 0; i-- {
		msg, ok := messages[i].(map[string]any)
		if !ok || msg["role"] != "user" {
			continue
		}
		if content, ok := msg["content"].(string); ok {
			return content
		}
		blocks, _ := msg["content"].([]any)
		for _, item := range blocks {
			if block, ok := item.(map[string]any); ok && block["type"] == "text" {
				if text, ok := block["text"].(string); ok {
					return text
				}
			}
		}
	}
	return ""
}
