package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, serverURL string) OpenAIClient {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("OPENAI_BASE_URL", serverURL)
	t.Setenv("OPENAI_MAX_RETRIES", "2")
	client, err := NewOpenAIClient(testLogger(t))
	if err != nil {
		t.Fatalf("NewOpenAIClient: %v", err)
	}
	return client
}

func TestNewOpenAIClient_RequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewOpenAIClient(testLogger(t)); err == nil {
		t.Fatalf("expected error without api key")
	}
}

func TestOpenAIClient_EmbedReordersByIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("missing auth header, got %q", got)
		}
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "text-embedding-3-small" {
			t.Errorf("unexpected model %q", req.Model)
		}
		// Deliberately out of order; the client must restore input order.
		fmt.Fprint(w, `{"data":[
			{"index":1,"embedding":[0,1]},
			{"index":0,"embedding":[1,0]}
		]}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	vecs, err := client.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vecs))
	}
	if vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Fatalf("vectors not reordered by index: %v", vecs)
	}
}

func TestOpenAIClient_EmbedRetriesServerErrors(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"data":[{"index":0,"embedding":[1,0]}]}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	vecs, err := client.Embed(context.Background(), []string{"x"})
	if err != nil {
		t.Fatalf("Embed after retry: %v", err)
	}
	if calls != 2 || len(vecs) != 1 {
		t.Fatalf("expected one retry then success, got %d calls", calls)
	}
}

func TestOpenAIClient_EmbedDoesNotRetryClientErrors(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key"}}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.Embed(context.Background(), []string{"x"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("401 must not retry, got %d calls", calls)
	}
}

func TestOpenAIClient_EmbedEmptyInputShortCircuits(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no request expected for empty input")
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	vecs, err := client.Embed(context.Background(), nil)
	if err != nil || len(vecs) != 0 {
		t.Fatalf("expected empty result, got %v %v", vecs, err)
	}
}

func TestOpenAIClient_GenerateImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/images/generations" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model          string `json:"model"`
			N              int    `json:"n"`
			Size           string `json:"size"`
			Quality        string `json:"quality"`
			ResponseFormat string `json:"response_format"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "dall-e-3" || req.N != 1 || req.Size != "1024x1024" {
			t.Errorf("unexpected request shape: %+v", req)
		}
		if req.Quality != "standard" || req.ResponseFormat != "b64_json" {
			t.Errorf("unexpected quality/format: %+v", req)
		}
		fmt.Fprint(w, `{"data":[{"b64_json":"aGVsbG8=","revised_prompt":"a refined prompt"}]}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	image, err := client.GenerateImage(context.Background(), "a navy wool suit")
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if image.B64JSON != "aGVsbG8=" || image.RevisedPrompt != "a refined prompt" {
		t.Fatalf("unexpected image payload: %+v", image)
	}
	if image.Model != "dall-e-3" || image.Size != "1024x1024" {
		t.Fatalf("model metadata missing: %+v", image)
	}
}

func TestOpenAIClient_GenerateImageContentPolicy(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"code":"content_policy_violation","message":"rejected by safety system"}}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.GenerateImage(context.Background(), "something off limits")
	if !errors.Is(err, ErrGenerationRejected) {
		t.Fatalf("expected ErrGenerationRejected, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("policy rejection must not retry, got %d calls", calls)
	}
}

func TestOpenAIClient_GenerateImageEmptyPrompt(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:0")
	if _, err := client.GenerateImage(context.Background(), "   "); err == nil {
		t.Fatalf("expected error for empty prompt")
	}
}

func TestIsContentPolicyRejection(t *testing.T) {
	tests := []struct {
		name string
		err  *openAIHTTPError
		want bool
	}{
		{"content policy 400", &openAIHTTPError{StatusCode: 400, Body: `{"code":"content_policy_violation"}`}, true},
		{"safety system 400", &openAIHTTPError{StatusCode: 400, Body: "rejected by the safety system"}, true},
		{"plain 400", &openAIHTTPError{StatusCode: 400, Body: "invalid size"}, false},
		{"content policy on 500", &openAIHTTPError{StatusCode: 500, Body: "content_policy"}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := isContentPolicyRejection(tc.err); got != tc.want {
				t.Fatalf("isContentPolicyRejection = %v, want %v", got, tc.want)
			}
		})
	}
}
