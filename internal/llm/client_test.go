package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cybersync/internal/config"
	"cybersync/internal/models"
)

func testClient(encoderURL, modelURL string) *Client {
	cfg := config.Load()
	cfg.EncoderURL = encoderURL
	cfg.ModelURL = modelURL
	cfg.MaxRetries = 2
	cfg.BackoffBase = time.Millisecond
	cfg.EmbedTimeout = 2 * time.Second
	cfg.GenerateTimeout = 2 * time.Second
	cfg.EmbedRatePerSec = 1000
	return NewClient(cfg)
}

func TestEmbedReturnsVectors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		var req map[string][]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Bad request body: %v", err)
		}
		if len(req["data"]) != 2 {
			t.Errorf("Expected 2 texts, got %d", len(req["data"]))
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"embeddings": [][]float32{{0.1, 0.2}, {0.3, 0.4}},
		})
	}))
	defer server.Close()

	client := testClient(server.URL, "")
	vectors := client.Embed(context.Background(), []string{"a", "b"})

	if len(vectors) != 2 {
		t.Fatalf("Expected 2 vectors, got %d", len(vectors))
	}
	if vectors[0][0] != 0.1 || vectors[1][1] != 0.4 {
		t.Errorf("Unexpected vector values: %v", vectors)
	}
}

func TestEmbedDegradesToEmptyOnFailure(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := testClient(server.URL, "")
	vectors := client.Embed(context.Background(), []string{"a"})

	if vectors != nil {
		t.Errorf("Expected nil vectors on upstream failure, got %v", vectors)
	}
	// 1 initial attempt + 2 retries
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestEmbedDoesNotRetryClientErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := testClient(server.URL, "")
	client.Embed(context.Background(), []string{"a"})

	if attempts != 1 {
		t.Errorf("Expected 1 attempt for a 4xx, got %d", attempts)
	}
}

func TestGenerateReturnsReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Bad request body: %v", err)
		}
		if _, ok := req["conversation_history"]; !ok {
			t.Error("Expected conversation_history in request")
		}
		json.NewEncoder(w).Encode(map[string]string{"reply": "hello there"})
	}))
	defer server.Close()

	client := testClient("", server.URL)
	reply := client.Generate(context.Background(), []string{"ctx"}, nil, models.Prompt{Role: "user", Content: "hi"}, nil)

	if reply != "hello there" {
		t.Errorf("Expected reply %q, got %q", "hello there", reply)
	}
}

func TestGenerateDegradesToEmptyOnFailure(t *testing.T) {
	client := testClient("", "http://127.0.0.1:1/generate-reply")
	reply := client.Generate(context.Background(), nil, nil, models.Prompt{Role: "user", Content: "hi"}, nil)

	if reply != "" {
		t.Errorf("Expected empty reply on unreachable upstream, got %q", reply)
	}
}

func TestGenerateStreamForwardsChunks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"chunk\",\"content\":\"Hel\"}\n\n")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "data: {\"type\":\"chunk\",\"content\":\"lo\"}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"done\",\"reply\":\"Hello\",\"embeddings\":[0.5,0.6]}\n\n")
	}))
	defer server.Close()

	client := testClient("", server.URL)

	var got []string
	result, err := client.GenerateStream(context.Background(), nil, nil, models.Prompt{Role: "user", Content: "hi"}, nil, func(chunk string) error {
		got = append(got, chunk)
		return nil
	})
	if err != nil {
		t.Fatalf("GenerateStream failed: %v", err)
	}

	if strings.Join(got, "") != "Hello" {
		t.Errorf("Expected forwarded chunks to join to Hello, got %q", strings.Join(got, ""))
	}
	if result.Reply != "Hello" {
		t.Errorf("Expected terminal reply Hello, got %q", result.Reply)
	}
	if len(result.Embeddings) != 2 {
		t.Errorf("Expected terminal embeddings, got %v", result.Embeddings)
	}
}

func TestGenerateStreamStopsOnChunkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for i := 0; i < 100; i++ {
			fmt.Fprintf(w, "data: {\"type\":\"chunk\",\"content\":\"x%d\"}\n\n", i)
		}
		fmt.Fprint(w, "data: {\"type\":\"done\",\"reply\":\"full\"}\n\n")
	}))
	defer server.Close()

	client := testClient("", server.URL)

	calls := 0
	stop := fmt.Errorf("client went away")
	_, err := client.GenerateStream(context.Background(), nil, nil, models.Prompt{Role: "user", Content: "hi"}, nil, func(string) error {
		calls++
		if calls >= 2 {
			return stop
		}
		return nil
	})

	if err == nil {
		t.Fatal("Expected error after onChunk failure")
	}
	if calls != 2 {
		t.Errorf("Expected consumption to stop after 2 chunks, got %d", calls)
	}
}

func TestGenerateStreamWithoutDoneEvent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"chunk\",\"content\":\"partial\"}\n\n")
	}))
	defer server.Close()

	client := testClient("", server.URL)
	result, err := client.GenerateStream(context.Background(), nil, nil, models.Prompt{Role: "user", Content: "hi"}, nil, nil)
	if err != nil {
		t.Fatalf("GenerateStream failed: %v", err)
	}

	if result.Reply != "partial" {
		t.Errorf("Expected accumulated fallback reply, got %q", result.Reply)
	}
}
