package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaClient_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "mistral", req.Model)
		assert.Equal(t, "json", req.Format)
		assert.False(t, req.Stream)
		assert.EqualValues(t, 0, req.Options["temperature"])
		assert.EqualValues(t, 64, req.Options["num_predict"])

		_ = json.NewEncoder(w).Encode(generateResponse{Response: `{"ok":true}`, Done: true})
	}))
	defer server.Close()

	client := NewOllamaClient(WithBaseURL(server.URL+"/"), WithModel("llama3.2"))
	out, err := client.Generate(context.Background(), "hi", GenerateOptions{
		Model:     "mistral",
		MaxTokens: 64,
		JSON:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)
}

func TestOllamaClient_Generate_DefaultModel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3.2", req.Model)
		assert.Empty(t, req.Format)
		_ = json.NewEncoder(w).Encode(generateResponse{Response: "hello"})
	}))
	defer server.Close()

	client := NewOllamaClient(WithBaseURL(server.URL))
	out, err := client.Generate(context.Background(), "hi", GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, "llama3.2", client.Model())
}

func TestOllamaClient_Generate_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewOllamaClient(WithBaseURL(server.URL))
	_, err := client.Generate(context.Background(), "hi", GenerateOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}
