package textgen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGenerateSendsPromptAndReturnsText(t *testing.T) {
	var got generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(generateResponse{Text: "  Stand up more often.\n"})
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "secret", "test-model", time.Second, zap.NewNop())
	require.NoError(t, err)

	text, err := client.Generate(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, "Stand up more often.", text)
	assert.Equal(t, generateRequest{Model: "test-model", Prompt: "hello"}, got)
}

func TestGenerateFailuresAreUnavailable(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{name: "server error", handler: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"quota exceeded"}`))
		}},
		{name: "malformed body", handler: func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		}},
		{name: "empty text", handler: func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"text":"   "}`))
		}},
		{name: "timeout", handler: func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(300 * time.Millisecond)
			_, _ = w.Write([]byte(`{"text":"late"}`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client, err := NewClient(server.URL, "", "m", 100*time.Millisecond, zap.NewNop())
			require.NoError(t, err)

			_, err = client.Generate(context.Background(), "p")
			assert.ErrorIs(t, err, ErrUnavailable)
		})
	}
}

func TestGenerateReturnsContextError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "", "m", 5*time.Second, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err = client.Generate(ctx, "p")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewClientRejectsBadEndpoint(t *testing.T) {
	_, err := NewClient("ftp://example.com", "", "m", time.Second, zap.NewNop())
	assert.Error(t, err)
}

func TestUnavailableAlwaysFails(t *testing.T) {
	text, err := Unavailable{}.Generate(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Empty(t, text)
}
