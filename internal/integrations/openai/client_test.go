package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"inspection-bot/internal/domain"
)

type fakeTokens struct {
	val   string
	err   error
	names []string
}

func (f *fakeTokens) Token(_ context.Context, name string) (string, error) {
	f.names = append(f.names, name)
	return f.val, f.err
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(
		&fakeTokens{val: "sk-test"},
		"/inspection-bot",
		WithBaseURL(srv.URL),
		WithHTTPClient(&http.Client{Timeout: 2 * time.Second}),
	)
	require.NoError(t, err)
	return c
}

func okServer(t *testing.T, check func(r *http.Request, body map[string]any)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var body map[string]any
		require.NoError(t, json.Unmarshal(raw, &body))
		if check != nil {
			check(r, body)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"42"}}]}`))
	}))
}

func TestChatURL(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"https://api.openai.com/v1", "https://api.openai.com/v1/chat/completions"},
		{"https://api.openai.com/v1/", "https://api.openai.com/v1/chat/completions"},
		{"http://localhost:8080", "http://localhost:8080/v1/chat/completions"},
		{"", "https://api.openai.com/v1/chat/completions"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, chatURL(tc.base), "base=%q", tc.base)
	}
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(nil, "/inspection-bot")
	require.ErrorContains(t, err, "nil")
	_, err = NewClient(&fakeTokens{}, " / ")
	require.Error(t, err)

	c, err := NewClient(&fakeTokens{}, "/inspection-bot/")
	require.NoError(t, err)
	require.Equal(t, defaultBaseURL, c.baseURL)
	require.Equal(t, "/inspection-bot", c.paramPrefix)
}

func TestResolveAPIKey_FetchedOnce(t *testing.T) {
	tokens := &fakeTokens{val: "sk-from-ssm"}
	c, err := NewClient(tokens, "/inspection-bot")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		key, err := c.resolveAPIKey(context.Background())
		require.NoError(t, err)
		require.Equal(t, "sk-from-ssm", key)
	}
	require.Equal(t, []string{"/inspection-bot/open-ai-token"}, tokens.names)
}

func TestChat_TokenError(t *testing.T) {
	c, err := NewClient(&fakeTokens{err: errors.New("ssm unavailable")}, "/inspection-bot")
	require.NoError(t, err)
	_, err = c.Chat(context.Background(), "gpt-mock", nil, "", nil)
	require.ErrorContains(t, err, "ssm unavailable")
}

func TestChat_WithSchema(t *testing.T) {
	srv := okServer(t, func(r *http.Request, body map[string]any) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.Equal(t, "gpt-mock", body["model"])
		require.EqualValues(t, 0, body["temperature"])
		rf := body["response_format"].(map[string]any)
		require.Equal(t, "json_schema", rf["type"])
		js := rf["json_schema"].(map[string]any)
		require.Equal(t, "report", js["name"])
		require.Equal(t, true, js["strict"])
		require.Equal(t, "object", js["schema"].(map[string]any)["type"])
	})
	defer srv.Close()

	out, err := newTestClient(t, srv).Chat(context.Background(), "gpt-mock",
		[]domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}},
		"report", json.RawMessage(`{"type":"object"}`))
	require.NoError(t, err)
	require.Equal(t, "42", out)
}

func TestChat_WithoutSchemaOmitsResponseFormat(t *testing.T) {
	srv := okServer(t, func(_ *http.Request, body map[string]any) {
		_, ok := body["response_format"]
		require.False(t, ok)
	})
	defer srv.Close()

	_, err := newTestClient(t, srv).Chat(context.Background(), "gpt-mock", nil, "", nil)
	require.NoError(t, err)
}

func TestChat_EmptyModel(t *testing.T) {
	c, err := NewClient(&fakeTokens{val: "sk"}, "/inspection-bot")
	require.NoError(t, err)
	_, err = c.Chat(context.Background(), "", nil, "", nil)
	require.ErrorContains(t, err, "model")
}

func TestChat_StatusErrors(t *testing.T) {
	for _, code := range []int{400, 429, 500} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
			_, _ = w.Write([]byte(`{"error":"nope"}`))
		}))
		_, err := newTestClient(t, srv).Chat(context.Background(), "gpt-mock", nil, "", nil)
		srv.Close()

		var statusErr *HTTPStatusError
		require.ErrorAs(t, err, &statusErr)
		require.Equal(t, code, statusErr.HTTPStatusCode())
		require.Contains(t, err.Error(), "unexpected status")
	}
}

func TestChat_BadBodies(t *testing.T) {
	cases := map[string]string{
		"not-a-json":     "decode response",
		`{"choices":[]}`: "no choices",
	}
	for body, want := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		_, err := newTestClient(t, srv).Chat(context.Background(), "gpt-mock", nil, "", nil)
		srv.Close()
		require.ErrorContains(t, err, want)
	}
}

func TestChat_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	c.httpClient = &http.Client{Timeout: 50 * time.Millisecond}
	_, err := c.Chat(context.Background(), "gpt-mock", nil, "", nil)
	require.ErrorContains(t, err, "request failed")
}
