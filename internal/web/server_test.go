package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"inspection-bot/internal/domain"
	"inspection-bot/internal/integrations/telegram"
	"inspection-bot/internal/session"
)

type fakeSubmitter struct {
	mu      sync.Mutex
	updates []telegram.Update
}

func (f *fakeSubmitter) Submit(u telegram.Update) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, u)
}

type fakeArchiver struct {
	label string
	rows  []domain.Row
	err   error
	unit  string
}

func (f *fakeArchiver) Archive(_ context.Context, unit string) (string, []domain.Row, error) {
	f.unit = unit
	return f.label, f.rows, f.err
}

func mustServer(t *testing.T, sub *fakeSubmitter, secret string, opts ...Option) *Server {
	t.Helper()
	s, err := NewServer(sub, secret, opts...)
	require.NoError(t, err)
	return s
}

const archiveToken = "arch-token"

func archiveRequest(target string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("Authorization", "Bearer "+archiveToken)
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(nil, "")
	require.Error(t, err)

	_, err = NewServer(&fakeSubmitter{}, "", WithArchive(&fakeArchiver{}, " "))
	require.ErrorContains(t, err, "archive token")
}

func TestShutdown_BeforeStart(t *testing.T) {
	s := mustServer(t, &fakeSubmitter{}, "", WithAddr("127.0.0.1:0"))
	require.NoError(t, s.Shutdown(context.Background()))
	require.ErrorIs(t, s.Start(), http.ErrServerClosed)
}

func TestHealthz(t *testing.T) {
	s := mustServer(t, &fakeSubmitter{}, "")
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestWebhook_QueuesUpdate(t *testing.T) {
	sub := &fakeSubmitter{}
	s := mustServer(t, sub, "s3cret")

	body := `{"update_id":10,"message":{"message_id":1,"chat":{"id":42},"text":"/start"}}`
	req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(body))
	req.Header.Set(telegram.SecretHeader, "s3cret")
	rec := serve(s, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sub.updates, 1)
	require.Equal(t, int64(42), sub.updates[0].ChatID())
	require.Equal(t, "/start", sub.updates[0].Message.Text)
}

func TestWebhook_RejectsBadSecret(t *testing.T) {
	sub := &fakeSubmitter{}
	s := mustServer(t, sub, "s3cret")

	req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(`{}`))
	req.Header.Set(telegram.SecretHeader, "wrong")
	rec := serve(s, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, sub.updates)
}

func TestWebhook_MalformedBody(t *testing.T) {
	sub := &fakeSubmitter{}
	s := mustServer(t, sub, "")

	rec := serve(s, httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(`{not json`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, sub.updates)
}

func TestArchive(t *testing.T) {
	arch := &fakeArchiver{label: "B5", rows: []domain.Row{{Date: "2025-01-01 10:00:00", UnitLabel: "1", DefectText: "leak"}}}
	s := mustServer(t, &fakeSubmitter{}, "", WithArchive(arch, archiveToken))

	rec := serve(s, archiveRequest("/api/archive?unit=b5"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "b5", arch.unit)

	var got archiveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "B5", got.Unit)
	require.Len(t, got.Rows, 1)
	require.Equal(t, "leak", got.Rows[0].DefectText)
}

func TestArchive_Errors(t *testing.T) {
	s := mustServer(t, &fakeSubmitter{}, "")
	rec := serve(s, archiveRequest("/api/archive?unit=1"))
	require.Equal(t, http.StatusNotFound, rec.Code)

	arch := &fakeArchiver{err: &session.Error{Code: session.ErrorUserInput, Reason: "Usage: /archive <unit>"}}
	s = mustServer(t, &fakeSubmitter{}, "", WithArchive(arch, archiveToken))
	rec = serve(s, archiveRequest("/api/archive"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "Usage")

	arch.err = errors.New("dynamo down")
	rec = serve(s, archiveRequest("/api/archive?unit=1"))
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.NotContains(t, rec.Body.String(), "dynamo")
}

func TestArchive_EmptyRowsIsArray(t *testing.T) {
	s := mustServer(t, &fakeSubmitter{}, "", WithArchive(&fakeArchiver{label: "12"}, archiveToken))
	rec := serve(s, archiveRequest("/api/archive?unit=12"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"unit":"12","rows":[]}`, rec.Body.String())
}

func TestArchive_RequiresToken(t *testing.T) {
	arch := &fakeArchiver{label: "46/2", rows: []domain.Row{{UnitLabel: "46/2", DefectText: "leak"}}}
	s := mustServer(t, &fakeSubmitter{}, "top-secret", WithArchive(arch, archiveToken))

	tests := []struct {
		name   string
		header string
	}{
		{name: "no header"},
		{name: "wrong token", header: "Bearer nope"},
		{name: "webhook secret", header: "Bearer top-secret"},
		{name: "no scheme", header: archiveToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/archive?unit=46/2", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := serve(s, req)
			require.Equal(t, http.StatusUnauthorized, rec.Code)
			require.NotContains(t, rec.Body.String(), "leak")
			require.Empty(t, arch.unit)
		})
	}
}
