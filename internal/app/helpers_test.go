package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sheetkeeper/api/internal/auth"
	"sheetkeeper/api/internal/authpw"
	"sheetkeeper/api/internal/character"
	"sheetkeeper/api/internal/docstore"
	"sheetkeeper/api/internal/engine"
	"sheetkeeper/api/internal/export"
)

// fakeStoreForHealth wraps a memory store with a controllable Ping.
type fakeStoreForHealth struct {
	docstore.Store
	pingFn func(context.Context) error
}

func (f *fakeStoreForHealth) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

type fakePortraits struct {
	uploadFn func(ctx context.Context, ownerID, documentID, contentType string, body io.Reader, size int64) (string, error)
}

func (f *fakePortraits) Upload(ctx context.Context, ownerID, documentID, contentType string, body io.Reader, size int64) (string, error) {
	return f.uploadFn(ctx, ownerID, documentID, contentType, body, size)
}

type fakeExporter struct {
	exportFn func(ctx context.Context, doc character.Document, format export.Format) (*export.Result, error)
}

func (f *fakeExporter) Export(ctx context.Context, doc character.Document, format export.Format) (*export.Result, error) {
	return f.exportFn(ctx, doc, format)
}

type testEnv struct {
	store    docstore.Store
	registry *engine.Registry
	service  *Service
	server   *HTTPServer
}

func newTestEnv(t *testing.T, deps Deps) *testEnv {
	t.Helper()
	if deps.Store == nil {
		deps.Store = docstore.NewMemoryStore()
	}
	if deps.Registry == nil {
		deps.Registry = engine.NewRegistry(deps.Store, engine.Options{Debounce: 20 * time.Millisecond, OpenTimeout: time.Second})
	}
	if deps.Issuer == nil {
		deps.Issuer = auth.NewIssuer("test-secret", time.Hour)
	}
	if deps.Accounts == nil {
		deps.Accounts = authpw.NewService(deps.Store)
	}
	t.Cleanup(func() { _ = deps.Registry.Close() })
	svc := New(deps)
	return &testEnv{store: deps.Store, registry: deps.Registry, service: svc, server: NewHTTPServer(svc, "*")}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, req)
	return rr
}

// signUp creates an account and returns its bearer token.
func (e *testEnv) signUp(t *testing.T, email, name string) string {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/auth/signup", "", map[string]any{
		"email": email, "password": "correct-horse", "displayName": name,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup %s: status %d body=%s", email, rr.Code, rr.Body.String())
	}
	var grant struct {
		AccessToken string `json:"accessToken"`
	}
	decodeJSON(t, rr, &grant)
	if grant.AccessToken == "" {
		t.Fatalf("signup %s: empty token", email)
	}
	return grant.AccessToken
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), target); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
}

func decodeState(t *testing.T, rr *httptest.ResponseRecorder) engine.State {
	t.Helper()
	var state engine.State
	decodeJSON(t, rr, &state)
	return state
}
