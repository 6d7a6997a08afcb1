package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/promptroute/internal/config"
	"github.com/tributary-ai/promptroute/internal/engine"
	"github.com/tributary-ai/promptroute/internal/routeerror"
)

const gatewayTestConfigJSON = `{
	"version": "1.0.0",
	"providers": {"openai-main": {"type": "openai"}},
	"responseSchemas": {},
	"prompts": {
		"greet": {
			"description": "greets a user",
			"variants": {
				"v1": {
					"provider": "openai-main",
					"model": "gpt-4o-mini",
					"default": true,
					"parameters": {},
					"messages": [{"role": "user", "content": {"template": "Hello {{ name }}"}}],
					"responseFormat": {"type": "raw_text"}
				}
			},
			"routing": {"rules": [{"target": "v1"}]}
		}
	}
}`

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "routes.json")
	if err := os.WriteFile(path, []byte(gatewayTestConfigJSON), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	eng := engine.New(engine.RuntimeConfig{ConfigPath: path})
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	cfg := &config.Config{
		Auth: config.AuthConfig{APIKeys: []string{"test-api-key"}},
	}

	gw, err := New(cfg, eng, logger)
	if err != nil {
		t.Fatalf("failed to construct gateway: %v", err)
	}
	return gw
}

func TestHealthEndpoint_RequiresNoAuth(t *testing.T) {
	gw := newTestGateway(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	gw.routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /health, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetTemplate_MissingAuthIsUnauthorized(t *testing.T) {
	gw := newTestGateway(t)
	body, _ := json.Marshal(map[string]interface{}{"promptId": "greet", "variantId": "v1"})
	req := httptest.NewRequest(http.MethodPost, "/v1/templates", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	gw.routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", rec.Code)
	}
}

func TestGetTemplate_ValidAPIKeyRendersTemplate(t *testing.T) {
	gw := newTestGateway(t)
	body, _ := json.Marshal(map[string]interface{}{
		"promptId":  "greet",
		"variantId": "v1",
		"variables": map[string]interface{}{"name": "Ada"},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/templates", bytes.NewReader(body))
	req.Header.Set("X-API-Key", "test-api-key")
	rec := httptest.NewRecorder()
	gw.routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if _, ok := out["messages"]; !ok {
		t.Errorf("expected a messages field in the response, got %v", out)
	}
}

func TestGetTemplate_ScopedAPIKeyRejectsUnauthorizedPrompt(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "routes.json")
	if err := os.WriteFile(path, []byte(gatewayTestConfigJSON), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	eng := engine.New(engine.RuntimeConfig{ConfigPath: path})
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	cfg := &config.Config{
		Auth: config.AuthConfig{
			APIKeys: []string{"scoped-key"},
			APIKeyPrompts: map[string][]string{
				"scoped-key": {"some-other-prompt"},
			},
		},
	}
	gw, err := New(cfg, eng, logger)
	if err != nil {
		t.Fatalf("failed to construct gateway: %v", err)
	}

	body, _ := json.Marshal(map[string]interface{}{"promptId": "greet", "variantId": "v1"})
	req := httptest.NewRequest(http.MethodPost, "/v1/templates", bytes.NewReader(body))
	req.Header.Set("X-API-Key", "scoped-key")
	rec := httptest.NewRecorder()
	gw.routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for a prompt outside the key's scope, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetTemplate_UnknownPromptMapsTo502(t *testing.T) {
	gw := newTestGateway(t)
	body, _ := json.Marshal(map[string]interface{}{"promptId": "ghost", "variantId": "v1"})
	req := httptest.NewRequest(http.MethodPost, "/v1/templates", bytes.NewReader(body))
	req.Header.Set("X-API-Key", "test-api-key")
	rec := httptest.NewRecorder()
	gw.routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 for an execution-error (unknown prompt), got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetTemplate_MalformedJSONMapsTo400(t *testing.T) {
	gw := newTestGateway(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/templates", bytes.NewReader([]byte("{not json")))
	req.Header.Set("X-API-Key", "test-api-key")
	rec := httptest.NewRecorder()
	gw.routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed JSON, got %d", rec.Code)
	}
}

func TestWriteError_MapsKindsToStatusCodes(t *testing.T) {
	cases := []struct {
		kind   routeerror.Kind
		status int
	}{
		{routeerror.KindConfiguration, http.StatusBadRequest},
		{routeerror.KindTemplate, http.StatusUnprocessableEntity},
		{routeerror.KindExecution, http.StatusBadGateway},
		{routeerror.KindProvider, http.StatusBadGateway},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		writeError(rec, routeerror.New(c.kind, "test-code", "test message", nil))
		if rec.Code != c.status {
			t.Errorf("kind %s: expected status %d, got %d", c.kind, c.status, rec.Code)
		}
	}
}

func TestWriteError_UnclassifiedErrorMapsTo500(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, os.ErrNotExist)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 for an unclassified error, got %d", rec.Code)
	}
}
