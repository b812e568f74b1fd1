package integration

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nithya4005/app/internal/config"
	"github.com/nithya4005/app/internal/metrics"
	"github.com/nithya4005/app/internal/provider"
	"github.com/nithya4005/app/internal/web"
	"github.com/nithya4005/app/test/testutil"
)

const testAPIKey = "test-api-key-12345"

var testModels = []string{"model-a", "model-b", "model-c"}

func newTestServer(t *testing.T, apiKey string, gen provider.Generator) *httptest.Server {
	t.Helper()
	cfg := &config.Config{
		APIKey:      apiKey,
		ListenAddr:  ":0",
		Models:      testModels,
		MaxAttempts: 3,
		RetryDelay:  0,
		Temperature: 1.0,
	}
	srv := web.New(cfg, gen, metrics.Noop{}, metrics.Noop{})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postGenerate(t *testing.T, ts *httptest.Server, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/generate", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, result
}

func getJSON(t *testing.T, ts *httptest.Server, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, result
}

func TestGenerate_BlankPrompt(t *testing.T) {
	gen := testutil.NewScriptedGenerator()
	ts := newTestServer(t, testAPIKey, gen)

	for _, body := range []string{`{"prompt":""}`, `{"prompt":"   "}`, `{}`} {
		resp, result := postGenerate(t, ts, body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %s: expected 400, got %d", body, resp.StatusCode)
		}
		if result["message"] == "" {
			t.Errorf("body %s: expected a human-readable message", body)
		}
	}
	if gen.TotalCalls() != 0 {
		t.Errorf("blank prompts must not reach the provider, got %d calls", gen.TotalCalls())
	}
}

func TestMissingKey_AllAPIRoutesDegrade(t *testing.T) {
	gen := testutil.NewScriptedGenerator()
	ts := newTestServer(t, "", gen)

	resp, result := postGenerate(t, ts, `{"prompt":"a red square"}`)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("generate: expected 500, got %d", resp.StatusCode)
	}
	if loaded, _ := result["keyLoaded"].(bool); loaded {
		t.Error("generate: expected keyLoaded false")
	}

	for _, path := range []string{"/api/list-models", "/api/test-key", "/api/models"} {
		resp, result := getJSON(t, ts, path)
		if resp.StatusCode != http.StatusInternalServerError {
			t.Errorf("%s: expected 500, got %d", path, resp.StatusCode)
		}
		if loaded, _ := result["keyLoaded"].(bool); loaded {
			t.Errorf("%s: expected keyLoaded false", path)
		}
	}

	if gen.TotalCalls() != 0 {
		t.Errorf("no outbound call may happen without a key, got %d", gen.TotalCalls())
	}
}

func TestGenerate_QuotaFallbackToThirdCandidate(t *testing.T) {
	gen := testutil.NewScriptedGenerator()
	gen.Script("model-a", testutil.Script{Err: testutil.QuotaError(0)})
	gen.Script("model-b", testutil.Script{Err: testutil.QuotaError(0)})
	gen.Script("model-c", testutil.Script{Result: testutil.ImageResult("image/png", "AAAA")})
	ts := newTestServer(t, testAPIKey, gen)

	resp, result := postGenerate(t, ts, `{"prompt":"a red square"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", resp.StatusCode, result)
	}
	if success, _ := result["success"].(bool); !success {
		t.Error("expected success true")
	}
	if got := result["image"]; got != "data:image/png;base64,AAAA" {
		t.Errorf("unexpected data URI: %v", got)
	}
	if got := result["prompt"]; got != "a red square" {
		t.Errorf("expected the prompt echoed back, got %v", got)
	}
	if got := result["model"]; got != "model-c" {
		t.Errorf("expected model-c reported as the winner, got %v", got)
	}
	for _, model := range []string{"model-a", "model-b"} {
		if got := gen.Calls(model); got > 3 {
			t.Errorf("%s: retry budget exceeded, %d attempts", model, got)
		}
	}
}

func TestGenerate_TextOnlyIs501Truncated(t *testing.T) {
	gen := testutil.NewScriptedGenerator()
	gen.Script("model-a", testutil.Script{Result: testutil.TextResult(strings.Repeat("x", 2000))})
	ts := newTestServer(t, testAPIKey, gen)

	resp, result := postGenerate(t, ts, `{"prompt":"a red square"}`)
	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", resp.StatusCode)
	}
	text, _ := result["response"].(string)
	if len(text) > 500 {
		t.Errorf("expected the text truncated to at most 500 chars, got %d", len(text))
	}
	if _, ok := result["suggestion"]; !ok {
		t.Error("expected a suggestion field")
	}
}

func TestGenerate_AllNotFound(t *testing.T) {
	gen := testutil.NewScriptedGenerator()
	ts := newTestServer(t, testAPIKey, gen)

	resp, result := postGenerate(t, ts, `{"prompt":"a red square"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if _, ok := result["suggestion"]; !ok {
		t.Error("expected a suggestion to check model availability")
	}
	for _, model := range testModels {
		if got := gen.Calls(model); got != 1 {
			t.Errorf("%s: 404 must not be retried, got %d attempts", model, got)
		}
	}
}

func TestGenerate_QuotaOnAllCandidates(t *testing.T) {
	gen := testutil.NewScriptedGenerator()
	for _, model := range testModels {
		gen.Script(model, testutil.Script{Err: testutil.QuotaError(30)})
	}
	ts := newTestServer(t, testAPIKey, gen)

	resp, result := postGenerate(t, ts, `{"prompt":"a red square"}`)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
	if got, _ := result["retryAfter"].(float64); got != 30 {
		t.Errorf("expected the provider's 30s retry hint, got %v", result["retryAfter"])
	}
}

func TestGenerate_InvalidKey(t *testing.T) {
	gen := testutil.NewScriptedGenerator()
	for _, model := range testModels {
		gen.Script(model, testutil.Script{Err: &provider.Error{
			Kind:    provider.KindUnauthorized,
			Status:  401,
			Message: "API key not valid. Please pass a valid API key.",
		}})
	}
	ts := newTestServer(t, testAPIKey, gen)

	resp, result := postGenerate(t, ts, `{"prompt":"a red square"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if got := result["error"]; got != "invalid_api_key" {
		t.Errorf("unexpected error code: %v", got)
	}
}

func TestGenerate_Idempotent(t *testing.T) {
	gen := testutil.NewScriptedGenerator()
	gen.Script("model-a", testutil.Script{Result: testutil.ImageResult("image/png", "AAAA")})
	ts := newTestServer(t, testAPIKey, gen)

	_, first := postGenerate(t, ts, `{"prompt":"same prompt"}`)
	_, second := postGenerate(t, ts, `{"prompt":"same prompt"}`)
	for _, key := range []string{"success", "image", "prompt", "model"} {
		if first[key] != second[key] {
			t.Errorf("field %s differs across identical requests: %v vs %v", key, first[key], second[key])
		}
	}
}

func TestTestKey_ReportsWorkingModel(t *testing.T) {
	gen := testutil.NewScriptedGenerator()
	gen.Script("model-a", testutil.Script{Err: testutil.QuotaError(0)})
	gen.Script("model-b", testutil.Script{Result: testutil.TextResult("Hello! The key works.")})
	ts := newTestServer(t, testAPIKey, gen)

	resp, result := getJSON(t, ts, "/api/test-key")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", resp.StatusCode, result)
	}
	if got := result["workingModel"]; got != "model-b" {
		t.Errorf("expected model-b reported, got %v", got)
	}
	if got, _ := result["keyPreview"].(string); !strings.HasPrefix(got, "test-api") {
		t.Errorf("expected a redacted key preview, got %q", got)
	}
}

func TestListModels(t *testing.T) {
	gen := testutil.NewScriptedGenerator()
	gen.SetCatalog(
		provider.ModelInfo{Name: "model-a", DisplayName: "Model A"},
		provider.ModelInfo{Name: "model-b", DisplayName: "Model B"},
	)
	ts := newTestServer(t, testAPIKey, gen)

	resp, result := getJSON(t, ts, "/api/list-models")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got, _ := result["totalModels"].(float64); got != 2 {
		t.Errorf("expected 2 models, got %v", result["totalModels"])
	}
}

func TestModels_StaticList(t *testing.T) {
	gen := testutil.NewScriptedGenerator()
	ts := newTestServer(t, testAPIKey, gen)

	resp, result := getJSON(t, ts, "/api/models")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	models, _ := result["modelsToTry"].([]any)
	if len(models) != len(testModels) {
		t.Fatalf("expected %d candidates, got %d", len(testModels), len(models))
	}
	if gen.TotalCalls() != 0 {
		t.Errorf("the static list must not touch the provider, got %d calls", gen.TotalCalls())
	}
}

func TestStaticLandingPage(t *testing.T) {
	gen := testutil.NewScriptedGenerator()
	ts := newTestServer(t, testAPIKey, gen)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), "generate-form") {
		t.Error("expected the landing page to contain the prompt form")
	}
}
