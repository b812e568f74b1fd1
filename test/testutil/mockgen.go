package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/nithya4005/app/internal/provider"
)

// Script is the canned behavior for one model. When Err is set, calls fail
// with it; FailCount > 0 limits the failures to the first FailCount calls,
// after which Result is returned.
type Script struct {
	Result    *provider.Result
	Err       *provider.Error
	FailCount int
}

// ScriptedGenerator implements provider.Generator with per-model canned
// responses and records every call. Models with no script fail with a
// not-found error, mirroring how the provider reacts to unknown model IDs.
type ScriptedGenerator struct {
	mu      sync.Mutex
	scripts map[string]Script
	calls   map[string]int
	total   int
	catalog []provider.ModelInfo
}

func NewScriptedGenerator() *ScriptedGenerator {
	return &ScriptedGenerator{
		scripts: make(map[string]Script),
		calls:   make(map[string]int),
	}
}

// Script registers the canned behavior for one model.
func (g *ScriptedGenerator) Script(model string, s Script) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scripts[model] = s
}

// SetCatalog sets what Models returns.
func (g *ScriptedGenerator) SetCatalog(models ...provider.ModelInfo) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.catalog = models
}

// Calls returns how many times Generate was invoked for model.
func (g *ScriptedGenerator) Calls(model string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[model]
}

// TotalCalls returns how many times Generate was invoked across all models.
func (g *ScriptedGenerator) TotalCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.total
}

func (g *ScriptedGenerator) Generate(_ context.Context, model, _ string) (*provider.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[model]++
	g.total++

	s, ok := g.scripts[model]
	if !ok {
		return nil, &provider.Error{
			Kind:    provider.KindNotFound,
			Status:  404,
			Message: "models/" + model + " is not found for API version v1beta",
		}
	}
	if s.Err != nil && (s.FailCount == 0 || g.calls[model] <= s.FailCount) {
		return nil, s.Err
	}
	if s.Result == nil {
		return &provider.Result{}, nil
	}
	return s.Result, nil
}

func (g *ScriptedGenerator) Models(context.Context) ([]provider.ModelInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.catalog, nil
}

// ImageResult is a convenience constructor for image scripts.
func ImageResult(mime, base64Data string) *provider.Result {
	return &provider.Result{Image: &provider.ImagePayload{MIMEType: mime, Data: base64Data}}
}

// TextResult is a convenience constructor for text-only scripts.
func TextResult(text string) *provider.Result {
	return &provider.Result{Text: text}
}

// QuotaError builds a quota failure with the given retry hint in seconds
// (0 leaves the hint unset).
func QuotaError(retryAfterSeconds int) *provider.Error {
	e := &provider.Error{
		Kind:    provider.KindQuota,
		Status:  429,
		Message: "Resource has been exhausted (e.g. check quota).",
	}
	if retryAfterSeconds > 0 {
		e.RetryAfter = time.Duration(retryAfterSeconds) * time.Second
	}
	return e
}
