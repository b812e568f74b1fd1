package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nithya4005/app/internal/config"
	apierrors "github.com/nithya4005/app/internal/errors"
	"github.com/nithya4005/app/internal/provider"
	"github.com/nithya4005/app/internal/relay"
)

// testPrompt is the cheap text probe used by /api/test-key.
const testPrompt = "Reply with a short greeting to confirm the API key works."

type handlers struct {
	cfg   *config.Config
	gen   provider.Generator
	relay *relay.Relay
}

type generateRequest struct {
	Prompt string `json:"prompt"`
}

// Generate serves POST /api/generate.
func (h *handlers) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.WriteJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "validation_error",
			"message": "request body must be JSON with a prompt field",
		})
		return
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		apierrors.WriteJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "validation_error",
			"message": "prompt is required",
		})
		return
	}
	if h.notConfigured(w) {
		return
	}

	out, err := h.relay.Generate(r.Context(), prompt)
	if err != nil {
		h.writeGenerateError(w, err)
		return
	}
	if out.Image == nil {
		apierrors.WriteJSON(w, http.StatusNotImplemented, map[string]any{
			"error":      "unsupported_model",
			"message":    "the model returned text instead of an image",
			"model":      out.Model,
			"response":   truncate(out.Text, 500),
			"suggestion": "the selected model may not support image generation",
		})
		return
	}

	slog.Info("image generated", "model", out.Model, "mime", out.Image.MIMEType)
	apierrors.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"image":   out.Image.DataURI(),
		"prompt":  prompt,
		"model":   out.Model,
	})
}

// writeGenerateError maps a classified relay failure to its status code and
// envelope.
func (h *handlers) writeGenerateError(w http.ResponseWriter, err error) {
	var perr *provider.Error
	if !errors.As(err, &perr) {
		perr = &provider.Error{Kind: provider.KindUnknown, Message: err.Error()}
	}

	switch perr.Kind {
	case provider.KindNotFound:
		apierrors.WriteJSON(w, http.StatusNotFound, map[string]any{
			"error":      "model_not_found",
			"message":    perr.Message,
			"suggestion": "check that the configured models are available to your API key",
		})
	case provider.KindQuota:
		retry := perr.RetryAfter
		if retry <= 0 {
			retry = 16 * time.Second
		}
		apierrors.WriteJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":      "quota_exceeded",
			"message":    perr.Message,
			"retryAfter": int(retry.Seconds()),
		})
	case provider.KindUnauthorized:
		apierrors.WriteJSON(w, http.StatusUnauthorized, map[string]any{
			"error":   "invalid_api_key",
			"message": perr.Message,
		})
	default:
		slog.Error("generation failed", "error", truncate(perr.Message, 200))
		apierrors.WriteJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   "generation_failed",
			"message": perr.Message,
		})
	}
}

// ListModels serves GET /api/list-models.
func (h *handlers) ListModels(w http.ResponseWriter, r *http.Request) {
	if h.notConfigured(w) {
		return
	}
	models, err := h.gen.Models(r.Context())
	if err != nil {
		apierrors.WriteJSON(w, http.StatusInternalServerError, map[string]any{
			"error":     "list_models_failed",
			"message":   err.Error(),
			"keyLoaded": true,
		})
		return
	}
	apierrors.WriteJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"models":      models,
		"totalModels": len(models),
	})
}

// TestKey serves GET /api/test-key: probes candidates with a text prompt
// until one answers.
func (h *handlers) TestKey(w http.ResponseWriter, r *http.Request) {
	if h.notConfigured(w) {
		return
	}

	var lastErr *provider.Error
	for _, model := range h.cfg.Models {
		res, err := h.gen.Generate(r.Context(), model, testPrompt)
		if err != nil {
			if !errors.As(err, &lastErr) {
				lastErr = &provider.Error{Kind: provider.KindUnknown, Message: err.Error()}
			}
			continue
		}
		reply := res.Text
		if res.Image != nil {
			reply = "(model answered with an image)"
		}
		apierrors.WriteJSON(w, http.StatusOK, map[string]any{
			"success":      true,
			"message":      "API key is valid",
			"workingModel": model,
			"testResponse": truncate(reply, 200),
			"keyLoaded":    true,
			"keyPreview":   h.cfg.KeyPreview(),
		})
		return
	}

	resp := map[string]any{
		"error":      "key_test_failed",
		"message":    "no candidate model accepted the API key",
		"keyLoaded":  true,
		"suggestion": "verify the key at https://aistudio.google.com/apikey and check model availability",
	}
	if lastErr != nil {
		resp["status"] = lastErr.Status
		resp["details"] = truncate(lastErr.Message, 300)
	}
	apierrors.WriteJSON(w, http.StatusInternalServerError, resp)
}

// Models serves GET /api/models: the static candidate list, no provider call.
func (h *handlers) Models(w http.ResponseWriter, _ *http.Request) {
	if h.notConfigured(w) {
		return
	}
	apierrors.WriteJSON(w, http.StatusOK, map[string]any{
		"message":         "models are tried in order until one produces an image",
		"modelsToTry":     h.cfg.Models,
		"availableModels": "GET /api/list-models for the live catalog",
	})
}

// Health serves GET /healthz.
func (h *handlers) Health(w http.ResponseWriter, _ *http.Request) {
	apierrors.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// notConfigured writes the degraded 500 response when no credential is
// loaded and reports whether it did so.
func (h *handlers) notConfigured(w http.ResponseWriter) bool {
	if h.cfg.KeyLoaded() && h.gen != nil {
		return false
	}
	apierrors.WriteJSON(w, http.StatusInternalServerError, map[string]any{
		"error":     "not_configured",
		"message":   "GEMINI_API_KEY is not set",
		"keyLoaded": false,
	})
	return true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
