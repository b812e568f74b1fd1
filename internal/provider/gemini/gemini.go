// Package gemini implements provider.Generator on top of the Gemini API.
package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/nithya4005/app/internal/provider"
)

// defaultRetryAfter is the quota retry hint used when the provider's error
// details carry no RetryInfo.
const defaultRetryAfter = 16 * time.Second

// Client calls the Gemini API.
type Client struct {
	client      *genai.Client
	temperature float32
}

// New constructs a Client with the given API key.
func New(ctx context.Context, apiKey string, temperature float32) (*Client, error) {
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &Client{client: c, temperature: temperature}, nil
}

// Generate runs one generation call and maps the SDK response onto the
// narrow provider.Result shape.
func (c *Client) Generate(ctx context.Context, model, prompt string) (*provider.Result, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:        genai.Ptr(c.temperature),
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}
	res, err := c.client.Models.GenerateContent(ctx, model, genai.Text(prompt), cfg)
	if err != nil {
		return nil, Classify(err)
	}
	return extractResult(res), nil
}

// Models lists the provider's model catalog.
func (c *Client) Models(ctx context.Context) ([]provider.ModelInfo, error) {
	var out []provider.ModelInfo
	for m, err := range c.client.Models.All(ctx) {
		if err != nil {
			return nil, Classify(err)
		}
		out = append(out, provider.ModelInfo{
			Name:        strings.TrimPrefix(m.Name, "models/"),
			DisplayName: m.DisplayName,
			Actions:     m.SupportedActions,
		})
	}
	return out, nil
}

// extractResult returns the first image part of the response, or the
// concatenated text parts when no image is present.
func extractResult(res *genai.GenerateContentResponse) *provider.Result {
	var text strings.Builder
	for _, cand := range res.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil {
				continue
			}
			if part.InlineData != nil && strings.HasPrefix(part.InlineData.MIMEType, "image/") {
				return &provider.Result{Image: &provider.ImagePayload{
					MIMEType: part.InlineData.MIMEType,
					Data:     base64.StdEncoding.EncodeToString(part.InlineData.Data),
				}}
			}
			if part.Text != "" {
				text.WriteString(part.Text)
			}
		}
	}
	return &provider.Result{Text: text.String()}
}

// Classify maps an SDK error onto a typed *provider.Error. The API mixes
// status codes with substring-matched message text, so both are consulted.
func Classify(err error) *provider.Error {
	var perr *provider.Error
	if errors.As(err, &perr) {
		return perr
	}

	status := 0
	msg := err.Error()
	var details []map[string]any
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		status = apiErr.Code
		if apiErr.Message != "" {
			msg = apiErr.Message
		}
		details = apiErr.Details
	}

	lower := strings.ToLower(msg)
	switch {
	case status == 429 || strings.Contains(lower, "quota"):
		return &provider.Error{
			Kind:       provider.KindQuota,
			Status:     429,
			Message:    msg,
			RetryAfter: retryAfter(details),
		}
	case status == 404 || strings.Contains(lower, "not found"):
		return &provider.Error{Kind: provider.KindNotFound, Status: 404, Message: msg}
	case status == 400:
		return &provider.Error{Kind: provider.KindBadRequest, Status: 400, Message: msg}
	case status == 401 || strings.Contains(lower, "api key"):
		return &provider.Error{Kind: provider.KindUnauthorized, Status: 401, Message: msg}
	}
	return &provider.Error{Kind: provider.KindUnknown, Status: status, Message: msg}
}

// retryAfter pulls the suggested delay out of a google.rpc.RetryInfo detail.
func retryAfter(details []map[string]any) time.Duration {
	for _, d := range details {
		t, _ := d["@type"].(string)
		if !strings.HasSuffix(t, "google.rpc.RetryInfo") {
			continue
		}
		if raw, ok := d["retryDelay"].(string); ok {
			if dur, err := time.ParseDuration(raw); err == nil && dur > 0 {
				return dur
			}
		}
	}
	return defaultRetryAfter
}
