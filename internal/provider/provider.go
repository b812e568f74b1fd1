// Package provider defines the narrow boundary between the relay and a
// generative-AI backend. The relay only ever sees Result values and typed
// *Error failures, so it runs identically against the real Gemini client
// and the scripted stub used in tests.
package provider

import (
	"context"
	"fmt"
	"time"
)

// Kind classifies a provider failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindQuota
	KindNotFound
	KindBadRequest
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindQuota:
		return "quota"
	case KindNotFound:
		return "not_found"
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// ImagePayload is one generated image: a MIME type plus base64-encoded bytes.
type ImagePayload struct {
	MIMEType string
	Data     string
}

// DataURI renders the payload as a string usable directly as an <img> source.
func (p ImagePayload) DataURI() string {
	return fmt.Sprintf("data:%s;base64,%s", p.MIMEType, p.Data)
}

// Result is a successful provider response. Image is set when the model
// produced an image part; otherwise Text carries whatever prose it answered
// with instead.
type Result struct {
	Image *ImagePayload
	Text  string
}

// Error is a classified provider failure.
type Error struct {
	Kind    Kind
	Status  int // HTTP status reported by the provider, 0 if none
	Message string
	// RetryAfter is the provider's suggested pause, quota errors only.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// ModelInfo describes one entry in the provider's model catalog.
type ModelInfo struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"displayName,omitempty"`
	Actions     []string `json:"supportedActions,omitempty"`
}

// Generator is implemented by the Gemini-backed client and by test stubs.
type Generator interface {
	// Generate runs a single generation call against the named model.
	// A non-nil error is always a *Error.
	Generate(ctx context.Context, model, prompt string) (*Result, error)

	// Models lists the provider's model catalog.
	Models(ctx context.Context) ([]ModelInfo, error)
}
