// Package relay implements the model-fallback loop: an ordered list of
// candidate models is tried until one produces a response, with bounded
// retry on quota errors for the candidate that hit the limit.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/nithya4005/app/internal/metrics"
	"github.com/nithya4005/app/internal/provider"
)

// promptTemplate wraps the user's prompt into the instruction sent upstream.
const promptTemplate = "Generate an image: %s"

// Config carries the fallback-loop knobs.
type Config struct {
	// Candidates is the ordered list of model IDs, consulted front to back.
	Candidates []string
	// MaxAttempts is the total number of calls per candidate on quota errors.
	MaxAttempts int
	// RetryDelay is the pause between quota retries. Zero is valid and makes
	// retries immediate, which tests rely on.
	RetryDelay time.Duration
}

// Outcome is the terminal result of one relay run. Image is set when the
// winning model produced an image part; Text carries its answer otherwise.
type Outcome struct {
	Model string
	Image *provider.ImagePayload
	Text  string
}

// Relay runs the fallback loop. It holds no per-request state, so a single
// Relay serves concurrent requests.
type Relay struct {
	gen provider.Generator
	cfg Config
	gm  metrics.GenerationMetrics
	log *slog.Logger
}

func New(gen provider.Generator, cfg Config, gm metrics.GenerationMetrics, log *slog.Logger) *Relay {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if gm == nil {
		gm = metrics.Noop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Relay{gen: gen, cfg: cfg, gm: gm, log: log}
}

// Generate tries each candidate in order and returns the first response.
// A non-nil error is always a *provider.Error. When every candidate fails,
// a remembered quota error is surfaced only if no non-quota failure was ever
// seen; otherwise the last non-quota error wins.
func (r *Relay) Generate(ctx context.Context, prompt string) (*Outcome, error) {
	full := fmt.Sprintf(promptTemplate, prompt)

	var quotaErr, lastErr *provider.Error
	for _, model := range r.cfg.Candidates {
		res, err := r.tryCandidate(ctx, model, full)
		if err == nil {
			r.log.Info("model succeeded", "model", model)
			outcome := "image"
			if res.Image == nil {
				outcome = "text"
			}
			r.gm.IncGeneration(model, outcome)
			return &Outcome{Model: model, Image: res.Image, Text: res.Text}, nil
		}

		perr := asProviderError(err)
		r.gm.IncGeneration(model, "error")
		if perr.Kind == provider.KindQuota {
			quotaErr = perr
			r.log.Warn("quota exhausted, moving to next model", "model", model)
			continue
		}
		lastErr = perr
		r.log.Warn("model failed",
			"model", model,
			"kind", perr.Kind.String(),
			"error", truncate(perr.Message, 200),
		)
	}

	switch {
	case lastErr != nil:
		return nil, lastErr
	case quotaErr != nil:
		return nil, quotaErr
	}
	return nil, &provider.Error{
		Kind:    provider.KindNotFound,
		Status:  404,
		Message: "no image generation model found",
	}
}

// tryCandidate issues up to MaxAttempts calls against one model. Only quota
// errors are retried; everything else is permanent and moves the loop on.
func (r *Relay) tryCandidate(ctx context.Context, model, prompt string) (*provider.Result, error) {
	attempt := 0
	op := func() (*provider.Result, error) {
		attempt++
		res, err := r.gen.Generate(ctx, model, prompt)
		if err == nil {
			return res, nil
		}
		perr := asProviderError(err)
		if perr.Kind != provider.KindQuota {
			return nil, backoff.Permanent(perr)
		}
		if attempt < r.cfg.MaxAttempts {
			r.log.Warn("quota error, retrying candidate",
				"model", model,
				"attempt", attempt,
				"delay", r.cfg.RetryDelay,
			)
		}
		return nil, perr
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(r.cfg.RetryDelay)),
		backoff.WithMaxTries(uint(r.cfg.MaxAttempts)),
	)
}

func asProviderError(err error) *provider.Error {
	var perr *provider.Error
	if errors.As(err, &perr) {
		return perr
	}
	return &provider.Error{Kind: provider.KindUnknown, Message: err.Error()}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
