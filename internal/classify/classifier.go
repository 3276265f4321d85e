// Package classify turns raw ticket text into a structured, validated intent
// record, tolerating model and provider instability. Classification is the
// least reliable step in the pipeline, so every failure degrades to the safe
// default (not_cancellation) and routes the ticket to human review instead
// of blocking the run.
package classify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cancelbot/internal/config"
	"cancelbot/internal/logging"
)

// systemPrompt mandates a single bare JSON object with exactly the five
// classification fields.
const systemPrompt = `You are a precise CX triage helper.
Respond with ONLY a single JSON object (no prose, no code fences), with keys:
- intent: "cancel_order" | "not_cancellation"
- order_id: string or null  (if numeric like 91057, that's fine; do not invent)
- is_subscription_related: boolean
- urgency: "low" | "normal" | "high"
- rationale: short string`

// Classifier classifies ticket text against an ordered list of candidate
// models. A nil client (no credential configured) short-circuits to the
// default result without any network call.
type Classifier struct {
	client LLMClient
	models []string
}

// New builds a Classifier from configuration. When no API key is configured
// the returned Classifier has no client and always falls back.
func New(cfg *config.Config) (*Classifier, error) {
	if cfg.Classifier.APIKey == "" {
		return &Classifier{}, nil
	}

	client, err := NewClient(&cfg.Classifier, cfg.GetClassifierTimeout())
	if err != nil {
		return nil, err
	}

	var models []string
	if override := strings.TrimSpace(cfg.Classifier.Model); override != "" {
		models = append(models, override)
	}
	for _, m := range DefaultModels(cfg.Classifier.Provider) {
		if len(models) == 0 || models[0] != m {
			models = append(models, m)
		}
	}

	return &Classifier{client: client, models: models}, nil
}

// NewWithClient builds a Classifier around an injected client. Used by tests
// and anywhere the provider is constructed elsewhere.
func NewWithClient(client LLMClient, models []string) *Classifier {
	return &Classifier{client: client, models: models}
}

// Classify turns raw ticket text into a Classification. It never returns an
// error: total failure yields the safe default with the last failure as the
// fallback rationale.
func (c *Classifier) Classify(ctx context.Context, text string) Result {
	if c.client == nil {
		logging.Classify("no credential configured; returning default classification")
		return Result{
			Classification: DefaultClassification("No classifier credential configured."),
			Source:         SourceFallback,
			FallbackReason: "no credential configured",
		}
	}

	var lastErr error
	for _, model := range c.models {
		c.client.SetModel(model)

		raw, err := c.completeOnce(ctx, model, text)
		if err != nil {
			lastErr = err
			if errors.Is(err, ErrModelNotFound) {
				logging.Classify("model %s unavailable; trying next candidate", model)
			} else {
				logging.ClassifyError("model %s failed: %v; trying next candidate", model, err)
			}
			continue
		}

		classification, err := coerceJSON(raw)
		if err != nil {
			lastErr = fmt.Errorf("model %s returned unparseable output: %w", model, err)
			logging.ClassifyError("%v", lastErr)
			continue
		}

		logging.Classify("model %s classified intent=%s order_id=%q", model, classification.Intent, classification.OrderID)
		return Result{Classification: classification, Source: SourceModel}
	}

	reason := "all candidate models failed"
	if lastErr != nil {
		reason = lastErr.Error()
	}
	logging.ClassifyError("classification exhausted all models: %s", reason)
	return Result{
		Classification: DefaultClassification("Classifier fallback: " + reason),
		Source:         SourceFallback,
		FallbackReason: reason,
	}
}

func (c *Classifier) completeOnce(ctx context.Context, model, userText string) (string, error) {
	response, err := c.client.CompleteWithSystem(ctx, systemPrompt, userText)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(response) == "" {
		return "", fmt.Errorf("model %s returned empty text", model)
	}
	return response, nil
}
