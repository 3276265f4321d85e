package classify

import "encoding/json"

// Intent is the classifier's judgment of whether a ticket requests order
// cancellation.
type Intent string

const (
	IntentCancelOrder     Intent = "cancel_order"
	IntentNotCancellation Intent = "not_cancellation"
)

// Urgency grades how pressing the customer's request is.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyNormal Urgency = "normal"
	UrgencyHigh   Urgency = "high"
)

// Classification is the structured result of classifying a ticket. It is
// always fully populated: missing fields are defaulted, never left partial.
type Classification struct {
	Intent                Intent  `json:"intent"`
	OrderID               string  `json:"order_id"`
	IsSubscriptionRelated bool    `json:"is_subscription_related"`
	Urgency               Urgency `json:"urgency"`
	Rationale             string  `json:"rationale"`
}

// Source records whether a Classification came from a model or from the
// safe default path.
type Source string

const (
	SourceModel    Source = "model"
	SourceFallback Source = "fallback"
)

// Result wraps a Classification with its provenance so callers and tests can
// distinguish "genuinely classified" from "defaulted". Both carry a usable
// Classification.
type Result struct {
	Classification Classification
	Source         Source
	// FallbackReason describes the last failure when Source is fallback.
	FallbackReason string
}

// DefaultClassification returns the safe default: route to human review.
func DefaultClassification(rationale string) Classification {
	if rationale == "" {
		rationale = "Classifier fallback."
	}
	return Classification{
		Intent:                IntentNotCancellation,
		OrderID:               "",
		IsSubscriptionRelated: false,
		Urgency:               UrgencyNormal,
		Rationale:             rationale,
	}
}

// rawClassification mirrors the model's JSON object with optional fields so
// partial-but-valid objects are accepted and defaulted instead of rejected.
type rawClassification struct {
	Intent                *string `json:"intent"`
	OrderID               *string `json:"order_id"`
	IsSubscriptionRelated *bool   `json:"is_subscription_related"`
	Urgency               *string `json:"urgency"`
	Rationale             *string `json:"rationale"`
}

// fromModelJSON parses a model-produced JSON object into a fully defaulted
// Classification. The input must be a JSON object; anything else errors.
func fromModelJSON(data []byte) (Classification, error) {
	var raw rawClassification
	if err := json.Unmarshal(data, &raw); err != nil {
		return Classification{}, err
	}

	c := Classification{
		Intent:  IntentNotCancellation,
		Urgency: UrgencyNormal,
	}
	if raw.Intent != nil && Intent(*raw.Intent) == IntentCancelOrder {
		c.Intent = IntentCancelOrder
	}
	if raw.OrderID != nil {
		c.OrderID = *raw.OrderID
	}
	if raw.IsSubscriptionRelated != nil {
		c.IsSubscriptionRelated = *raw.IsSubscriptionRelated
	}
	if raw.Urgency != nil {
		switch Urgency(*raw.Urgency) {
		case UrgencyLow, UrgencyNormal, UrgencyHigh:
			c.Urgency = Urgency(*raw.Urgency)
		}
	}
	if raw.Rationale != nil {
		c.Rationale = *raw.Rationale
	}
	return c, nil
}
