package billing

import (
	"strconv"
	"strings"
)

// WebhookReference is what a webhook body says about which provider record
// changed and to what status.
type WebhookReference struct {
	ChargeID       string
	SubscriptionID string
	Status         string
	Strategy       string
}

type extractionStrategy struct {
	name    string
	extract func(body, data map[string]any) (chargeID, subscriptionID string)
}

// Strategies are tried in order; the first one that yields an id wins.
var extractionStrategies = []extractionStrategy{
	{name: "object_type", extract: extractByObjectType},
	{name: "nested_object", extract: extractNested},
	{name: "event_hint", extract: extractByEventHint},
}

// ExtractWebhookReference finds the charge or subscription id a webhook body
// refers to. It reports false when no strategy recognised the shape.
func ExtractWebhookReference(body map[string]any) (WebhookReference, bool) {
	data, _ := body["data"].(map[string]any)
	if data == nil {
		data = map[string]any{}
	}

	status := stringValue(body["status"])
	if status == "" {
		status = stringValue(data["status"])
	}

	for _, s := range extractionStrategies {
		chargeID, subscriptionID := s.extract(body, data)
		if chargeID == "" && subscriptionID == "" {
			continue
		}
		return WebhookReference{
			ChargeID:       chargeID,
			SubscriptionID: subscriptionID,
			Status:         status,
			Strategy:       s.name,
		}, true
	}
	return WebhookReference{Status: status}, false
}

func objectType(body map[string]any) string {
	return strings.ToLower(stringValue(body["object"]))
}

// extractByObjectType handles bodies that are the resource itself, with the
// id at the top level or under data.
func extractByObjectType(body, data map[string]any) (string, string) {
	id := firstNonEmpty(stringValue(body["id"]), stringValue(data["id"]))
	switch objectType(body) {
	case "charge", "charges":
		return id, ""
	case "subscription", "subscriptions":
		return "", id
	}
	return "", ""
}

// extractNested handles {"charge": {"id": ...}} and data.charge_id shapes. It
// does not apply to bodies that declare a charge or subscription object.
func extractNested(body, data map[string]any) (string, string) {
	switch objectType(body) {
	case "charge", "charges", "subscription", "subscriptions":
		return "", ""
	}
	var chargeID, subscriptionID string
	if nested, ok := body["charge"].(map[string]any); ok {
		chargeID = stringValue(nested["id"])
	}
	if chargeID == "" {
		chargeID = stringValue(data["charge_id"])
	}
	if nested, ok := body["subscription"].(map[string]any); ok {
		subscriptionID = stringValue(nested["id"])
	}
	if subscriptionID == "" {
		subscriptionID = stringValue(data["subscription_id"])
	}
	return chargeID, subscriptionID
}

// extractByEventHint uses data.id when the event name starts with the
// resource kind, e.g. "charge_finished" or "subscription_payment".
func extractByEventHint(body, data map[string]any) (string, string) {
	id := stringValue(data["id"])
	if id == "" {
		return "", ""
	}
	hint := strings.ToLower(firstNonEmpty(stringValue(body["event"]), stringValue(body["type"])))
	switch {
	case strings.HasPrefix(hint, "charge"):
		return id, ""
	case strings.HasPrefix(hint, "subscription"):
		return "", id
	}
	return "", ""
}

// extractEventType labels a webhook by event, then type, then status.
func extractEventType(body map[string]any) string {
	return firstNonEmpty(
		stringValue(body["event"]),
		stringValue(body["type"]),
		stringValue(body["status"]),
	)
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
