package univapay

import (
	"crypto/subtle"
	"strings"
)

// VerifyWebhookAuthorization checks the Authorization header of an inbound
// webhook against the shared secret configured in the UnivaPay dashboard. An
// empty secret rejects every request.
func VerifyWebhookAuthorization(authHeader, webhookSecret string) bool {
	secret := strings.TrimSpace(webhookSecret)
	if secret == "" || authHeader == "" {
		return false
	}
	expected := "Bearer " + secret
	return subtle.ConstantTimeCompare([]byte(authHeader), []byte(expected)) == 1
}
