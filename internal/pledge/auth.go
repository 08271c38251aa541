package pledge

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strings"
)

var ErrUnauthorizedWebhook = errors.New("unauthorized webhook")

// WebhookAuth checks inbound payment notifications against a shared secret.
// A request is accepted with either "Authorization: Bearer <secret>" or an
// X-Webhook-Signature header holding base64(HMAC-SHA256(secret, body)).
// Without a secret every request is accepted.
type WebhookAuth struct {
	secret []byte
}

func NewWebhookAuth(secret string) *WebhookAuth {
	return &WebhookAuth{secret: []byte(secret)}
}

func (a *WebhookAuth) Enabled() bool {
	return len(a.secret) > 0
}

func (a *WebhookAuth) Check(authorization, signature string, body []byte) error {
	if !a.Enabled() {
		return nil
	}

	if token, ok := strings.CutPrefix(authorization, "Bearer "); ok {
		if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), a.secret) == 1 {
			return nil
		}
	}

	if signature != "" {
		expected := Sign(a.secret, body)
		if hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signature))) {
			return nil
		}
	}
	return ErrUnauthorizedWebhook
}

// Sign computes the X-Webhook-Signature value for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
