package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
)

func TestVerifyWebhookSignature(t *testing.T) {
	payload := []byte(`{"meta":{"event_name":"subscription_created"}}`)
	secret := "wh-secret"

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	validSig := hex.EncodeToString(mac.Sum(nil))

	if !VerifyWebhookSignature(payload, validSig, secret) {
		t.Fatalf("expected signature to validate")
	}
	if !VerifyWebhookSignature(payload, strings.ToUpper(validSig), secret) {
		t.Fatalf("expected uppercase hex signature to validate")
	}
	if VerifyWebhookSignature(payload, validSig, "other-secret") {
		t.Fatalf("expected wrong secret to fail")
	}
	if VerifyWebhookSignature([]byte(`{"meta":{"event_name":"subscription_expired"}}`), validSig, secret) {
		t.Fatalf("expected tampered payload to fail")
	}
	if VerifyWebhookSignature(payload, "deadbeef", secret) {
		t.Fatalf("expected invalid signature to fail")
	}
	if VerifyWebhookSignature(payload, "not-hex!!", secret) {
		t.Fatalf("expected non-hex signature to fail")
	}
	if VerifyWebhookSignature(payload, "", secret) {
		t.Fatalf("expected empty signature to fail")
	}
	if VerifyWebhookSignature(payload, validSig, "") {
		t.Fatalf("expected empty secret to fail")
	}
}
