package alerts

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"
)

// SignatureHeader carries "sha256=<hex hmac of body>" when a secret is set.
const SignatureHeader = "X-Feeder-Signature"

type webhookPayload struct {
	Event
	Name    string `json:"event"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

func (n *Notifier) sendWebhook(ctx context.Context, e Event) error {
	e.At = e.At.UTC().Truncate(time.Second)
	body, err := json.Marshal(webhookPayload{Event: e, Name: "status_change", Subject: e.Subject(), Message: e.Message()})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "feederconsole/1.0")
	if n.cfg.WebhookSecret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign([]byte(n.cfg.WebhookSecret), body))
	}
	return n.post(req)
}

// Sign returns the hex HMAC-SHA256 of body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
