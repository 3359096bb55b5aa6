// ABOUTME: Webhook handler that parses provider form posts into relay events.
// ABOUTME: Filters status callbacks and answers every accepted post with empty TwiML.

package gateway

import (
	"net/http"
	"time"

	"github.com/2389/coven-relay/internal/relay"
)

// emptyTwiML acknowledges a webhook without an inline reply. Replies go
// out through the messaging client, not the webhook response body.
const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// statusCallbackValues are SmsStatus values that mark delivery receipts
// for messages we sent, not new inbound messages.
var statusCallbackValues = map[string]bool{
	"queued":      true,
	"sending":     true,
	"sent":        true,
	"delivered":   true,
	"read":        true,
	"failed":      true,
	"undelivered": true,
}

// handleWebhook handles POST / and POST /webhook requests.
// It parses the provider's form-encoded payload, drops status callbacks,
// and runs the relay pipeline for real inbound messages. The response is
// always empty TwiML on acceptance: the outcome of processing never
// changes the webhook status code, so the provider does not re-deliver
// events we have already recorded.
func (g *Gateway) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		g.logger.Warn("failed to parse webhook form", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if g.config.Messaging.ValidateSignature {
		signature := r.Header.Get("X-Twilio-Signature")
		url := requestURL(r)
		if !validSignature(g.config.Messaging.AuthToken, url, r.PostForm, signature) {
			g.logger.Warn("rejected webhook with bad signature", "url", url)
			w.WriteHeader(http.StatusForbidden)
			return
		}
	}

	sender := r.PostForm.Get("From")
	body := r.PostForm.Get("Body")
	messageSid := r.PostForm.Get("MessageSid")
	smsStatus := r.PostForm.Get("SmsStatus")

	// Delivery receipts for our own outbound messages arrive on the same
	// URL. Acknowledge and drop them.
	if statusCallbackValues[smsStatus] {
		g.logger.Info("status callback received", "message_sid", messageSid, "status", smsStatus)
		w.WriteHeader(http.StatusOK)
		return
	}

	if body == "" || sender == "" {
		g.logger.Warn("webhook missing body or sender", "from", sender, "message_sid", messageSid)
		writeTwiML(w)
		return
	}

	event := relay.Event{
		UserID:    sender,
		Text:      body,
		MessageID: messageSid,
		Timestamp: time.Now(),
	}

	outcome := g.relay.Handle(r.Context(), event)
	g.logger.Info("webhook processed",
		"user", sender,
		"message_sid", messageSid,
		"state", string(outcome.State),
	)

	writeTwiML(w)
}

// writeTwiML writes the empty TwiML acknowledgment.
func writeTwiML(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(emptyTwiML))
}

// requestURL reconstructs the externally visible URL of the request,
// honoring reverse-proxy forwarding headers. The provider signs the URL
// it posted to, which is the proxy-facing one.
func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	host := r.Host
	if forwarded := r.Header.Get("X-Forwarded-Host"); forwarded != "" {
		host = forwarded
	}
	return scheme + "://" + host + r.URL.RequestURI()
}
