// ABOUTME: Tests for webhook signature validation.
// ABOUTME: Covers parameter ordering, tampering, and empty signatures.

package gateway

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

// signForm computes the signature a provider would attach to a form post.
func signForm(authToken, requestURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	payload := requestURL
	for _, k := range keys {
		for _, v := range form[k] {
			payload += k + v
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestValidSignature(t *testing.T) {
	form := url.Values{
		"Body":       {"hello"},
		"From":       {"whatsapp:+5511999999999"},
		"MessageSid": {"SM123"},
	}
	reqURL := "https://relay.example.com/webhook"
	token := "secret-token"

	sig := signForm(token, reqURL, form)
	assert.True(t, validSignature(token, reqURL, form, sig))
}

func TestValidSignature_Rejections(t *testing.T) {
	form := url.Values{"Body": {"hello"}, "From": {"whatsapp:+551199"}}
	reqURL := "https://relay.example.com/webhook"
	token := "secret-token"
	sig := signForm(token, reqURL, form)

	// Empty signature
	assert.False(t, validSignature(token, reqURL, form, ""))

	// Wrong token
	assert.False(t, validSignature("other-token", reqURL, form, sig))

	// Different URL
	assert.False(t, validSignature(token, "https://relay.example.com/", form, sig))

	// Tampered parameter
	tampered := url.Values{"Body": {"goodbye"}, "From": {"whatsapp:+551199"}}
	assert.False(t, validSignature(token, reqURL, tampered, sig))

	// Added parameter
	extra := url.Values{"Body": {"hello"}, "From": {"whatsapp:+551199"}, "X": {"1"}}
	assert.False(t, validSignature(token, reqURL, extra, sig))
}

func TestValidSignature_OrderIndependent(t *testing.T) {
	// Signature covers parameters in sorted order regardless of how the
	// form was built.
	form := url.Values{}
	form.Set("Zebra", "z")
	form.Set("Alpha", "a")
	form.Set("Mid", "m")

	reqURL := "https://relay.example.com/webhook"
	sig := signForm("tok", reqURL, form)
	assert.True(t, validSignature("tok", reqURL, form, sig))
}
