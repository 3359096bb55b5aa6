// ABOUTME: Webhook signature validation for provider-signed form posts.
// ABOUTME: HMAC-SHA1 over the request URL plus sorted form parameters.

package gateway

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
)

// validSignature checks a provider webhook signature. The signed payload
// is the full request URL followed by every POST parameter name and value
// concatenated in lexicographic parameter order. The signature is the
// base64 of the HMAC-SHA1 of that payload keyed with the auth token.
func validSignature(authToken, requestURL string, form url.Values, signature string) bool {
	if signature == "" {
		return false
	}

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
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
