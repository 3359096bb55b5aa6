// ABOUTME: Package documentation for the gateway package.
// ABOUTME: Describes the webhook ingress server and its endpoints.

// Package gateway implements the HTTP ingress for coven-relay.
//
// The gateway accepts messaging-provider webhooks, normalizes them into
// relay events, and hands them to the orchestrator. The webhook response
// is always an empty TwiML document: the reply itself is dispatched
// out-of-band by the messaging client, never through the webhook response
// body.
//
// Endpoints:
//
//	POST /         - inbound message webhook (form-encoded)
//	POST /webhook  - alias for /
//	GET  /health   - liveness plus session and ledger counters
//
// Status callbacks (delivery receipts for messages we sent) arrive on the
// same webhook URL and are acknowledged without processing.
package gateway
