// Package config handles configuration loading for coven-relay.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	completion:
//	  api_key: "${OPENAI_API_KEY}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	conversation:
//	  idle_ttl: "30m"
//	completion:
//	  timeout: "30s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"   # webhook and health endpoints
//
// Outcome ledger:
//
//	database:
//	  path: "/var/lib/coven/relay.db"
//
// Conversation bounds:
//
//	conversation:
//	  max_turns: 20
//	  idle_ttl: "30m"
//
// Completion backend:
//
//	completion:
//	  api_key: "${OPENAI_API_KEY}"
//	  model: "gpt-4o-mini"
//	  system_prompt: "You are a helpful assistant."
//	  timeout: "30s"
//	  max_retries: 3
//
// Messaging provider:
//
//	messaging:
//	  account_sid: "${TWILIO_ACCOUNT_SID}"
//	  auth_token: "${TWILIO_AUTH_TOKEN}"
//	  from: "whatsapp:+14155238886"
//	  timeout: "15s"
//	  max_retries: 3
//	  validate_signature: true
//
// Orchestration tunables:
//
//	relay:
//	  queue_depth: 8
//	  retry_backoff_base: "500ms"
//	  dedupe_ttl: "1h"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
