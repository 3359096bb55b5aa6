// Package dedupe provides a time-based outcome cache used to absorb
// provider-side webhook re-deliveries within a configurable window.
package dedupe
