// Package conversation holds the in-memory, bounded per-user conversation
// history that the relay feeds to the completion backend.
//
// # Store
//
// The Store maps an opaque user ID (typically the provider's sender address)
// to an ordered list of turns:
//
//	store := conversation.NewStore(20)
//	store.Append("whatsapp:+15550001111", conversation.RoleUser, "hi")
//	turns := store.Snapshot("whatsapp:+15550001111")
//
// Histories are capped: once a session reaches the configured turn limit the
// oldest turns are dropped first. Snapshot returns a copy, never a live view,
// so callers can build provider requests without holding any store lock.
//
// # Lifecycle
//
// Sessions are created lazily on first Append and removed either explicitly
// via Evict or by the relay's idle sweep, which asks IdleSince for sessions
// with no activity past the idle TTL. History is intentionally process-local:
// a restart starts every conversation fresh.
package conversation
