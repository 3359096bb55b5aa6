// Package store provides persistent storage for the relay using SQLite.
//
// The only persisted model is the Outcome: one row per inbound message
// recording its terminal disposition, reply ID, latency, and error.
// Conversation history is deliberately not stored here; it lives in memory
// and is lost on restart.
//
// SQLiteStore implements the Store interface with automatic schema creation
// and WAL journaling via modernc.org/sqlite (no cgo required).
package store
