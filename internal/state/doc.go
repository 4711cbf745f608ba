// Package state provides the SQLite-backed event store.
//
// The database runs in WAL mode so HTTP query handlers keep reading while
// the ingestion path writes. synchronous=FULL makes every committed insert
// durable before Insert returns. Event ids come from AUTOINCREMENT and are
// never reused: after Clear the sequence continues from the previous
// high-water mark.
package state

import "github.com/user/agentwatch/internal/types"

// Compile-time interface compliance check.
var _ types.EventStore = (*EventStore)(nil)
