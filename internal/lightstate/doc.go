// Package lightstate persists light states in SQLite.
//
// Two tables are maintained:
//   - light_state holds the last known action per device and seeds the
//     bridge's state cache on startup
//   - light_state_history is an append-only log of every state the bridge
//     published, with the source that produced it (command or status)
//
// SQLiteRepository implements lighting.StateRecorder, so the bridge writes
// through it directly.
package lightstate
