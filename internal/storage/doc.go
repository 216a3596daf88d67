// Package storage persists delivery records and notifier dedup state.
//
// Drivers:
//   - "file": JSON Lines delivery log plus a dedup snapshot and journal
//   - "sqlite": a SQLite database file (modernc.org/sqlite, no cgo)
//   - "redis": dedup keys with native expiry and a capped delivery list
//
// An empty driver or "none" disables storage; Open then returns (nil, nil).
package storage
