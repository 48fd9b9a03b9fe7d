// Package repositories implements SQLite persistence for linked accounts, transfer history and the track cache.
//
// Key Implementations:
//   - [AccountRepository] : linked provider accounts and their OAuth tokens, with soft delete on unlink
//   - [TransferRepository] : transfer history with status tracking, recorded by the transfer engine
//   - [TrackRepository] : track caching keyed on provider and provider ID, looked up by ISRC
//   - [TrackCacheAdapter] : adapts [TrackRepository] to the engine's cache interface
//
// Sequence numbers provide stable, human-readable ordering (e.g., transfer #15) independent of UUIDs and creation timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
