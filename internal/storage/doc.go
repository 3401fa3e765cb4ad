package storage

// Package storage is the durable backing for the in-memory domain state.
//
// It persists:
//   - consent approvals (upserts keyed by platform+target)
//   - campaign records (one row per campaign, rewritten on every update)
//   - the append-only dispatch attempt log
//   - daily quota counters
//
// The domain packages stay authoritative at runtime and write through on
// every mutation; storage is read back only once, at startup.
