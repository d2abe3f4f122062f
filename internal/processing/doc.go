// Package processing holds the milltrack domain model and its SQLite
// store: processing methods with ordered stages, batches with their
// stage-order snapshots, per-stage progress entries, waste items and
// disposals. Invariant checks and their dependent writes run inside single
// transactions; soft-delete visibility is applied uniformly at this layer.
package processing
