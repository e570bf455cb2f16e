// Package bridge runs the refresh cycle that keeps the door cache in step
// with the cloud account and tells the hub about door state changes.
//
// Each cycle fetches every device, merges it into the cache, compares garage
// door states with the previous cycle's snapshot, and for every transition
// notifies the registered hub (at most one attempt per cycle) and any
// configured sinks. The loop is never stopped by a failed fetch or a failed
// delivery; cycles never overlap.
//
// The Engine also serves the request-side operations: device listing,
// status, peer registration and door commands.
package bridge
