// Package door holds the bridge's in-memory view of garage door devices.
//
// The Cache merges records fetched from the cloud account and keeps, next to
// them, the hub address registered for each device. Merges only ever replace
// fields owned by the cloud; a registered peer address survives every
// refresh. Records are never removed, so a device that drops out of the
// account listing stays servable with its last known state.
//
// All methods are safe for concurrent use.
package door
