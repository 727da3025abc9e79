// Package directory mirrors the account's registered hubs and devices.
//
// The cloud is the source of truth: each refresh replaces the local maps
// wholesale with the latest directory listing, keyed by serial number.
// There is no incremental merge; a device absent from the listing is
// gone from the mirror.
//
// Device parameters are stored in their wire form and decoded on access
// through the param package; writes go through the same codec in the
// opposite direction.
package directory
