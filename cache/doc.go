// Package cache provides a sharded concurrent map used to deduplicate
// immutable device objects such as pipeline layouts.
//
// Entries are never evicted: deduplicated objects are referenced by the
// pipelines built on them and must stay reachable for the lifetime of the
// device.
package cache
