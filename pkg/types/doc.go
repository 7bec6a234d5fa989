// Package types defines the shared data model of the boot cache: disk
// extents, history entries, the statistics snapshot, and the fixed binary
// layout those records use on disk and on the control wire.
package types
