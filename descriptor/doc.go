// Package descriptor emulates descriptor sets on a flat, per-stage native
// slot model.
//
// A PipelineLayout computes, once at creation, the native register slots
// (b, t, s, u per shader stage) of every set binding. Binding a Set against
// the layout produces Runs: contiguous slot ranges that replay as one
// native call each.
package descriptor
