// Package queue is the submission engine.
//
// Submit accepts executable command buffers, plans their synchronization
// with the hazard tracker, and replays them against a native context
// through a state cache. Barriers are realized with the actions of a
// native.BarrierTable. Nothing from a rejected submission is applied:
// lifecycle, dangling-resource and hazard failures of all buffers are
// reported together and leave every tracked state untouched.
//
// Wait semaphores are consumed before planning, so a submission ordered
// after work on another queue is planned against that work's final states.
// A submission rejected after its waits restores their signals.
//
// In immediate mode replay runs on the caller's goroutine and the fence is
// signaled before Submit returns. With deferred contexts, buffers are
// replayed concurrently into command lists, and a per-queue worker executes
// the lists in submission order and resolves the fence once they ran.
//
// Device loss is checked after every buffer. It is fatal for the whole
// device: every pending fence resolves as lost, pending buffers become
// Invalid, and further submissions fail with hal.ErrDeviceLost.
package queue
