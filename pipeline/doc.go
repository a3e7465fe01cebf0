// Package pipeline composes the beamformer, room model, and spatializer
// into one real-time processing chain with a strict lifecycle:
//
//	Uninitialized -> Configured -> Running <-> Reconfiguring -> Shutdown
//
// ProcessFrame runs on a single goroutine and never blocks on control-path
// locks. Control-path updates (pose, room parameters, array geometry) are
// validated synchronously, published as atomic snapshots, and applied by
// the processing goroutine at the next frame boundary, so the frame is the
// unit of atomicity for every configuration change.
package pipeline
