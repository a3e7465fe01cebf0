// Package hrtf renders mono audio as binaural stereo using head-related
// transfer function datasets.
//
// A Dataset is an immutable mapping from discretized source directions to
// left/right impulse-response pairs, safe for concurrent reads and shared
// across pipeline instances. Datasets come from the built-in spherical-head
// synthesizer ("synthetic") or from a directory of measured stereo WAV
// responses ("file:<dir>"). A Spatializer convolves input frames with the
// interpolated response for the listener-relative source direction.
package hrtf
