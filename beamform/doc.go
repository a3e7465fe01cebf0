// Package beamform combines synchronized microphone-array channels into a
// single steered, noise-suppressed signal.
//
// The engine applies per-channel pre-emphasis, transforms each channel to
// the frequency domain, and adapts a per-bin MVDR weight bank
//
//	w = R⁻¹a / (aᴴ R⁻¹ a)
//
// built from the instantaneous cross-channel correlation matrix R and the
// free-field steering vector a of the target direction. Ill-conditioned
// bins fall back to the uniform prior instead of failing; the combined
// spectrum is inverse-transformed, de-emphasized, and peak-normalized.
package beamform
