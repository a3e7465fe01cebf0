// Package room models the reverberant response of a rectangular room.
//
// A Model derives everything from the room dimensions and per-surface
// material spectra: Sabine reverberation times per frequency bin, air
// absorption at a fixed atmosphere, an image-source impulse response up to
// a configurable reflection order, and the cached frequency-domain transfer
// function the per-frame path multiplies with. All derivation happens when
// parameters change, never per frame.
package room
