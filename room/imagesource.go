package room

import (
	"math"

	"github.com/cwbudde/algo-spatial/frame"
)

// imageSourceInto synthesizes a time-domain room impulse response into dst
// by the image-source method: every integer lattice point (i, j, k) with
// Manhattan distance |i|+|j|+|k| equal to a reflection order from 1 to
// maxOrder mirrors the source across the room boundaries and contributes a
// delayed, distance-attenuated impulse
//
//	amplitude = 1 / (distance + 1),  delay = distance / SpeedOfSound.
//
// The direct sound is the unit impulse at t = 0. Contributions whose delay
// falls past the end of dst are skipped; a finite working buffer is a
// truncation, not an error. Fractional delays are split linearly across the
// two neighboring samples.
func imageSourceInto(dst []float64, dims [3]float64, maxOrder int, sampleRate float64) {
	for i := range dst {
		dst[i] = 0
	}
	if len(dst) == 0 {
		return
	}
	dst[0] = 1

	for order := 1; order <= maxOrder; order++ {
		for i := -order; i <= order; i++ {
			rem := order - abs(i)
			for j := -rem; j <= rem; j++ {
				k := rem - abs(j)
				addImage(dst, dims, sampleRate, i, j, k)
				if k != 0 {
					addImage(dst, dims, sampleRate, i, j, -k)
				}
			}
		}
	}
}

func addImage(dst []float64, dims [3]float64, sampleRate float64, i, j, k int) {
	dx := float64(i) * dims[0]
	dy := float64(j) * dims[1]
	dz := float64(k) * dims[2]
	distance := math.Sqrt(dx*dx + dy*dy + dz*dz)

	pos := distance / frame.SpeedOfSound * sampleRate
	idx := int(pos)
	if idx >= len(dst)-1 {
		return
	}

	amplitude := 1 / (distance + 1)
	frac := pos - float64(idx)
	dst[idx] += amplitude * (1 - frac)
	dst[idx+1] += amplitude * frac
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
