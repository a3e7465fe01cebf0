package spectral

import (
	"sync"

	"github.com/cwbudde/algo-vecmath"
)

// scratchBuf holds pooled scratch memory for complex-to-real unpacking.
type scratchBuf struct {
	data []float64
}

var scratchPool = sync.Pool{
	New: func() any { return &scratchBuf{} },
}

func getScratch(n int) (re, im []float64, buf *scratchBuf) {
	buf = scratchPool.Get().(*scratchBuf)
	need := 2 * n
	if cap(buf.data) < need {
		buf.data = make([]float64, need)
	} else {
		buf.data = buf.data[:need]
	}
	return buf.data[:n], buf.data[n:need], buf
}

func putScratch(buf *scratchBuf) {
	scratchPool.Put(buf)
}

// MagnitudeTo computes |X[k]| for each bin of in into dst.
// Scratch buffers are pooled, so in steady state this does not allocate.
func MagnitudeTo(dst []float64, in []complex128) {
	n := min(len(dst), len(in))
	if n == 0 {
		return
	}
	re, im, buf := getScratch(n)
	for i := range n {
		re[i] = real(in[i])
		im[i] = imag(in[i])
	}
	vecmath.Magnitude(dst[:n], re, im)
	putScratch(buf)
}

// Magnitude returns |X[k]| for each complex spectrum bin.
func Magnitude(in []complex128) []float64 {
	if len(in) == 0 {
		return nil
	}
	out := make([]float64, len(in))
	MagnitudeTo(out, in)
	return out
}

// PowerTo computes |X[k]|^2 for each bin of in into dst.
// Scratch buffers are pooled, so in steady state this does not allocate.
func PowerTo(dst []float64, in []complex128) {
	n := min(len(dst), len(in))
	if n == 0 {
		return
	}
	re, im, buf := getScratch(n)
	for i := range n {
		re[i] = real(in[i])
		im[i] = imag(in[i])
	}
	vecmath.Power(dst[:n], re, im)
	putScratch(buf)
}

// Power returns |X[k]|^2 for each complex spectrum bin.
func Power(in []complex128) []float64 {
	if len(in) == 0 {
		return nil
	}
	out := make([]float64, len(in))
	PowerTo(out, in)
	return out
}

// Scale multiplies every sample of buf by s in place.
func Scale(buf []float64, s float64) {
	vecmath.ScaleBlockInPlace(buf, s)
}

// PeakAbs returns the largest absolute sample value in buf, 0 for empty input.
func PeakAbs(buf []float64) float64 {
	return vecmath.MaxAbs(buf)
}
