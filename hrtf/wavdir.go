package hrtf

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/go-audio/wav"
)

// responseFilePattern names one measured response per file, for example
// az045_el-30_d1.0.wav (degrees, degrees, meters).
var responseFilePattern = regexp.MustCompile(`^az(-?[0-9]+(?:\.[0-9]+)?)_el(-?[0-9]+(?:\.[0-9]+)?)_d([0-9]+(?:\.[0-9]+)?)\.wav$`)

type responseKey struct {
	az, el, dist float64
}

// LoadDirectory loads a measured HRTF dataset from a directory of stereo
// WAV files named az<A>_el<E>_d<D>.wav. Every file must be a stereo WAV at
// exactly the requested sample rate, and the files together must cover a
// complete uniform (azimuth, elevation, distance) grid. Shorter responses
// are zero-padded to the longest one.
func LoadDirectory(dir string, sampleRate float64) (*Dataset, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: read directory %q: %v", ErrDataset, dir, err)
	}

	responses := make(map[responseKey]IRPair)
	azSet := make(map[float64]struct{})
	elSet := make(map[float64]struct{})
	distSet := make(map[float64]struct{})
	maxLen := 0

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := responseFilePattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}

		az, _ := strconv.ParseFloat(match[1], 64)
		el, _ := strconv.ParseFloat(match[2], 64)
		dist, _ := strconv.ParseFloat(match[3], 64)

		pair, err := readStereoResponse(filepath.Join(dir, entry.Name()), sampleRate)
		if err != nil {
			return nil, err
		}

		key := responseKey{az: az, el: el, dist: dist}
		if _, dup := responses[key]; dup {
			return nil, fmt.Errorf("%w: duplicate response for az=%g el=%g d=%g", ErrDataset, az, el, dist)
		}
		responses[key] = pair
		azSet[az] = struct{}{}
		elSet[el] = struct{}{}
		distSet[dist] = struct{}{}
		if len(pair.Left) > maxLen {
			maxLen = len(pair.Left)
		}
	}

	if len(responses) == 0 {
		return nil, fmt.Errorf("%w: no response files in %q", ErrDataset, dir)
	}

	azimuths := sortedKeys(azSet)
	elevations := sortedKeys(elSet)
	distances := sortedKeys(distSet)

	pairs := make([]IRPair, 0, len(azimuths)*len(elevations)*len(distances))
	for _, az := range azimuths {
		for _, el := range elevations {
			for _, dist := range distances {
				pair, ok := responses[responseKey{az: az, el: el, dist: dist}]
				if !ok {
					return nil, fmt.Errorf("%w: missing response for az=%g el=%g d=%g", ErrDataset, az, el, dist)
				}
				pairs = append(pairs, padPair(pair, maxLen))
			}
		}
	}

	return newDataset(filePrefix+dir, sampleRate, azimuths, elevations, distances, pairs)
}

// readStereoResponse decodes one stereo WAV response, validating channel
// count and sample rate, and normalizing integer PCM to [-1, 1].
func readStereoResponse(path string, sampleRate float64) (IRPair, error) {
	f, err := os.Open(path)
	if err != nil {
		return IRPair{}, fmt.Errorf("%w: open %q: %v", ErrDataset, path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return IRPair{}, fmt.Errorf("%w: %q is not a valid WAV file", ErrDataset, path)
	}

	format := dec.Format()
	if format.NumChannels != 2 {
		return IRPair{}, fmt.Errorf("%w: %q has %d channels, want stereo", ErrDataset, path, format.NumChannels)
	}
	if float64(format.SampleRate) != sampleRate {
		return IRPair{}, fmt.Errorf("%w: %q sample rate %d does not match pipeline rate %g",
			ErrDataset, path, format.SampleRate, sampleRate)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return IRPair{}, fmt.Errorf("%w: decode %q: %v", ErrDataset, path, err)
	}

	frames := len(buf.Data) / 2
	if frames == 0 {
		return IRPair{}, fmt.Errorf("%w: %q holds no samples", ErrDataset, path)
	}

	scale := 1.0
	if dec.BitDepth > 0 && dec.BitDepth <= 32 {
		scale = 1 / float64(int64(1)<<(dec.BitDepth-1))
	}

	pair := IRPair{
		Left:  make([]float64, frames),
		Right: make([]float64, frames),
	}
	for i := range frames {
		pair.Left[i] = float64(buf.Data[2*i]) * scale
		pair.Right[i] = float64(buf.Data[2*i+1]) * scale
	}
	return pair, nil
}

func padPair(pair IRPair, length int) IRPair {
	if len(pair.Left) == length {
		return pair
	}
	out := IRPair{
		Left:  make([]float64, length),
		Right: make([]float64, length),
	}
	copy(out.Left, pair.Left)
	copy(out.Right, pair.Right)
	return out
}

func sortedKeys(set map[float64]struct{}) []float64 {
	out := make([]float64, 0, len(set))
	for v := range set {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}
