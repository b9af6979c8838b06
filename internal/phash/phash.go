// Package phash computes 64-bit average-hashes (aHash) of images and
// measures visual change between successive observations of a window via
// Hamming distance with hysteresis.
package phash

import (
	"image"
	"math/bits"
)

// Hash is a 64-bit average-hash.
type Hash uint64

// Compute resamples img to 8x8 greyscale, takes the mean luminance, and sets
// bit i iff pixel i's luminance exceeds the mean. Pixels are visited in
// row-major order, bit 0 being the top-left sample.
func Compute(img image.Image) Hash {
	const n = 8
	samples := [n * n]uint8{}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return 0
	}

	var sum int
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			px := bounds.Min.X + (x*w)/n
			py := bounds.Min.Y + (y*h)/n
			l := luminance(img, px, py)
			samples[y*n+x] = l
			sum += int(l)
		}
	}
	mean := sum / (n * n)

	var hash Hash
	for i, s := range samples {
		if int(s) > mean {
			hash |= 1 << uint(i)
		}
	}
	return hash
}

// luminance returns the 8-bit grey value of the pixel at (x, y) using the
// standard Rec. 601 luma weights.
func luminance(img image.Image, x, y int) uint8 {
	r, g, b, _ := img.At(x, y).RGBA()
	// RGBA() returns 16-bit-scaled components; reduce to 8-bit before mixing.
	r8, g8, b8 := r>>8, g>>8, b>>8
	return uint8((299*r8 + 587*g8 + 114*b8) / 1000)
}

// Distance returns the Hamming distance between two hashes: the count of
// differing bits.
func Distance(a, b Hash) int {
	return bits.OnesCount64(uint64(a ^ b))
}

// Changed reports whether new is a visual change from prev, given threshold
// (inclusive): distance(prev, new) >= threshold.
func Changed(prev, new Hash, threshold int) bool {
	return Distance(prev, new) >= threshold
}

// DefaultThreshold is the spec's default Hamming-distance change threshold.
const DefaultThreshold = 8

// Tracker maintains one Hash per window id and reports change/no-change on
// each observation. First observation of a window id always reports changed.
type Tracker struct {
	threshold int
	hashes    map[string]Hash
}

// NewTracker constructs a Tracker with the given Hamming threshold (0..64).
// A non-positive threshold falls back to DefaultThreshold.
func NewTracker(threshold int) *Tracker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Tracker{threshold: threshold, hashes: make(map[string]Hash)}
}

// Observe computes the hash of img for windowID, compares it against the
// previously stored hash (if any), updates the stored hash, and reports
// whether this counts as a visual change.
func (t *Tracker) Observe(windowID string, img image.Image) bool {
	newHash := Compute(img)
	prev, ok := t.hashes[windowID]
	t.hashes[windowID] = newHash
	if !ok {
		return true
	}
	return Changed(prev, newHash, t.threshold)
}

// Forget removes a window's tracked hash, e.g. when it is destroyed.
func (t *Tracker) Forget(windowID string) {
	delete(t.hashes, windowID)
}
