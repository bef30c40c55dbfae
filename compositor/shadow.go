// This file is part of the program "xcompositor".
// Please see the LICENSE file for copyright information.

package compositor

import (
	"image"
	"image/color"
	"math"

	lru "github.com/hashicorp/golang-lru"
)

// opacityBuckets is the number of quantized opacity levels at which
// shadow edges are precomputed: {0/25, 1/25, ..., 25/25}.
const opacityBuckets = 26

// shadowCacheSize bounds the memoized-shadow LRU. Ground: the teacher's
// own vendored nucular/shiny.go sizes its glyph-width cache the same
// way, a small fixed constant rather than something config-driven.
const shadowCacheSize = 64

// gaussianMap holds a normalized size×size gaussian kernel, grounded
// on xcompmgr.c's make_gaussian_map/gaussian.
type gaussianMap struct {
	size int
	data []float64 // size*size, row-major
}

func (m *gaussianMap) at(x, y int) float64 {
	return m.data[y*m.size+x]
}

// gaussianSize computes the kernel's side length for a given radius:
// (ceil(r*3)+1) rounded down to even. Exposed standalone per the Open
// Question in SPEC_FULL.md §9 asking implementations to expose size(r)
// for tests.
func gaussianSize(radius float64) int {
	return (int(math.Ceil(radius*3)) + 1) &^ 1
}

// buildGaussianMap constructs and normalizes the kernel for radius r.
func buildGaussianMap(r float64) *gaussianMap {
	size := gaussianSize(r)
	center := size / 2
	data := make([]float64, size*size)
	var total float64
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			g := gaussian(r, float64(x-center), float64(y-center))
			data[y*size+x] = g
			total += g
		}
	}
	if total != 0 {
		for i := range data {
			data[i] /= total
		}
	}
	return &gaussianMap{size: size, data: data}
}

func gaussian(r, x, y float64) float64 {
	return (1 / math.Sqrt(2*math.Pi*r)) * math.Exp(-(x*x+y*y)/(2*r*r))
}

// sumGaussian integrates the kernel clipped to a width×height window
// positioned so that (x,y) is the window-relative origin, and scales
// the result by opacity into a byte. Grounded verbatim on xcompmgr.c's
// sum_gaussian, including the >1 clamp before the byte scale.
func sumGaussian(m *gaussianMap, opacity float64, x, y, width, height int) byte {
	center := m.size / 2

	fxStart := center - x
	if fxStart < 0 {
		fxStart = 0
	}
	fxEnd := width + center - x
	if fxEnd > m.size {
		fxEnd = m.size
	}

	fyStart := center - y
	if fyStart < 0 {
		fyStart = 0
	}
	fyEnd := height + center - y
	if fyEnd > m.size {
		fyEnd = m.size
	}

	var v float64
	for fy := fyStart; fy < fyEnd; fy++ {
		for fx := fxStart; fx < fxEnd; fx++ {
			v += m.at(fx, fy)
		}
	}
	if v > 1 {
		v = 1
	}
	return byte(v * opacity * 255.0)
}

// shadowTables holds the precomputed per-opacity-bucket edge samples
// that let make_shadow skip per-pixel convolution for windows at
// least as large as the kernel. Grounded on xcompmgr.c's
// presum_gaussian, shadowTop and shadowCorner globals.
type shadowTables struct {
	size int // kernel size the tables were built for

	// top[bucket][x], x in [0, size], the side/edge sample.
	top [][]byte

	// corner[bucket][y][x], y,x in [0, size], mirrored across the
	// diagonal during construction.
	corner [][][]byte
}

// presum builds the edge-sample tables for m. Bucket 25 (full
// opacity) is computed directly; buckets 0..24 are scaled down
// linearly from it, matching xcompmgr.c exactly (not recomputed via
// sumGaussian at partial opacity).
func presum(m *gaussianMap) *shadowTables {
	size := m.size
	center := size / 2

	top := make([][]byte, opacityBuckets)
	corner := make([][][]byte, opacityBuckets)
	for b := range top {
		top[b] = make([]byte, size+1)
	}
	for b := range corner {
		corner[b] = make([][]byte, size+1)
		for y := range corner[b] {
			corner[b][y] = make([]byte, size+1)
		}
	}

	for x := 0; x <= size; x++ {
		full := sumGaussian(m, 1, x-center, center, size*2, size*2)
		top[opacityBuckets-1][x] = full
		for b := 0; b < opacityBuckets-1; b++ {
			top[b][x] = byte(int(full) * b / 25)
		}
		for y := 0; y <= x; y++ {
			fullC := sumGaussian(m, 1, x-center, y-center, size*2, size*2)
			corner[opacityBuckets-1][y][x] = fullC
			corner[opacityBuckets-1][x][y] = fullC
			for b := 0; b < opacityBuckets-1; b++ {
				scaled := byte(int(fullC) * b / 25)
				corner[b][y][x] = scaled
				corner[b][x][y] = scaled
			}
		}
	}

	return &shadowTables{size: size, top: top, corner: corner}
}

// ShadowKernel precomputes a gaussian for a fixed radius and
// synthesizes per-size shadow alpha images on request, memoizing the
// result so repeated windows of the same size and opacity bucket
// don't re-run the (already O(1)-per-pixel) table lookups.
type ShadowKernel struct {
	radius float64
	gauss  *gaussianMap
	tables *shadowTables
	cache  *lru.Cache
}

// NewShadowKernel builds the kernel for radius. A radius of 0
// degenerates to a 0-size kernel; MakeShadow on a 0-size kernel
// returns an empty image without error, per SPEC_FULL.md §8's
// boundary behavior.
func NewShadowKernel(radius float64) *ShadowKernel {
	gauss := buildGaussianMap(radius)
	cache, _ := lru.New(shadowCacheSize)
	return &ShadowKernel{
		radius: radius,
		gauss:  gauss,
		tables: presum(gauss),
		cache:  cache,
	}
}

// Size reports the kernel's side length.
func (k *ShadowKernel) Size() int { return k.gauss.size }

type shadowCacheKey struct {
	bucket        int
	width, height int
}

// MakeShadow produces an 8-bit alpha image of size (w+size)×(h+size)
// for the given opacity in [0,1] and window dimensions w,h.
// Grounded verbatim on xcompmgr.c's make_shadow.
func (k *ShadowKernel) MakeShadow(opacity float64, w, h int) *image.Alpha {
	if k.gauss.size == 0 || w <= 0 || h <= 0 {
		return image.NewAlpha(image.Rect(0, 0, 0, 0))
	}

	bucket := int(opacity * 25)
	if bucket >= opacityBuckets {
		bucket = opacityBuckets - 1
	}
	if bucket < 0 {
		bucket = 0
	}

	key := shadowCacheKey{bucket: bucket, width: w, height: h}
	if cached, ok := k.cache.Get(key); ok {
		return cached.(*image.Alpha)
	}

	gsize := k.gauss.size
	center := gsize / 2
	sw := w + gsize
	sh := h + gsize

	img := image.NewAlpha(image.Rect(0, 0, sw, sh))

	// The interior fill is always the full-saturation sample
	// (opacity bucket 25), independent of this shadow's own bucket,
	// per SPEC_FULL.md §4.2 step 1 and the worked example in §8 —
	// preserved exactly per the Open Question in §9 even though it
	// looks like it should scale with opacity.
	var center0 byte
	if gsize > 0 {
		center0 = k.tables.top[opacityBuckets-1][gsize]
	} else {
		center0 = sumGaussian(k.gauss, opacity, center, center, w, h)
	}
	for i := range img.Pix {
		img.Pix[i] = center0
	}

	ylimit := gsize
	if ylimit > sh/2 {
		ylimit = (sh + 1) / 2
	}
	xlimit := gsize
	if xlimit > sw/2 {
		xlimit = (sw + 1) / 2
	}

	set := func(x, y int, v byte) {
		img.SetAlpha(x, y, color.Alpha{A: v})
	}

	for y := 0; y < ylimit; y++ {
		for x := 0; x < xlimit; x++ {
			var d byte
			if xlimit == gsize && ylimit == gsize {
				d = k.tables.corner[bucket][y][x]
			} else {
				d = sumGaussian(k.gauss, opacity, x-center, y-center, w, h)
			}
			set(x, y, d)
			set(x, sh-y-1, d)
			set(sw-x-1, sh-y-1, d)
			set(sw-x-1, y, d)
		}
	}

	xDiff := sw - gsize*2
	if xDiff > 0 && ylimit > 0 {
		for y := 0; y < ylimit; y++ {
			var d byte
			if ylimit == gsize {
				d = k.tables.top[bucket][y]
			} else {
				d = sumGaussian(k.gauss, opacity, center, y-center, w, h)
			}
			fillRow(img, gsize, y, xDiff, d)
			fillRow(img, gsize, sh-y-1, xDiff, d)
		}
	}

	for x := 0; x < xlimit; x++ {
		var d byte
		if xlimit == gsize {
			d = k.tables.top[bucket][x]
		} else {
			d = sumGaussian(k.gauss, opacity, x-center, center, w, h)
		}
		for y := gsize; y < sh-gsize; y++ {
			set(x, y, d)
			set(sw-x-1, y, d)
		}
	}

	k.cache.Add(key, img)
	return img
}

func fillRow(img *image.Alpha, startX, y, width int, v byte) {
	if width <= 0 {
		return
	}
	off := img.PixOffset(startX, y)
	for i := 0; i < width; i++ {
		img.Pix[off+i] = v
	}
}
