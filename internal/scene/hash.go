// Package scene calibrates scene-change sensitivity via perceptual hashing
// and runs segment-parallel scene detection.
package scene

import (
	"image"
	"math/bits"

	xdraw "golang.org/x/image/draw"
)

// HashSize is the side of the downscaled grid the hash is computed on.
// 8x8 yields a 64-bit signature.
const HashSize = 8

// Hash is a coarse perceptual signature of a frame: the image is downscaled
// to a HashSize grid, converted to grayscale and thresholded at its mean
// luma, one bit per cell.
type Hash uint64

// HashImage computes the perceptual hash of an image. The input may be any
// size; it is resampled to the hash grid first.
func HashImage(src image.Image) Hash {
	small := image.NewGray(image.Rect(0, 0, HashSize, HashSize))
	xdraw.BiLinear.Scale(small, small.Bounds(), src, src.Bounds(), xdraw.Src, nil)

	var sum int
	for _, px := range small.Pix {
		sum += int(px)
	}
	mean := uint8(sum / len(small.Pix)) // #nosec G115 - mean of uint8 values fits in uint8

	var h Hash
	for i, px := range small.Pix {
		if px > mean {
			h |= 1 << uint(i) // #nosec G115 - i < 64 by construction
		}
	}
	return h
}

// Distance returns the normalized Hamming distance between two hashes,
// in [0,1].
func (h Hash) Distance(other Hash) float64 {
	return float64(bits.OnesCount64(uint64(h^other))) / float64(HashSize*HashSize)
}
