package codec

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Center is a candidate pixel position, row-major (i, j).
type Center struct {
	Row int
	Col int
}

// Predict computes round(sum(kernel[a][b] * image[i-r+a][j-r+b])) for the
// given center. The caller must ensure the center is in-bounds for the
// kernel's support; Predict does not pad and rejects out-of-bounds centers
// with an error.
func Predict(img *Image, k *Kernel, c Center) (int, error) {
	r := k.Radius
	if c.Row-r < 0 || c.Col-r < 0 || c.Row+r >= img.Height || c.Col+r >= img.Width {
		return 0, fmt.Errorf("%w: center (%d,%d) out of bounds for radius %d in %dx%d image",
			ErrDimensionTooSmall, c.Row, c.Col, r, img.Height, img.Width)
	}

	neighbourhood := make([]float64, 0, k.Side*k.Side)
	for a := 0; a < k.Side; a++ {
		for b := 0; b < k.Side; b++ {
			neighbourhood = append(neighbourhood, float64(img.Pixels[c.Row-r+a][c.Col-r+b]))
		}
	}
	nVec := mat.NewVecDense(len(neighbourhood), neighbourhood)

	kFlat := make([]float64, 0, k.Side*k.Side)
	for a := 0; a < k.Side; a++ {
		for b := 0; b < k.Side; b++ {
			kFlat = append(kFlat, k.Dense().At(a, b))
		}
	}
	kVec := mat.NewVecDense(len(kFlat), kFlat)

	sum := mat.Dot(nVec, kVec)
	return roundHalfUp(sum), nil
}

// roundHalfUp rounds x to the nearest integer, breaking ties (x.5) upward.
// Embed and Extract both call this on the same inputs, so any rounding
// convention works as long as both sides agree; half-up is picked because
// it needs no branch on the sign of x for the tie case.
func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}

// CandidateCenters enumerates the valid center set in a fixed row-major scan
// order: {(i,j) : i,j >= r, i+r < H, j+r < W, (i-r) mod s == 0,
// (j-r) mod s == 0}. Embed and Extract must walk candidates in the same
// order since watermark and mask bits are consumed positionally.
func CandidateCenters(img *Image, k *Kernel, stride int) []Center {
	r := k.Radius
	var centers []Center
	for i := r; i+r < img.Height; i++ {
		if (i-r)%stride != 0 {
			continue
		}
		for j := r; j+r < img.Width; j++ {
			if (j-r)%stride != 0 {
				continue
			}
			centers = append(centers, Center{Row: i, Col: j})
		}
	}
	return centers
}
