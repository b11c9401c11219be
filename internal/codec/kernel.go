package codec

import (
	"fmt"
	"math/big"

	"gonum.org/v1/gonum/mat"
)

// Kernel is an odd-sized square matrix of rationals summing to 1 whose
// center coefficient is 0. Coefficients are kept as exact
// math/big.Rat values so the "sums to 1" and "center is 0" invariants are
// checked exactly rather than against floating-point slop; a cached
// *mat.Dense float64 approximation feeds the actual convolution dot
// product in Predict.
type Kernel struct {
	Side   int // K
	Radius int // r = (K-1)/2
	Coeffs [][]*big.Rat

	dense *mat.Dense
}

// DefaultKernel returns the 4-neighbour average: center 0, the four
// edge-adjacent cells 1/4, corners 0.
func DefaultKernel() *Kernel {
	zero := big.NewRat(0, 1)
	quarter := big.NewRat(1, 4)
	coeffs := [][]*big.Rat{
		{zero, quarter, zero},
		{quarter, zero, quarter},
		{zero, quarter, zero},
	}
	k, err := NewKernel(coeffs)
	if err != nil {
		// DefaultKernel is constructed from a literal known-good matrix; a
		// failure here means this file's constant itself is wrong.
		panic(fmt.Sprintf("codec: DefaultKernel invalid: %v", err))
	}
	return k
}

// NewKernel validates and constructs a Kernel from a rational coefficient
// matrix. The matrix must be square with odd side length, its center
// coefficient must be exactly 0, and all coefficients must sum to exactly 1.
func NewKernel(coeffs [][]*big.Rat) (*Kernel, error) {
	side := len(coeffs)
	if side == 0 || side%2 == 0 {
		return nil, fmt.Errorf("%w: side %d must be positive and odd", ErrKernelInvalid, side)
	}
	for _, row := range coeffs {
		if len(row) != side {
			return nil, fmt.Errorf("%w: matrix is not square (side %d, row length %d)", ErrKernelInvalid, side, len(row))
		}
	}

	radius := (side - 1) / 2

	center := coeffs[radius][radius]
	if center.Sign() != 0 {
		return nil, fmt.Errorf("%w: center coefficient must be 0, got %s", ErrKernelInvalid, center.RatString())
	}

	sum := new(big.Rat)
	flat := make([]float64, 0, side*side)
	for _, row := range coeffs {
		for _, c := range row {
			sum.Add(sum, c)
		}
	}
	if sum.Cmp(big.NewRat(1, 1)) != 0 {
		return nil, fmt.Errorf("%w: coefficients sum to %s, not 1", ErrKernelInvalid, sum.RatString())
	}

	for _, row := range coeffs {
		for _, c := range row {
			f, _ := c.Float64()
			flat = append(flat, f)
		}
	}

	k := &Kernel{
		Side:   side,
		Radius: radius,
		Coeffs: coeffs,
		dense:  mat.NewDense(side, side, flat),
	}
	return k, nil
}

// Dense returns the float64 approximation of the kernel as a gonum matrix,
// used by Predict for the neighbourhood dot product.
func (k *Kernel) Dense() *mat.Dense {
	return k.dense
}
