package codec

import "errors"

// Sentinel errors for the codec's failure modes. Callers compare
// with errors.Is; wrapped messages carry the offending value.
var (
	// ErrBadKey is returned when a secret key is not 32 bytes after hex decoding.
	ErrBadKey = errors.New("codec: secret key must be 32 bytes")
	// ErrEmptyMessage is returned when a watermark message has zero length.
	ErrEmptyMessage = errors.New("codec: message must not be empty")
	// ErrKernelInvalid is returned when a kernel has an even side length or a
	// non-zero center coefficient.
	ErrKernelInvalid = errors.New("codec: kernel invalid")
	// ErrDimensionTooSmall is returned when an image has no valid candidate center.
	ErrDimensionTooSmall = errors.New("codec: image too small for kernel/stride")
	// ErrBitDepthMismatch is returned when a pixel exceeds the configured bit depth's range.
	ErrBitDepthMismatch = errors.New("codec: pixel value exceeds bit depth range")
	// ErrStrideTooSmall is returned when stride < kernel side, which would let
	// one candidate's neighbourhood overlap another candidate's center.
	ErrStrideTooSmall = errors.New("codec: stride must be >= kernel side")
)
