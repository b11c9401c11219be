package codec

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Image is a rectangular array of non-negative integer pixel values at a
// fixed bit depth. Storage is row-major: Pixels[y][x].
type Image struct {
	Width    int
	Height   int
	BitDepth int // 8 or 16
	Pixels   [][]int
}

// NewImage allocates a zeroed image of the given dimensions and bit depth.
func NewImage(width, height, bitDepth int) *Image {
	pixels := make([][]int, height)
	for y := range pixels {
		pixels[y] = make([]int, width)
	}
	return &Image{Width: width, Height: height, BitDepth: bitDepth, Pixels: pixels}
}

// MaxValue returns M = 2^B - 1, the largest representable pixel value.
func (img *Image) MaxValue() int {
	return (1 << uint(img.BitDepth)) - 1
}

// Clone returns a deep copy, independent of the receiver's backing arrays.
func (img *Image) Clone() *Image {
	out := &Image{Width: img.Width, Height: img.Height, BitDepth: img.BitDepth, Pixels: make([][]int, img.Height)}
	for y, row := range img.Pixels {
		out.Pixels[y] = append([]int(nil), row...)
	}
	return out
}

// Validate checks that every pixel fits within [0, MaxValue()], returning
// ErrBitDepthMismatch wrapped with the offending coordinate otherwise.
func (img *Image) Validate() error {
	max := img.MaxValue()
	for y, row := range img.Pixels {
		for x, v := range row {
			if v < 0 || v > max {
				return fmt.Errorf("%w: pixel (%d,%d)=%d exceeds [0,%d]", ErrBitDepthMismatch, y, x, v, max)
			}
		}
	}
	return nil
}

// PixelSource yields a decoded pixel array. Image decoding itself (PNG, TIFF,
// DICOM, ...) is left to an external collaborator; implementations here
// are thin adapters (see internal/rasterio) used by tests and CLI fixtures.
type PixelSource interface {
	ReadImage() (*Image, error)
}

// PixelSink accepts a pixel array for encoding to some external representation.
type PixelSink interface {
	WriteImage(*Image) error
}

// HashImage computes the canonical SHA-256 of an image: a 4-byte
// big-endian width, 4-byte big-endian height, 1-byte bit depth, then
// width*height pixels in row-major order as big-endian unsigned integers of
// ceil(bitDepth/8) bytes. Hashing this canonical form rather than a source
// file's raw bytes means the ledger binds to the pixel data itself, not to
// an incidental file encoding (PNG filter choice, compression level, ...).
func HashImage(img *Image) (string, error) {
	if img.BitDepth != 8 && img.BitDepth != 16 {
		return "", fmt.Errorf("%w: bit depth %d not in {8,16}", ErrBitDepthMismatch, img.BitDepth)
	}
	if err := img.Validate(); err != nil {
		return "", err
	}

	bytesPerPixel := (img.BitDepth + 7) / 8

	var buf bytes.Buffer
	buf.Grow(4 + 4 + 1 + img.Width*img.Height*bytesPerPixel)

	var u32 [4]byte
	binary.BigEndian.PutUint32(u32[:], uint32(img.Width))
	buf.Write(u32[:])
	binary.BigEndian.PutUint32(u32[:], uint32(img.Height))
	buf.Write(u32[:])
	buf.WriteByte(byte(img.BitDepth))

	switch bytesPerPixel {
	case 1:
		for _, row := range img.Pixels {
			for _, v := range row {
				buf.WriteByte(byte(v))
			}
		}
	case 2:
		var u16 [2]byte
		for _, row := range img.Pixels {
			for _, v := range row {
				binary.BigEndian.PutUint16(u16[:], uint16(v))
				buf.Write(u16[:])
			}
		}
	default:
		return "", fmt.Errorf("%w: unsupported bit depth %d", ErrBitDepthMismatch, img.BitDepth)
	}

	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:]), nil
}
