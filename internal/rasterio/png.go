// Package rasterio provides thin PixelSource/PixelSink adapters over
// standard raster formats. Image decoding/encoding is left to an external
// collaborator outside the codec's scope — this package exists only so
// tests and CLI fixtures have something concrete to read pixels from and
// write them to, narrowed to the single-channel integer arrays the codec
// operates on.
package rasterio

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/paroma/watermarkchain/internal/codec"
)

// PNGSource reads a grayscale PNG and decodes it into a codec.Image.
type PNGSource struct {
	Path string
}

// ReadImage implements codec.PixelSource.
func (s PNGSource) ReadImage() (*codec.Image, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("rasterio: open %s: %w", s.Path, err)
	}
	defer f.Close()

	decoded, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("rasterio: decode %s: %w", s.Path, err)
	}

	bounds := decoded.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	bitDepth := 8
	if _, is16 := decoded.(*image.Gray16); is16 {
		bitDepth = 16
	}

	img := codec.NewImage(width, height, bitDepth)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, _, _, _ := decoded.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			if bitDepth == 16 {
				img.Pixels[y][x] = int(r) // color.RGBA64's r is already the full 16-bit sample
			} else {
				img.Pixels[y][x] = int(r >> 8) // RGBA() always returns 16-bit-scaled components
			}
		}
	}
	return img, nil
}

// PNGSink encodes a codec.Image to a grayscale PNG.
type PNGSink struct {
	Path string
}

// WriteImage implements codec.PixelSink.
func (s PNGSink) WriteImage(img *codec.Image) error {
	f, err := os.Create(s.Path)
	if err != nil {
		return fmt.Errorf("rasterio: create %s: %w", s.Path, err)
	}
	defer f.Close()

	var out image.Image
	if img.BitDepth == 16 {
		gray := image.NewGray16(image.Rect(0, 0, img.Width, img.Height))
		for y := 0; y < img.Height; y++ {
			for x := 0; x < img.Width; x++ {
				gray.SetGray16(x, y, color.Gray16{Y: uint16(img.Pixels[y][x])})
			}
		}
		out = gray
	} else {
		gray := image.NewGray(image.Rect(0, 0, img.Width, img.Height))
		for y := 0; y < img.Height; y++ {
			for x := 0; x < img.Width; x++ {
				gray.SetGray(x, y, color.Gray{Y: uint8(img.Pixels[y][x])})
			}
		}
		out = gray
	}

	if err := png.Encode(f, out); err != nil {
		return fmt.Errorf("rasterio: encode %s: %w", s.Path, err)
	}
	return nil
}
